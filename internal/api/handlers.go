package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/nodetalk/appview/internal/gateway"
	"github.com/nodetalk/appview/internal/pds"
	"github.com/nodetalk/appview/internal/types"
)

type SubscribeRequest struct {
	Did         string `json:"did"`
	PdsEndpoint string `json:"pdsEndpoint"`
}

type IngestRequest struct {
	RecordUri  string                 `json:"recordUri"`
	SenderDid  string                 `json:"senderDid"`
	RoomId     string                 `json:"roomId"`
	Ciphertext string                 `json:"ciphertext"`
	Nonce      string                 `json:"nonce"`
	CreatedAt  string                 `json:"createdAt"`
	Files      []types.FileAttachment `json:"files,omitempty"`
}

type JoinRoomRequest struct {
	Did         string `json:"did"`
	PdsEndpoint string `json:"pdsEndpoint"`
}

type LeaveRoomRequest struct {
	Did string `json:"did"`
}

type MarkReadRequest struct {
	Did       string `json:"did"`
	MessageId int64  `json:"messageId,omitempty"`
}

func (s *AppViewServer) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *AppViewServer) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *AppViewServer) subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Did == "" || req.PdsEndpoint == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.indexer.Subscribe(req.Did, req.PdsEndpoint)

	s.writeJson(w, http.StatusOK, map[string]any{"success": true})
}

// ingestImmediate is the fast path: the caller just wrote this record to its
// own PDS and indexes it directly instead of waiting for the next poll tick.
// It shares the indexer's Ingest routine with the pollers, so both paths
// produce identical index state.
func (s *AppViewServer) ingestImmediate(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RecordUri == "" || req.SenderDid == "" || req.RoomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var files []pds.FileAttachment
	for _, f := range req.Files {
		files = append(files, pds.FileAttachment{
			FileUrl:  f.FileUrl,
			FileName: f.FileName,
			MimeType: f.MimeType,
		})
	}

	rec := pds.Record{
		Uri: req.RecordUri,
		Value: pds.RecordValue{
			RoomId:     req.RoomId,
			Ciphertext: req.Ciphertext,
			Nonce:      req.Nonce,
			CreatedAt:  req.CreatedAt,
			Files:      files,
		},
	}

	ref, err := s.indexer.Ingest(rec, req.SenderDid, true)
	if err != nil {
		s.log.Println("immediate ingest:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if ref == nil {
		s.writeJson(w, http.StatusOK, map[string]any{"duplicate": true})
		return
	}

	s.writeJson(w, http.StatusOK, types.MessageRef{
		Id:        ref.Id,
		RoomId:    ref.RoomId,
		RecordUri: ref.RecordUri,
		SenderDid: ref.SenderDid,
		CreatedAt: ref.CreatedAt,
	})
}

func (s *AppViewServer) joinRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")

	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Did == "" || req.PdsEndpoint == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	created, err := s.db.UpsertMember(roomId, req.Did, req.PdsEndpoint)
	if err != nil {
		s.log.Println("join room:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if created {
		// a refresh of an existing membership is not announced
		s.gateway.PushToRoom(roomId, gateway.MemberJoinedEvent(roomId, req.Did))
	}

	s.writeJson(w, http.StatusOK, map[string]any{"success": true})
}

func (s *AppViewServer) leaveRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")

	var req LeaveRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Did == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	remaining, err := s.db.DeleteMember(roomId, req.Did)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewConflictError("not a member of this room")
		} else {
			s.log.Println("leave room:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if remaining > 0 {
		s.gateway.PushToRoom(roomId, gateway.MemberLeftEvent(roomId, req.Did))
	}

	s.writeJson(w, http.StatusOK, map[string]any{"success": true})
}

func (s *AppViewServer) listRooms(w http.ResponseWriter, r *http.Request) {
	did := r.URL.Query().Get("did")
	if did == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbSummaries, err := s.db.ListRoomsForMember(did)
	if err != nil {
		s.log.Println("list rooms:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	summaries := make([]types.RoomSummary, 0, len(dbSummaries))
	for _, dbSummary := range dbSummaries {
		summary := types.RoomSummary{
			RoomId:      dbSummary.RoomId,
			MemberCount: dbSummary.MemberCount,
			UnreadCount: dbSummary.UnreadCount,
		}
		if dbSummary.LastMessageAt.Valid {
			t := dbSummary.LastMessageAt.Time
			summary.LastMessageAt = &t
		}
		summaries = append(summaries, summary)
	}

	s.writeJson(w, http.StatusOK, summaries)
}

func (s *AppViewServer) listMembers(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")

	dbMembers, err := s.db.ListMembers(roomId)
	if err != nil {
		s.log.Println("list members:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	members := make([]types.Member, 0, len(dbMembers))
	for _, m := range dbMembers {
		members = append(members, types.Member{
			Did:         m.MemberDid,
			PdsEndpoint: m.PdsEndpoint,
		})
	}

	s.writeJson(w, http.StatusOK, members)
}

func (s *AppViewServer) listMessages(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")

	var after int64
	var limit int
	var err error

	afterStr := r.URL.Query().Get("after")
	if afterStr != "" {
		after, err = strconv.ParseInt(afterStr, 10, 64)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	dbRefs, err := s.db.GetRoomMessages(roomId, after, limit)
	if err != nil {
		s.log.Println("get room messages:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	refs := make([]types.MessageRef, 0, len(dbRefs))
	for _, ref := range dbRefs {
		refs = append(refs, types.MessageRef{
			Id:        ref.Id,
			RoomId:    ref.RoomId,
			RecordUri: ref.RecordUri,
			SenderDid: ref.SenderDid,
			CreatedAt: ref.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, refs)
}

func (s *AppViewServer) markRead(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Did == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.UpdateLastRead(roomId, req.Did, req.MessageId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("mark read:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{"success": true})
}

func (s *AppViewServer) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := gateway.NewClient(conn, s.gateway, s.log)

	s.gateway.Register(client)
	go client.Write()
	go client.Read()
}
