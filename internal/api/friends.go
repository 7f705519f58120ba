package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nodetalk/appview/internal/database"
	"github.com/nodetalk/appview/internal/gateway"
	"github.com/nodetalk/appview/internal/types"
)

type FriendRequestRequest struct {
	FromDid string `json:"fromDid"`
	ToDid   string `json:"toDid"`
}

type RespondFriendRequest struct {
	Action string `json:"action"`
}

type RemoveFriendRequest struct {
	Did1 string `json:"did1"`
	Did2 string `json:"did2"`
}

type ProfileUpdatedRequest struct {
	Did         string             `json:"did"`
	ProfileData *types.ProfileData `json:"profileData"`
}

func (s *AppViewServer) sendFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req FriendRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.FromDid == "" || req.ToDid == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.FromDid == req.ToDid {
		errResp := NewConflictError("cannot send friend request to yourself")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	alreadyFriends, err := s.db.AreFriends(req.FromDid, req.ToDid)
	if err != nil {
		s.log.Println("check friends:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if alreadyFriends {
		errResp := NewConflictError("already friends")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pending, err := s.db.HasPendingRequest(req.FromDid, req.ToDid)
	if err != nil {
		s.log.Println("check pending request:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if pending {
		errResp := NewConflictError("friend request already exists")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	fr, err := s.db.UpsertFriendRequest(req.FromDid, req.ToDid)
	if err != nil {
		s.log.Println("upsert friend request:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.gateway.PushToIdentity(req.ToDid, gateway.FriendRequestEvent(req.FromDid, req.ToDid, fr.Id))

	s.writeJson(w, http.StatusOK, map[string]any{"success": true, "requestId": fr.Id})
}

func (s *AppViewServer) respondFriendRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req RespondFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Action != "accept" && req.Action != "reject" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	fr, err := s.db.GetFriendRequest(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("get friend request:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if fr.Status != database.FriendRequestPending {
		errResp := NewConflictError("friend request already processed")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	status := database.FriendRequestRejected
	if req.Action == "accept" {
		status = database.FriendRequestAccepted
	}

	if err := s.db.SetFriendRequestStatus(id, status); err != nil {
		s.log.Println("set friend request status:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if status == database.FriendRequestAccepted {
		if err := s.db.InsertFriendEdges(fr.FromDid, fr.ToDid); err != nil {
			s.log.Println("insert friend edges:", err)
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		// both parties learn about their new friend
		s.gateway.PushToIdentity(fr.FromDid, gateway.FriendAcceptedEvent(fr.FromDid, fr.ToDid, fr.ToDid))
		s.gateway.PushToIdentity(fr.ToDid, gateway.FriendAcceptedEvent(fr.FromDid, fr.ToDid, fr.FromDid))
	}

	s.writeJson(w, http.StatusOK, map[string]any{"success": true})
}

func (s *AppViewServer) cancelFriendRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	fr, err := s.db.GetFriendRequest(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("get friend request:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if fr.Status != database.FriendRequestPending {
		errResp := NewConflictError("cannot cancel a processed friend request")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteFriendRequest(id); err != nil {
		s.log.Println("delete friend request:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{"success": true})
}

func (s *AppViewServer) receivedFriendRequests(w http.ResponseWriter, r *http.Request) {
	s.listFriendRequests(w, r, s.db.ListReceivedRequests)
}

func (s *AppViewServer) sentFriendRequests(w http.ResponseWriter, r *http.Request) {
	s.listFriendRequests(w, r, s.db.ListSentRequests)
}

func (s *AppViewServer) listFriendRequests(w http.ResponseWriter, r *http.Request,
	list func(string) ([]database.FriendRequest, error)) {
	did := r.URL.Query().Get("did")
	if did == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbRequests, err := list(did)
	if err != nil {
		s.log.Println("list friend requests:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	requests := make([]types.FriendRequest, 0, len(dbRequests))
	for _, fr := range dbRequests {
		requests = append(requests, types.FriendRequest{
			Id:        fr.Id,
			FromDid:   fr.FromDid,
			ToDid:     fr.ToDid,
			Status:    fr.Status,
			CreatedAt: fr.CreatedAt,
			UpdatedAt: fr.UpdatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, requests)
}

func (s *AppViewServer) listFriends(w http.ResponseWriter, r *http.Request) {
	did := r.URL.Query().Get("did")
	if did == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	edges, err := s.db.ListFriends(did)
	if err != nil {
		s.log.Println("list friends:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	friends := make([]types.Friend, 0, len(edges))
	for _, e := range edges {
		friends = append(friends, types.Friend{
			Did:       e.Did2,
			CreatedAt: e.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, friends)
}

func (s *AppViewServer) removeFriend(w http.ResponseWriter, r *http.Request) {
	var req RemoveFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Did1 == "" || req.Did2 == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteFriendEdges(req.Did1, req.Did2); err != nil {
		s.log.Println("delete friend edges:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.gateway.PushToIdentity(req.Did1, gateway.FriendRemovedEvent(req.Did1, req.Did2, req.Did2))
	s.gateway.PushToIdentity(req.Did2, gateway.FriendRemovedEvent(req.Did1, req.Did2, req.Did1))

	s.writeJson(w, http.StatusOK, map[string]any{"success": true})
}

// profileUpdated fans a profile change out to the identity's friends so
// their clients can refresh cached display data.
func (s *AppViewServer) profileUpdated(w http.ResponseWriter, r *http.Request) {
	var req ProfileUpdatedRequest
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

	edges, err := s.db.ListFriends(req.Did)
	if err != nil {
		s.log.Println("list friends:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	event := gateway.ProfileUpdatedEvent(req.Did, req.ProfileData)
	for _, e := range edges {
		s.gateway.PushToIdentity(e.Did2, event)
	}

	s.writeJson(w, http.StatusOK, map[string]any{"success": true})
}
