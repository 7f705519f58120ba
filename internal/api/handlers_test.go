package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nodetalk/appview/internal/config"
	"github.com/nodetalk/appview/internal/database"
	"github.com/nodetalk/appview/internal/gateway"
	"github.com/nodetalk/appview/internal/indexer"
	"github.com/nodetalk/appview/internal/stats"
	"github.com/nodetalk/appview/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestServer(t *testing.T) (*http.ServeMux, *database.MockAppViewRepository) {
	mockRepo := &database.MockAppViewRepository{}

	ms := &stats.MockStatsUpdater{}
	ms.On("Incr", mock.Anything).Maybe()
	ms.On("Decr", mock.Anything).Maybe()

	logger := testutil.TestLogger(t)
	gw := gateway.NewGateway(logger, ms)
	idx := indexer.NewIndexer(logger, mockRepo, nil, gw, ms, time.Second)

	cfg, err := config.NewConfig("localhost:3001", "dsn", nil, time.Second)
	assert.NoError(t, err)

	mux := http.NewServeMux()
	NewAppViewServer(mux, logger, mockRepo, idx, gw, ms, cfg)

	return mux, mockRepo
}

func doRequest(mux *http.ServeMux, method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(v))
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("Ping").Return(nil).Once()

		rr := doRequest(mux, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OK", rr.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("Ping").Return(errors.New("connection refused")).Once()

		rr := doRequest(mux, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestSubscribeValidatesInput(t *testing.T) {
	mux, _ := newTestServer(t)

	tt := []struct {
		name string
		body SubscribeRequest
		code int
	}{
		{"missing did", SubscribeRequest{PdsEndpoint: "https://pds.example.com"}, http.StatusBadRequest},
		{"missing endpoint", SubscribeRequest{Did: "did:plc:alice"}, http.StatusBadRequest},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(mux, http.MethodPost, "/api/subscribe", tc.body)
			assert.Equal(t, tc.code, rr.Code)
		})
	}
}

func TestIngestImmediate(t *testing.T) {
	t.Run("indexes new record", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		ref := &database.MessageRef{
			Id:        42,
			RoomId:    "room-1",
			RecordUri: "at://did:plc:alice/com.nodetalk.chat.message/1",
			SenderDid: "did:plc:alice",
			CreatedAt: createdAt,
		}
		mockRepo.On("InsertMessageRef", database.InsertMessageRefParams{
			RoomId:    "room-1",
			RecordUri: ref.RecordUri,
			SenderDid: "did:plc:alice",
			CreatedAt: createdAt,
		}).Return(ref, nil).Once()
		mockRepo.On("UpdateRoomLastMessage", *ref).Return(nil).Once()
		mockRepo.On("ListMembers", "room-1").Return([]database.Member{}, nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/ingest", IngestRequest{
			RecordUri:  ref.RecordUri,
			SenderDid:  "did:plc:alice",
			RoomId:     "room-1",
			Ciphertext: "deadbeef",
			Nonce:      "abad1dea",
			CreatedAt:  "2024-01-01T00:00:00Z",
		})

		assert.Equal(t, http.StatusOK, rr.Code)

		var body map[string]any
		decodeBody(t, rr, &body)
		assert.Equal(t, float64(42), body["id"])
		assert.Equal(t, "room-1", body["roomId"])
	})

	t.Run("reports duplicate", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("InsertMessageRef", mock.Anything).Return(nil, nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/ingest", IngestRequest{
			RecordUri: "at://did:plc:alice/com.nodetalk.chat.message/1",
			SenderDid: "did:plc:alice",
			RoomId:    "room-1",
			CreatedAt: "2024-01-01T00:00:00Z",
		})

		assert.Equal(t, http.StatusOK, rr.Code)

		var body map[string]any
		decodeBody(t, rr, &body)
		assert.Equal(t, true, body["duplicate"])
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rr := doRequest(mux, http.MethodPost, "/api/ingest", IngestRequest{
			SenderDid: "did:plc:alice",
			RoomId:    "room-1",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestJoinRoom(t *testing.T) {
	t.Run("new member", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("UpsertMember", "room-1", "did:plc:alice", "https://pds.example.com").
			Return(true, nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/rooms/room-1/join", JoinRoomRequest{
			Did:         "did:plc:alice",
			PdsEndpoint: "https://pds.example.com",
		})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("refresh is idempotent", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("UpsertMember", "room-1", "did:plc:alice", "https://pds2.example.com").
			Return(false, nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/rooms/room-1/join", JoinRoomRequest{
			Did:         "did:plc:alice",
			PdsEndpoint: "https://pds2.example.com",
		})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rr := doRequest(mux, http.MethodPost, "/api/rooms/room-1/join", JoinRoomRequest{Did: "did:plc:alice"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLeaveRoom(t *testing.T) {
	t.Run("member leaves", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("DeleteMember", "room-1", "did:plc:alice").Return(1, nil).Once()

		rr := doRequest(mux, http.MethodDelete, "/api/rooms/room-1/leave", LeaveRoomRequest{Did: "did:plc:alice"})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("not a member", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("DeleteMember", "room-1", "did:plc:bob").Return(0, sql.ErrNoRows).Once()

		rr := doRequest(mux, http.MethodDelete, "/api/rooms/room-1/leave", LeaveRoomRequest{Did: "did:plc:bob"})
		assert.Equal(t, http.StatusConflict, rr.Code)

		var apiErr ApiError
		decodeBody(t, rr, &apiErr)
		assert.Equal(t, "not a member of this room", apiErr.Message)
	})
}

func TestListRooms(t *testing.T) {
	t.Run("requires did", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rr := doRequest(mux, http.MethodGet, "/api/rooms", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("returns summaries", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		lastMsg := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		mockRepo.On("ListRoomsForMember", "did:plc:alice").Return([]database.RoomSummary{
			{RoomId: "room-1", MemberCount: 2, LastMessageAt: sql.NullTime{Time: lastMsg, Valid: true}, UnreadCount: 3},
			{RoomId: "room-2", MemberCount: 1},
		}, nil).Once()

		rr := doRequest(mux, http.MethodGet, "/api/rooms?did=did:plc:alice", nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var summaries []map[string]any
		decodeBody(t, rr, &summaries)
		assert.Len(t, summaries, 2)
		assert.Equal(t, "room-1", summaries[0]["roomId"])
		assert.Equal(t, float64(3), summaries[0]["unreadCount"])
		assert.NotNil(t, summaries[0]["lastMessageAt"])
		// a room with no messages omits the timestamp
		assert.Nil(t, summaries[1]["lastMessageAt"])
	})
}

func TestListMessages(t *testing.T) {
	t.Run("forwards pagination", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoomMessages", "room-1", int64(10), 50).Return([]database.MessageRef{
			{Id: 11, RoomId: "room-1", RecordUri: "at://x/y/11", SenderDid: "did:plc:alice"},
		}, nil).Once()

		rr := doRequest(mux, http.MethodGet, "/api/rooms/room-1/messages?after=10&limit=50", nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var refs []map[string]any
		decodeBody(t, rr, &refs)
		assert.Len(t, refs, 1)
		assert.Equal(t, float64(11), refs[0]["id"])
	})

	t.Run("rejects malformed cursor", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rr := doRequest(mux, http.MethodGet, "/api/rooms/room-1/messages?after=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestMarkRead(t *testing.T) {
	t.Run("explicit message id", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("UpdateLastRead", "room-1", "did:plc:alice", int64(42)).Return(nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/rooms/room-1/read", MarkReadRequest{
			Did:       "did:plc:alice",
			MessageId: 42,
		})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("unknown membership", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("UpdateLastRead", "room-1", "did:plc:bob", int64(0)).Return(sql.ErrNoRows).Once()

		rr := doRequest(mux, http.MethodPost, "/api/rooms/room-1/read", MarkReadRequest{Did: "did:plc:bob"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestListMembersEndpoint(t *testing.T) {
	mux, mockRepo := newTestServer(t)
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("ListMembers", "room-1").Return([]database.Member{
		{RoomId: "room-1", MemberDid: "did:plc:alice", PdsEndpoint: "https://pds.example.com"},
	}, nil).Once()

	rr := doRequest(mux, http.MethodGet, "/api/rooms/room-1/members", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var members []map[string]any
	decodeBody(t, rr, &members)
	assert.Len(t, members, 1)
	assert.Equal(t, "did:plc:alice", members[0]["did"])
	assert.Equal(t, "https://pds.example.com", members[0]["pdsEndpoint"])
}
