package api

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/nodetalk/appview/internal/database"
	"github.com/stretchr/testify/assert"
)

func TestSendFriendRequest(t *testing.T) {
	t.Run("creates pending request", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("AreFriends", "did:plc:alice", "did:plc:bob").Return(false, nil).Once()
		mockRepo.On("HasPendingRequest", "did:plc:alice", "did:plc:bob").Return(false, nil).Once()
		mockRepo.On("UpsertFriendRequest", "did:plc:alice", "did:plc:bob").Return(database.FriendRequest{
			Id:      7,
			FromDid: "did:plc:alice",
			ToDid:   "did:plc:bob",
			Status:  database.FriendRequestPending,
		}, nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/friends/request", FriendRequestRequest{
			FromDid: "did:plc:alice",
			ToDid:   "did:plc:bob",
		})
		assert.Equal(t, http.StatusOK, rr.Code)

		var body map[string]any
		decodeBody(t, rr, &body)
		assert.Equal(t, float64(7), body["requestId"])
	})

	t.Run("rejects self request", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rr := doRequest(mux, http.MethodPost, "/api/friends/request", FriendRequestRequest{
			FromDid: "did:plc:alice",
			ToDid:   "did:plc:alice",
		})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("rejects existing friendship", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("AreFriends", "did:plc:alice", "did:plc:bob").Return(true, nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/friends/request", FriendRequestRequest{
			FromDid: "did:plc:alice",
			ToDid:   "did:plc:bob",
		})
		assert.Equal(t, http.StatusConflict, rr.Code)

		var apiErr ApiError
		decodeBody(t, rr, &apiErr)
		assert.Equal(t, "already friends", apiErr.Message)
	})

	t.Run("rejects duplicate pending request", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("AreFriends", "did:plc:alice", "did:plc:bob").Return(false, nil).Once()
		mockRepo.On("HasPendingRequest", "did:plc:alice", "did:plc:bob").Return(true, nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/friends/request", FriendRequestRequest{
			FromDid: "did:plc:alice",
			ToDid:   "did:plc:bob",
		})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestRespondFriendRequest(t *testing.T) {
	pending := database.FriendRequest{
		Id:      7,
		FromDid: "did:plc:alice",
		ToDid:   "did:plc:bob",
		Status:  database.FriendRequestPending,
	}

	t.Run("accept creates friendship", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetFriendRequest", int64(7)).Return(pending, nil).Once()
		mockRepo.On("SetFriendRequestStatus", int64(7), database.FriendRequestAccepted).Return(nil).Once()
		mockRepo.On("InsertFriendEdges", "did:plc:alice", "did:plc:bob").Return(nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/friends/request/7/respond", RespondFriendRequest{Action: "accept"})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("reject leaves no friendship", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetFriendRequest", int64(7)).Return(pending, nil).Once()
		mockRepo.On("SetFriendRequestStatus", int64(7), database.FriendRequestRejected).Return(nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/friends/request/7/respond", RespondFriendRequest{Action: "reject"})
		assert.Equal(t, http.StatusOK, rr.Code)
		mockRepo.AssertNotCalled(t, "InsertFriendEdges", "did:plc:alice", "did:plc:bob")
	})

	t.Run("invalid action", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rr := doRequest(mux, http.MethodPost, "/api/friends/request/7/respond", RespondFriendRequest{Action: "maybe"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown request", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetFriendRequest", int64(99)).Return(database.FriendRequest{}, sql.ErrNoRows).Once()

		rr := doRequest(mux, http.MethodPost, "/api/friends/request/99/respond", RespondFriendRequest{Action: "accept"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("already processed", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		processed := pending
		processed.Status = database.FriendRequestAccepted
		mockRepo.On("GetFriendRequest", int64(7)).Return(processed, nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/friends/request/7/respond", RespondFriendRequest{Action: "accept"})
		assert.Equal(t, http.StatusConflict, rr.Code)

		var apiErr ApiError
		decodeBody(t, rr, &apiErr)
		assert.Equal(t, "friend request already processed", apiErr.Message)
	})
}

func TestCancelFriendRequest(t *testing.T) {
	t.Run("cancels pending request", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetFriendRequest", int64(7)).Return(database.FriendRequest{
			Id:     7,
			Status: database.FriendRequestPending,
		}, nil).Once()
		mockRepo.On("DeleteFriendRequest", int64(7)).Return(nil).Once()

		rr := doRequest(mux, http.MethodDelete, "/api/friends/request/7", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("refuses processed request", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetFriendRequest", int64(7)).Return(database.FriendRequest{
			Id:     7,
			Status: database.FriendRequestRejected,
		}, nil).Once()

		rr := doRequest(mux, http.MethodDelete, "/api/friends/request/7", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
		mockRepo.AssertNotCalled(t, "DeleteFriendRequest", int64(7))
	})
}

func TestListFriendRequests(t *testing.T) {
	mux, mockRepo := newTestServer(t)
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("ListReceivedRequests", "did:plc:bob").Return([]database.FriendRequest{
		{Id: 7, FromDid: "did:plc:alice", ToDid: "did:plc:bob", Status: database.FriendRequestPending},
	}, nil).Once()
	mockRepo.On("ListSentRequests", "did:plc:alice").Return([]database.FriendRequest{
		{Id: 7, FromDid: "did:plc:alice", ToDid: "did:plc:bob", Status: database.FriendRequestPending},
	}, nil).Once()

	rr := doRequest(mux, http.MethodGet, "/api/friends/requests/received?did=did:plc:bob", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var received []map[string]any
	decodeBody(t, rr, &received)
	assert.Len(t, received, 1)
	assert.Equal(t, "did:plc:alice", received[0]["fromDid"])

	rr = doRequest(mux, http.MethodGet, "/api/friends/requests/sent?did=did:plc:alice", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var sent []map[string]any
	decodeBody(t, rr, &sent)
	assert.Len(t, sent, 1)
	assert.Equal(t, "did:plc:bob", sent[0]["toDid"])
}

func TestListFriends(t *testing.T) {
	mux, mockRepo := newTestServer(t)
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("ListFriends", "did:plc:alice").Return([]database.FriendEdge{
		{Did1: "did:plc:alice", Did2: "did:plc:bob", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}, nil).Once()

	rr := doRequest(mux, http.MethodGet, "/api/friends?did=did:plc:alice", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var friends []map[string]any
	decodeBody(t, rr, &friends)
	assert.Len(t, friends, 1)
	assert.Equal(t, "did:plc:bob", friends[0]["did"])
}

func TestRemoveFriend(t *testing.T) {
	mux, mockRepo := newTestServer(t)
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("DeleteFriendEdges", "did:plc:alice", "did:plc:bob").Return(nil).Once()

	rr := doRequest(mux, http.MethodDelete, "/api/friends", RemoveFriendRequest{
		Did1: "did:plc:alice",
		Did2: "did:plc:bob",
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestProfileUpdated(t *testing.T) {
	t.Run("fans out to friends", func(t *testing.T) {
		mux, mockRepo := newTestServer(t)
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("ListFriends", "did:plc:alice").Return([]database.FriendEdge{
			{Did1: "did:plc:alice", Did2: "did:plc:bob"},
			{Did1: "did:plc:alice", Did2: "did:plc:carol"},
		}, nil).Once()

		rr := doRequest(mux, http.MethodPost, "/api/profile/updated", ProfileUpdatedRequest{Did: "did:plc:alice"})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("requires did", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rr := doRequest(mux, http.MethodPost, "/api/profile/updated", ProfileUpdatedRequest{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
