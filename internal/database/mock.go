package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockAppViewRepository struct {
	mock.Mock
}

func (m *MockAppViewRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockAppViewRepository) InsertMessageRef(params InsertMessageRefParams) (*MessageRef, error) {
	args := m.Called(params)
	if ref, ok := args.Get(0).(*MessageRef); ok {
		return ref, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockAppViewRepository) UpdateRoomLastMessage(ref MessageRef) error {
	args := m.Called(ref)
	return args.Error(0)
}
func (m *MockAppViewRepository) LatestIndexedAt(senderDid string) (time.Time, error) {
	args := m.Called(senderDid)
	return args.Get(0).(time.Time), args.Error(1)
}
func (m *MockAppViewRepository) GetRoomMessages(roomId string, afterId int64, limit int) ([]MessageRef, error) {
	args := m.Called(roomId, afterId, limit)
	return args.Get(0).([]MessageRef), args.Error(1)
}
func (m *MockAppViewRepository) UpsertMember(roomId, memberDid, pdsEndpoint string) (bool, error) {
	args := m.Called(roomId, memberDid, pdsEndpoint)
	return args.Bool(0), args.Error(1)
}
func (m *MockAppViewRepository) DeleteMember(roomId, memberDid string) (int, error) {
	args := m.Called(roomId, memberDid)
	return args.Int(0), args.Error(1)
}
func (m *MockAppViewRepository) ListMembers(roomId string) ([]Member, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Member), args.Error(1)
}
func (m *MockAppViewRepository) ListRoomsForMember(memberDid string) ([]RoomSummary, error) {
	args := m.Called(memberDid)
	return args.Get(0).([]RoomSummary), args.Error(1)
}
func (m *MockAppViewRepository) UpdateLastRead(roomId, memberDid string, messageId int64) error {
	args := m.Called(roomId, memberDid, messageId)
	return args.Error(0)
}
func (m *MockAppViewRepository) UnreadCount(roomId, memberDid string) (int, error) {
	args := m.Called(roomId, memberDid)
	return args.Int(0), args.Error(1)
}
func (m *MockAppViewRepository) AreFriends(did1, did2 string) (bool, error) {
	args := m.Called(did1, did2)
	return args.Bool(0), args.Error(1)
}
func (m *MockAppViewRepository) HasPendingRequest(did1, did2 string) (bool, error) {
	args := m.Called(did1, did2)
	return args.Bool(0), args.Error(1)
}
func (m *MockAppViewRepository) UpsertFriendRequest(fromDid, toDid string) (FriendRequest, error) {
	args := m.Called(fromDid, toDid)
	return args.Get(0).(FriendRequest), args.Error(1)
}
func (m *MockAppViewRepository) GetFriendRequest(id int64) (FriendRequest, error) {
	args := m.Called(id)
	return args.Get(0).(FriendRequest), args.Error(1)
}
func (m *MockAppViewRepository) SetFriendRequestStatus(id int64, status string) error {
	args := m.Called(id, status)
	return args.Error(0)
}
func (m *MockAppViewRepository) DeleteFriendRequest(id int64) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockAppViewRepository) ListReceivedRequests(did string) ([]FriendRequest, error) {
	args := m.Called(did)
	return args.Get(0).([]FriendRequest), args.Error(1)
}
func (m *MockAppViewRepository) ListSentRequests(did string) ([]FriendRequest, error) {
	args := m.Called(did)
	return args.Get(0).([]FriendRequest), args.Error(1)
}
func (m *MockAppViewRepository) InsertFriendEdges(did1, did2 string) error {
	args := m.Called(did1, did2)
	return args.Error(0)
}
func (m *MockAppViewRepository) DeleteFriendEdges(did1, did2 string) error {
	args := m.Called(did1, did2)
	return args.Error(0)
}
func (m *MockAppViewRepository) ListFriends(did string) ([]FriendEdge, error) {
	args := m.Called(did)
	return args.Get(0).([]FriendEdge), args.Error(1)
}
