package database

import "time"

type AppViewRepository interface {
	Ping() error
	// InsertMessageRef indexes one record reference. It returns (nil, nil)
	// when the record URI is already indexed; the insert is atomic so
	// concurrent callers racing on the same record see exactly one success.
	InsertMessageRef(params InsertMessageRefParams) (*MessageRef, error)
	// UpdateRoomLastMessage advances the room's last-message pointer only
	// if ref is newer than the current value (ties broken by id).
	UpdateRoomLastMessage(ref MessageRef) error
	// LatestIndexedAt returns the newest indexed created_at for a sender,
	// or the zero time when nothing is indexed yet.
	LatestIndexedAt(senderDid string) (time.Time, error)
	GetRoomMessages(roomId string, afterId int64, limit int) ([]MessageRef, error)
	// UpsertMember creates the room if absent and inserts or refreshes the
	// membership. It reports whether the membership was newly created.
	UpsertMember(roomId, memberDid, pdsEndpoint string) (bool, error)
	// DeleteMember removes the membership and returns the number of members
	// remaining; an empty room is deleted in the same transaction. Returns
	// sql.ErrNoRows when the membership does not exist.
	DeleteMember(roomId, memberDid string) (int, error)
	ListMembers(roomId string) ([]Member, error)
	ListRoomsForMember(memberDid string) ([]RoomSummary, error)
	// UpdateLastRead sets the member's read cursor. A zero messageId means
	// the room's current last-message pointer. Returns sql.ErrNoRows when
	// the membership does not exist or the ref is not in the room.
	UpdateLastRead(roomId, memberDid string, messageId int64) error
	UnreadCount(roomId, memberDid string) (int, error)
	AreFriends(did1, did2 string) (bool, error)
	HasPendingRequest(did1, did2 string) (bool, error)
	// UpsertFriendRequest creates a pending request, resetting a previously
	// resolved request between the same pair back to pending.
	UpsertFriendRequest(fromDid, toDid string) (FriendRequest, error)
	GetFriendRequest(id int64) (FriendRequest, error)
	SetFriendRequestStatus(id int64, status string) error
	DeleteFriendRequest(id int64) error
	ListReceivedRequests(did string) ([]FriendRequest, error)
	ListSentRequests(did string) ([]FriendRequest, error)
	// InsertFriendEdges stores the symmetric (did1,did2) and (did2,did1) rows.
	InsertFriendEdges(did1, did2 string) error
	DeleteFriendEdges(did1, did2 string) error
	ListFriends(did string) ([]FriendEdge, error)
}
