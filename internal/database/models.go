package database

import (
	"database/sql"
	"time"
)

const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestRejected = "rejected"
)

type MessageRef struct {
	Id        int64
	RoomId    string
	RecordUri string
	SenderDid string
	CreatedAt time.Time
}

type Room struct {
	RoomId        string
	CreatedAt     time.Time
	LastMessageId sql.NullInt64
	LastMessageAt sql.NullTime
}

type Member struct {
	RoomId            string
	MemberDid         string
	PdsEndpoint       string
	LastReadMessageId sql.NullInt64
	CreatedAt         time.Time
}

type RoomSummary struct {
	RoomId        string
	MemberCount   int
	LastMessageAt sql.NullTime
	UnreadCount   int
}

type FriendRequest struct {
	Id        int64
	FromDid   string
	ToDid     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type FriendEdge struct {
	Did1      string
	Did2      string
	CreatedAt time.Time
}

type InsertMessageRefParams struct {
	RoomId    string
	RecordUri string
	SenderDid string
	CreatedAt time.Time
}
