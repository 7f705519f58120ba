package gateway

import (
	"github.com/nodetalk/appview/internal/types"
)

// Client-to-server message types.
const (
	MsgSubscribe           = "subscribe"
	MsgUnsubscribe         = "unsubscribe"
	MsgSubscribeIdentity   = "subscribe_identity"
	MsgUnsubscribeIdentity = "unsubscribe_identity"
)

// Server-to-client event types.
const (
	EventNewMessage     = "new_message"
	EventMemberJoined   = "member_joined"
	EventMemberLeft     = "member_left"
	EventFriendRequest  = "friend_request"
	EventFriendAccepted = "friend_accepted"
	EventFriendRemoved  = "friend_removed"
	EventProfileUpdated = "profile_updated"
	EventError          = "error"
)

// ClientMessage is a subscription control message from a connected client.
type ClientMessage struct {
	Type   string `json:"type"`
	RoomId string `json:"roomId,omitempty"`
	Id     string `json:"id,omitempty"`
}

// ServerEvent is a tagged push notification. Only the fields relevant to the
// event type are populated.
type ServerEvent struct {
	Type           string                `json:"type"`
	RoomId         string                `json:"roomId,omitempty"`
	RecordUri      string                `json:"recordUri,omitempty"`
	FromDid        string                `json:"fromDid,omitempty"`
	ToDid          string                `json:"toDid,omitempty"`
	RequestId      int64                 `json:"requestId,omitempty"`
	FriendDid      string                `json:"friendDid,omitempty"`
	MemberDid      string                `json:"memberDid,omitempty"`
	UpdatedDid     string                `json:"updatedDid,omitempty"`
	ProfileData    *types.ProfileData    `json:"profileData,omitempty"`
	MessageContent *types.MessageContent `json:"messageContent,omitempty"`
	Error          string                `json:"error,omitempty"`
}

func NewMessageEvent(roomId, recordUri string, content *types.MessageContent) *ServerEvent {
	return &ServerEvent{
		Type:           EventNewMessage,
		RoomId:         roomId,
		RecordUri:      recordUri,
		MessageContent: content,
	}
}

func MemberJoinedEvent(roomId, memberDid string) *ServerEvent {
	return &ServerEvent{
		Type:      EventMemberJoined,
		RoomId:    roomId,
		MemberDid: memberDid,
	}
}

func MemberLeftEvent(roomId, memberDid string) *ServerEvent {
	return &ServerEvent{
		Type:      EventMemberLeft,
		RoomId:    roomId,
		MemberDid: memberDid,
	}
}

func FriendRequestEvent(fromDid, toDid string, requestId int64) *ServerEvent {
	return &ServerEvent{
		Type:      EventFriendRequest,
		FromDid:   fromDid,
		ToDid:     toDid,
		RequestId: requestId,
	}
}

func FriendAcceptedEvent(fromDid, toDid, friendDid string) *ServerEvent {
	return &ServerEvent{
		Type:      EventFriendAccepted,
		FromDid:   fromDid,
		ToDid:     toDid,
		FriendDid: friendDid,
	}
}

func FriendRemovedEvent(fromDid, toDid, friendDid string) *ServerEvent {
	return &ServerEvent{
		Type:      EventFriendRemoved,
		FromDid:   fromDid,
		ToDid:     toDid,
		FriendDid: friendDid,
	}
}

func ProfileUpdatedEvent(updatedDid string, profile *types.ProfileData) *ServerEvent {
	return &ServerEvent{
		Type:        EventProfileUpdated,
		UpdatedDid:  updatedDid,
		ProfileData: profile,
	}
}

func ErrorEvent(msg string) *ServerEvent {
	return &ServerEvent{
		Type:  EventError,
		Error: msg,
	}
}
