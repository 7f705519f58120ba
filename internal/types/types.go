package types

import "time"

// FileAttachment describes one encrypted file attached to a message. The
// blob itself lives in external storage; only the pointer travels here.
type FileAttachment struct {
	FileUrl  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
}

// MessageContent is the opaque ciphertext payload delivered inline with
// new_message events so clients don't have to re-fetch the record from
// the sender's PDS.
type MessageContent struct {
	SenderDid  string           `json:"senderDid"`
	Ciphertext string           `json:"ciphertext"`
	Nonce      string           `json:"nonce"`
	CreatedAt  string           `json:"createdAt"`
	Files      []FileAttachment `json:"files,omitempty"`
}

// MessageRef is the local index entry for one remote message record.
// No plaintext, only the pointer and ordering metadata.
type MessageRef struct {
	Id        int64     `json:"id"`
	RoomId    string    `json:"roomId"`
	RecordUri string    `json:"recordUri"`
	SenderDid string    `json:"senderDid"`
	CreatedAt time.Time `json:"createdAt"`
}

type RoomSummary struct {
	RoomId        string     `json:"roomId"`
	MemberCount   int        `json:"memberCount"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	UnreadCount   int        `json:"unreadCount"`
}

type Member struct {
	Did         string `json:"did"`
	PdsEndpoint string `json:"pdsEndpoint"`
}

type FriendRequest struct {
	Id        int64     `json:"id"`
	FromDid   string    `json:"fromDid"`
	ToDid     string    `json:"toDid"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Friend struct {
	Did       string    `json:"did"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProfileData is forwarded verbatim with profile_updated events.
type ProfileData struct {
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
	AvatarUrl   string `json:"avatarUrl,omitempty"`
}
