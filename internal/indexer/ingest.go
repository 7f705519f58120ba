package indexer

import (
	"fmt"

	"github.com/nodetalk/appview/internal/database"
	"github.com/nodetalk/appview/internal/gateway"
	"github.com/nodetalk/appview/internal/pds"
	"github.com/nodetalk/appview/internal/stats"
	"github.com/nodetalk/appview/internal/types"
)

// Ingest indexes one message record. It returns (nil, nil) when the record
// is already indexed or malformed. The insert is an atomic conditional
// insert keyed on the record URI, so a poller tick and an immediate-notify
// call racing on the same record produce exactly one MessageRef and at most
// one notification fanout.
func (i *Indexer) Ingest(rec pds.Record, senderDid string, notify bool) (*database.MessageRef, error) {
	if rec.Value.RoomId == "" {
		i.log.Printf("record %q has no roomId, skipping", rec.Uri)
		return nil, nil
	}

	ref, err := i.db.InsertMessageRef(database.InsertMessageRefParams{
		RoomId:    rec.Value.RoomId,
		RecordUri: rec.Uri,
		SenderDid: senderDid,
		CreatedAt: recordCreatedAt(rec),
	})
	if err != nil {
		return nil, fmt.Errorf("insert message ref: %w", err)
	}
	if ref == nil {
		// already indexed by the other ingestion path
		i.stats.Incr(stats.DuplicateRecords)
		return nil, nil
	}

	i.stats.Incr(stats.IndexedMessages)

	if err := i.db.UpdateRoomLastMessage(*ref); err != nil {
		return ref, fmt.Errorf("update room last message: %w", err)
	}

	if notify {
		i.notifyMembers(rec, *ref, senderDid)
	}

	return ref, nil
}

// notifyMembers pushes a new_message event to each room member's identity
// subscriptions, ciphertext inline so clients need not re-fetch the record.
// Delivery problems are invisible to the sender; the pull APIs remain the
// source of truth.
func (i *Indexer) notifyMembers(rec pds.Record, ref database.MessageRef, senderDid string) {
	members, err := i.db.ListMembers(ref.RoomId)
	if err != nil {
		i.log.Printf("list members for room %q: %v", ref.RoomId, err)
		return
	}

	event := gateway.NewMessageEvent(ref.RoomId, ref.RecordUri, messageContent(rec, senderDid))
	for _, m := range members {
		i.notifier.PushToIdentity(m.MemberDid, event)
	}
}

func messageContent(rec pds.Record, senderDid string) *types.MessageContent {
	content := &types.MessageContent{
		SenderDid:  senderDid,
		Ciphertext: rec.Value.Ciphertext,
		Nonce:      rec.Value.Nonce,
		CreatedAt:  rec.Value.CreatedAt,
	}

	for _, f := range rec.Value.Files {
		content.Files = append(content.Files, types.FileAttachment{
			FileUrl:  f.FileUrl,
			FileName: f.FileName,
			MimeType: f.MimeType,
		})
	}

	// legacy single-file fields predate the files array
	if len(content.Files) == 0 && rec.Value.FileUrl != "" {
		content.Files = []types.FileAttachment{{
			FileUrl:  rec.Value.FileUrl,
			FileName: rec.Value.FileName,
			MimeType: rec.Value.MimeType,
		}}
	}

	return content
}
