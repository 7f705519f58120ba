package database

import (
	"database/sql"
	"fmt"
	"time"
)

const insertMemberQuery = "INSERT INTO room_members (room_id, member_did, pds_endpoint, created_at) " +
	"VALUES ($1, $2, $3, $4) ON CONFLICT (room_id, member_did) DO NOTHING RETURNING room_id"

func (db *PgAppViewRepository) InsertMessageRef(params InsertMessageRefParams) (*MessageRef, error) {
	res := db.conn.QueryRow(
		"INSERT INTO msg_index (room_id, record_uri, sender_did, created_at) "+
			"VALUES ($1, $2, $3, $4) ON CONFLICT (record_uri) DO NOTHING "+
			"RETURNING id, room_id, record_uri, sender_did, created_at",
		params.RoomId,
		params.RecordUri,
		params.SenderDid,
		params.CreatedAt,
	)

	var ref MessageRef
	err := res.Scan(
		&ref.Id,
		&ref.RoomId,
		&ref.RecordUri,
		&ref.SenderDid,
		&ref.CreatedAt,
	)
	if err == sql.ErrNoRows {
		// record_uri already indexed
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &ref, nil
}

func (db *PgAppViewRepository) UpdateRoomLastMessage(ref MessageRef) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET last_message_id = $2, last_message_at = $3 "+
			"WHERE room_id = $1 AND (last_message_at IS NULL OR last_message_at < $3 "+
			"OR (last_message_at = $3 AND last_message_id < $2))",
		ref.RoomId,
		ref.Id,
		ref.CreatedAt,
	)

	return err
}

func (db *PgAppViewRepository) LatestIndexedAt(senderDid string) (time.Time, error) {
	row := db.conn.QueryRow(
		"SELECT max(created_at) FROM msg_index WHERE sender_did = $1",
		senderDid,
	)

	var latest sql.NullTime
	if err := row.Scan(&latest); err != nil {
		return time.Time{}, err
	}
	if !latest.Valid {
		return time.Time{}, nil
	}

	return latest.Time, nil
}

func (db *PgAppViewRepository) GetRoomMessages(roomId string, afterId int64, limit int) ([]MessageRef, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, room_id, record_uri, sender_did, created_at FROM msg_index "+
			"WHERE room_id = $1 AND id > $2 ORDER BY created_at ASC, id ASC LIMIT $3",
		roomId,
		afterId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []MessageRef
	for rows.Next() {
		var ref MessageRef
		err := rows.Scan(
			&ref.Id,
			&ref.RoomId,
			&ref.RecordUri,
			&ref.SenderDid,
			&ref.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

func (db *PgAppViewRepository) UpsertMember(roomId, memberDid, pdsEndpoint string) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(
		"INSERT INTO rooms (room_id, created_at) VALUES ($1, $2) ON CONFLICT (room_id) DO NOTHING",
		roomId,
		time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}

	var insertedRoomId string
	err = tx.QueryRow(
		insertMemberQuery,
		roomId,
		memberDid,
		pdsEndpoint,
		time.Now().UTC(),
	).Scan(&insertedRoomId)

	created := true
	if err == sql.ErrNoRows {
		// existing membership, refresh the endpoint
		created = false
		_, err = tx.Exec(
			"UPDATE room_members SET pds_endpoint = $3 WHERE room_id = $1 AND member_did = $2",
			roomId,
			memberDid,
			pdsEndpoint,
		)
	}
	if err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}

	return created, nil
}

func (db *PgAppViewRepository) DeleteMember(roomId, memberDid string) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.Exec(
		"DELETE FROM room_members WHERE room_id = $1 AND member_did = $2",
		roomId,
		memberDid,
	)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return 0, err
	}

	var remaining int
	err = tx.QueryRow(
		"SELECT count(*) FROM room_members WHERE room_id = $1",
		roomId,
	).Scan(&remaining)
	if err != nil {
		return 0, err
	}

	if remaining == 0 {
		if _, err = tx.Exec("DELETE FROM rooms WHERE room_id = $1", roomId); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	return remaining, nil
}

func (db *PgAppViewRepository) ListMembers(roomId string) ([]Member, error) {
	rows, err := db.conn.Query(
		"SELECT room_id, member_did, pds_endpoint, last_read_message_id, created_at "+
			"FROM room_members WHERE room_id = $1 ORDER BY created_at ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		err := rows.Scan(
			&m.RoomId,
			&m.MemberDid,
			&m.PdsEndpoint,
			&m.LastReadMessageId,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PgAppViewRepository) ListRoomsForMember(memberDid string) ([]RoomSummary, error) {
	query := `
		SELECT
			r.room_id,
			(SELECT count(*) FROM room_members rm2 WHERE rm2.room_id = r.room_id) AS member_count,
			r.last_message_at,
			(SELECT count(*) FROM msg_index m
				WHERE m.room_id = r.room_id
				AND (rm.last_read_message_id IS NULL OR m.id > rm.last_read_message_id)) AS unread_count
		FROM rooms r
		JOIN room_members rm ON rm.room_id = r.room_id
		WHERE rm.member_did = $1
		ORDER BY r.last_message_at DESC NULLS LAST, r.created_at DESC
`

	rows, err := db.conn.Query(query, memberDid)
	if err != nil {
		return nil, fmt.Errorf("list rooms for member: %w", err)
	}
	defer rows.Close()

	var summaries []RoomSummary
	for rows.Next() {
		var s RoomSummary
		err := rows.Scan(
			&s.RoomId,
			&s.MemberCount,
			&s.LastMessageAt,
			&s.UnreadCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

func (db *PgAppViewRepository) UpdateLastRead(roomId, memberDid string, messageId int64) error {
	var res sql.Result
	var err error

	if messageId == 0 {
		// no explicit ref: catch up to the room's current last message
		res, err = db.conn.Exec(
			"UPDATE room_members rm SET last_read_message_id = r.last_message_id "+
				"FROM rooms r WHERE r.room_id = rm.room_id "+
				"AND rm.room_id = $1 AND rm.member_did = $2",
			roomId,
			memberDid,
		)
	} else {
		// the join guarantees the ref belongs to the same room
		res, err = db.conn.Exec(
			"UPDATE room_members rm SET last_read_message_id = m.id "+
				"FROM msg_index m WHERE m.id = $3 AND m.room_id = $1 "+
				"AND rm.room_id = $1 AND rm.member_did = $2",
			roomId,
			memberDid,
			messageId,
		)
	}
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgAppViewRepository) UnreadCount(roomId, memberDid string) (int, error) {
	row := db.conn.QueryRow(
		"SELECT count(*) FROM msg_index m "+
			"JOIN room_members rm ON rm.room_id = m.room_id "+
			"WHERE rm.room_id = $1 AND rm.member_did = $2 "+
			"AND (rm.last_read_message_id IS NULL OR m.id > rm.last_read_message_id)",
		roomId,
		memberDid,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

func (db *PgAppViewRepository) AreFriends(did1, did2 string) (bool, error) {
	// edges are stored symmetrically, one direction suffices
	row := db.conn.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM friends WHERE did1 = $1 AND did2 = $2)",
		did1,
		did2,
	)

	var exists bool
	err := row.Scan(&exists)

	return exists, err
}

func (db *PgAppViewRepository) HasPendingRequest(did1, did2 string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM friend_requests "+
			"WHERE ((from_did = $1 AND to_did = $2) OR (from_did = $2 AND to_did = $1)) "+
			"AND status = 'pending')",
		did1,
		did2,
	)

	var exists bool
	err := row.Scan(&exists)

	return exists, err
}

func (db *PgAppViewRepository) UpsertFriendRequest(fromDid, toDid string) (FriendRequest, error) {
	res := db.conn.QueryRow(
		"INSERT INTO friend_requests (from_did, to_did, status, created_at, updated_at) "+
			"VALUES ($1, $2, 'pending', $3, $3) "+
			"ON CONFLICT (from_did, to_did) DO UPDATE SET status = 'pending', updated_at = $3 "+
			"RETURNING id, from_did, to_did, status, created_at, updated_at",
		fromDid,
		toDid,
		time.Now().UTC(),
	)

	var fr FriendRequest
	err := res.Scan(
		&fr.Id,
		&fr.FromDid,
		&fr.ToDid,
		&fr.Status,
		&fr.CreatedAt,
		&fr.UpdatedAt,
	)

	return fr, err
}

func (db *PgAppViewRepository) GetFriendRequest(id int64) (FriendRequest, error) {
	row := db.conn.QueryRow(
		"SELECT id, from_did, to_did, status, created_at, updated_at "+
			"FROM friend_requests WHERE id = $1 LIMIT 1",
		id,
	)

	var fr FriendRequest
	err := row.Scan(
		&fr.Id,
		&fr.FromDid,
		&fr.ToDid,
		&fr.Status,
		&fr.CreatedAt,
		&fr.UpdatedAt,
	)

	return fr, err
}

func (db *PgAppViewRepository) SetFriendRequestStatus(id int64, status string) error {
	_, err := db.conn.Exec(
		"UPDATE friend_requests SET status = $2, updated_at = $3 WHERE id = $1",
		id,
		status,
		time.Now().UTC(),
	)

	return err
}

func (db *PgAppViewRepository) DeleteFriendRequest(id int64) error {
	_, err := db.conn.Exec("DELETE FROM friend_requests WHERE id = $1", id)
	return err
}

func (db *PgAppViewRepository) listRequests(query, did string) ([]FriendRequest, error) {
	rows, err := db.conn.Query(query, did)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []FriendRequest
	for rows.Next() {
		var fr FriendRequest
		err := rows.Scan(
			&fr.Id,
			&fr.FromDid,
			&fr.ToDid,
			&fr.Status,
			&fr.CreatedAt,
			&fr.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		requests = append(requests, fr)
	}

	return requests, rows.Err()
}

func (db *PgAppViewRepository) ListReceivedRequests(did string) ([]FriendRequest, error) {
	return db.listRequests(
		"SELECT id, from_did, to_did, status, created_at, updated_at FROM friend_requests "+
			"WHERE to_did = $1 AND status = 'pending' ORDER BY created_at DESC",
		did,
	)
}

func (db *PgAppViewRepository) ListSentRequests(did string) ([]FriendRequest, error) {
	return db.listRequests(
		"SELECT id, from_did, to_did, status, created_at, updated_at FROM friend_requests "+
			"WHERE from_did = $1 AND status = 'pending' ORDER BY created_at DESC",
		did,
	)
}

func (db *PgAppViewRepository) InsertFriendEdges(did1, did2 string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	_, err = tx.Exec(
		"INSERT INTO friends (did1, did2, created_at) VALUES ($1, $2, $3) ON CONFLICT (did1, did2) DO NOTHING",
		did1, did2, now,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		"INSERT INTO friends (did1, did2, created_at) VALUES ($1, $2, $3) ON CONFLICT (did1, did2) DO NOTHING",
		did2, did1, now,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgAppViewRepository) DeleteFriendEdges(did1, did2 string) error {
	_, err := db.conn.Exec(
		"DELETE FROM friends WHERE (did1 = $1 AND did2 = $2) OR (did1 = $2 AND did2 = $1)",
		did1,
		did2,
	)

	return err
}

func (db *PgAppViewRepository) ListFriends(did string) ([]FriendEdge, error) {
	rows, err := db.conn.Query(
		"SELECT did1, did2, created_at FROM friends WHERE did1 = $1 ORDER BY created_at DESC",
		did,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []FriendEdge
	for rows.Next() {
		var e FriendEdge
		if err := rows.Scan(&e.Did1, &e.Did2, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}

	return edges, rows.Err()
}
