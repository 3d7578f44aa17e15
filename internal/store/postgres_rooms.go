package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const roomColumns = `id, type, name, COALESCE(project_id, ''), created_by, raftai_memory, last_activity_at, message_count, created_at`

func scanRoom(row rowScanner) (Room, error) {
	var item Room
	var memoryRaw []byte
	if err := row.Scan(
		&item.ID,
		&item.Type,
		&item.Name,
		&item.ProjectID,
		&item.CreatedBy,
		&memoryRaw,
		&item.LastActivityAt,
		&item.MessageCount,
		&item.CreatedAt,
	); err != nil {
		return Room{}, err
	}
	item.RaftAIMemory = map[string]any{}
	_ = json.Unmarshal(memoryRaw, &item.RaftAIMemory)
	return item, nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	return scanRoom(s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, roomID))
}

// CreateRoom inserts a room with its members.
func (s *PostgresStore) CreateRoom(ctx context.Context, room Room, members []RoomMember) error {
	memory, err := encodeJSON(room.RaftAIMemory, "{}")
	if err != nil {
		return fmt.Errorf("marshal raftai memory: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin room tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rooms (id, type, name, project_id, created_by, raftai_memory)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6::jsonb)
	`, room.ID, room.Type, room.Name, room.ProjectID, room.CreatedBy, memory); err != nil {
		return wrapWriteError("insert room", err)
	}
	for _, member := range members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO room_members (room_id, user_id, member_role) VALUES ($1, $2, $3)
			ON CONFLICT (room_id, user_id) DO NOTHING
		`, room.ID, member.UserID, member.MemberRole); err != nil {
			return fmt.Errorf("insert room member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit room: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRoomsForUser(ctx context.Context, userID string) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.type, r.name, COALESCE(r.project_id, ''), r.created_by, r.raftai_memory, r.last_activity_at, r.message_count, r.created_at
		FROM rooms r
		JOIN room_members m ON m.room_id = r.id
		WHERE m.user_id=$1
		ORDER BY r.last_activity_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	items := make([]Room, 0)
	for rows.Next() {
		item, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListRoomMembers(ctx context.Context, roomID string) ([]RoomMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.room_id, m.user_id, m.member_role, m.joined_at, u.display_name, u.email, u.role
		FROM room_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id=$1
		ORDER BY m.joined_at, m.user_id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
	}
	defer rows.Close()

	items := make([]RoomMember, 0)
	for rows.Next() {
		var item RoomMember
		if err := rows.Scan(&item.RoomID, &item.UserID, &item.MemberRole, &item.JoinedAt, &item.DisplayName, &item.Email, &item.Role); err != nil {
			return nil, fmt.Errorf("scan room member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) IsRoomMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)
	`, roomID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check room member: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateRoomMemory(ctx context.Context, roomID string, memory map[string]any) error {
	encoded, err := encodeJSON(memory, "{}")
	if err != nil {
		return fmt.Errorf("marshal raftai memory: %w", err)
	}
	return s.execOne(ctx, "update room memory", `UPDATE rooms SET raftai_memory=$2::jsonb WHERE id=$1`, roomID, encoded)
}

// InsertMessage stores a message and bumps the room's activity counters in
// one transaction. A repeated ClientMessageID from the same sender returns
// the stored message with created=false and leaves the counters alone.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg Message) (Message, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, false, fmt.Errorf("begin message tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored, created, err := insertMessageTx(ctx, tx, msg)
	if err != nil {
		return Message{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Message{}, false, fmt.Errorf("commit message: %w", err)
	}
	return stored, created, nil
}

func insertMessageTx(ctx context.Context, tx dbtx, msg Message) (Message, bool, error) {
	var clientID any
	if msg.ClientMessageID != "" {
		clientID = msg.ClientMessageID
	}
	stored, err := scanMessage(tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, sender_name, type, content, mentions, client_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		ON CONFLICT (room_id, sender_id, client_message_id) WHERE client_message_id IS NOT NULL DO NOTHING
		RETURNING `+messageColumns,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Type, msg.Content, encodeStrings(msg.Mentions), clientID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		existing, lookupErr := scanMessage(tx.QueryRowContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE room_id=$1 AND sender_id=$2 AND client_message_id=$3
		`, msg.RoomID, msg.SenderID, msg.ClientMessageID))
		if lookupErr != nil {
			return Message{}, false, fmt.Errorf("lookup duplicate message: %w", lookupErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE rooms SET last_activity_at=$2, message_count=message_count+1 WHERE id=$1
	`, stored.RoomID, stored.CreatedAt); err != nil {
		return Message{}, false, fmt.Errorf("bump room activity: %w", err)
	}
	return stored, true, nil
}

const messageColumns = `id, room_id, sender_id, sender_name, type, content, mentions, COALESCE(client_message_id, ''), created_at`

func scanMessage(row rowScanner) (Message, error) {
	var item Message
	var mentionsRaw []byte
	if err := row.Scan(
		&item.ID,
		&item.RoomID,
		&item.SenderID,
		&item.SenderName,
		&item.Type,
		&item.Content,
		&mentionsRaw,
		&item.ClientMessageID,
		&item.CreatedAt,
	); err != nil {
		return Message{}, err
	}
	item.Mentions = decodeStrings(mentionsRaw)
	return item, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID))
}

// ListMessages returns up to limit messages older than before (all when
// before is empty), oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID, before string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM (
			SELECT * FROM messages
			WHERE room_id=$1
			  AND ($2='' OR created_at < (SELECT created_at FROM messages WHERE id=$2))
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`, roomID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		item, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

// ToggleReaction adds the reaction or removes it if already present. It
// reports whether the reaction now exists.
func (s *PostgresStore) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3
	`, messageID, userID, emoji)
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete reaction rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, messageID, userID, emoji); err != nil {
		return false, fmt.Errorf("insert reaction: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListReactionCounts(ctx context.Context, roomID string) ([]ReactionCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.message_id, r.emoji, COUNT(*)
		FROM message_reactions r
		JOIN messages m ON m.id = r.message_id
		WHERE m.room_id=$1
		GROUP BY r.message_id, r.emoji
		ORDER BY r.message_id, r.emoji
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list reaction counts: %w", err)
	}
	defer rows.Close()

	items := make([]ReactionCount, 0)
	for rows.Next() {
		var item ReactionCount
		if err := rows.Scan(&item.MessageID, &item.Emoji, &item.Count); err != nil {
			return nil, fmt.Errorf("scan reaction count: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reaction counts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertNotification(ctx context.Context, item Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, url, room_id, message_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
	`, item.ID, item.UserID, item.Type, item.Title, item.Body, item.URL, item.RoomID, item.MessageID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, body, url, COALESCE(room_id, ''), COALESCE(message_id, ''), read, created_at
		FROM notifications
		WHERE user_id=$1 AND (NOT $2 OR read=FALSE)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.Type,
			&item.Title,
			&item.Body,
			&item.URL,
			&item.RoomID,
			&item.MessageID,
			&item.Read,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND read=FALSE`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead reports whether the notification was unread before.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error) {
	var wasUnread bool
	err := s.db.QueryRowContext(ctx, `
		WITH prev AS (SELECT read FROM notifications WHERE id=$1 AND user_id=$2)
		UPDATE notifications n SET read=TRUE
		FROM prev
		WHERE n.id=$1 AND n.user_id=$2
		RETURNING NOT prev.read
	`, notificationID, userID).Scan(&wasUnread)
	if err != nil {
		return false, err
	}
	return wasUnread, nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE WHERE user_id=$1 AND read=FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read rows: %w", err)
	}
	return int(affected), nil
}
