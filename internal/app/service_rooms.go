package app

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"cryptorafts/api/internal/notify"
	"cryptorafts/api/internal/raftai"
	"cryptorafts/api/internal/rbac"
	"cryptorafts/api/internal/store"
	"cryptorafts/api/internal/util"
)

const (
	maxMessageLength     = 5000
	maxEmojiLength       = 16
	defaultMessagePage   = 50
	maxMessagePage       = 200
	assistantHistorySize = 50
	defaultNotifications = 50
	maxNotifications     = 100
)

func roomPayload(r store.Room) map[string]any {
	memory := r.RaftAIMemory
	if memory == nil {
		memory = map[string]any{}
	}
	return map[string]any{
		"id":             r.ID,
		"type":           r.Type,
		"name":           r.Name,
		"projectId":      r.ProjectID,
		"createdBy":      r.CreatedBy,
		"raftaiMemory":   memory,
		"lastActivityAt": r.LastActivityAt.UTC().Format(time.RFC3339),
		"messageCount":   r.MessageCount,
		"createdAt":      r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func messagePayload(m store.Message) map[string]any {
	mentions := m.Mentions
	if mentions == nil {
		mentions = []string{}
	}
	return map[string]any{
		"id":              m.ID,
		"roomId":          m.RoomID,
		"senderId":        m.SenderID,
		"senderName":      m.SenderName,
		"type":            m.Type,
		"content":         m.Content,
		"mentions":        mentions,
		"clientMessageId": m.ClientMessageID,
		"createdAt":       m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func notificationPayload(n store.Notification) map[string]any {
	return map[string]any{
		"id":        n.ID,
		"type":      n.Type,
		"title":     n.Title,
		"body":      n.Body,
		"url":       n.URL,
		"roomId":    n.RoomID,
		"messageId": n.MessageID,
		"read":      n.Read,
		"createdAt": n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Service) ListRooms(ctx context.Context, session Session) ([]map[string]any, error) {
	if err := s.require(session, rbac.ActionChat); err != nil {
		return nil, err
	}
	rooms, err := s.store.ListRoomsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomPayload(room))
	}
	return out, nil
}

// memberRoom loads a room the session belongs to; anyone else gets 403.
func (s *Service) memberRoom(ctx context.Context, session Session, roomID string) (store.Room, []store.RoomMember, error) {
	if err := s.require(session, rbac.ActionChat); err != nil {
		return store.Room{}, nil, err
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return store.Room{}, nil, err
	}
	members, err := s.store.ListRoomMembers(ctx, roomID)
	if err != nil {
		return store.Room{}, nil, err
	}
	for _, m := range members {
		if m.UserID == session.UserID {
			return room, members, nil
		}
	}
	return store.Room{}, nil, domainError(http.StatusForbidden, "NOT_A_MEMBER", "You are not a member of this room", nil)
}

func (s *Service) GetRoom(ctx context.Context, session Session, roomID string) (map[string]any, error) {
	room, members, err := s.memberRoom(ctx, session, roomID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, m := range members {
		items = append(items, map[string]any{
			"userId":      m.UserID,
			"memberRole":  m.MemberRole,
			"displayName": m.DisplayName,
			"role":        m.Role,
			"joinedAt":    m.JoinedAt.UTC().Format(time.RFC3339),
		})
	}
	payload := roomPayload(room)
	payload["members"] = items
	return payload, nil
}

func (s *Service) ListMessages(ctx context.Context, session Session, roomID, before string, limit int) (map[string]any, error) {
	if _, _, err := s.memberRoom(ctx, session, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessagePage
	}
	if limit > maxMessagePage {
		limit = maxMessagePage
	}
	messages, err := s.store.ListMessages(ctx, roomID, before, limit)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.ListReactionCounts(ctx, roomID)
	if err != nil {
		return nil, err
	}
	reactions := make(map[string]map[string]int)
	for _, c := range counts {
		if reactions[c.MessageID] == nil {
			reactions[c.MessageID] = map[string]int{}
		}
		reactions[c.MessageID][c.Emoji] = c.Count
	}
	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		payload := messagePayload(m)
		if r := reactions[m.ID]; r != nil {
			payload["reactions"] = r
		} else {
			payload["reactions"] = map[string]int{}
		}
		items = append(items, payload)
	}
	return map[string]any{"messages": items}, nil
}

type MessageInput struct {
	Content         string   `json:"content"`
	ClientMessageID string   `json:"clientMessageId"`
	Mentions        []string `json:"mentions"`
}

// PostMessage stores a chat message and fans out notifications. A
// /raftai command additionally posts the assistant's reply. Reposting the
// same clientMessageId returns the original without side effects.
func (s *Service) PostMessage(ctx context.Context, session Session, roomID string, input MessageInput) (map[string]any, error) {
	room, members, err := s.memberRoom(ctx, session, roomID)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, validationError("content is required", nil)
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, validationError("content is too long", nil)
	}
	clientID := strings.TrimSpace(input.ClientMessageID)
	if len(clientID) > 128 {
		return nil, validationError("clientMessageId is too long", nil)
	}

	memberIDs := make(map[string]bool, len(members))
	for _, m := range members {
		memberIDs[m.UserID] = true
	}
	mentions := make([]string, 0, len(input.Mentions))
	seen := map[string]bool{}
	for _, id := range input.Mentions {
		if memberIDs[id] && id != session.UserID && !seen[id] {
			seen[id] = true
			mentions = append(mentions, id)
		}
	}

	cmd, isCommand := raftai.ParseCommand(content)
	if isCommand {
		if err := allow(s.aiLimiter, session.UserID); err != nil {
			return nil, err
		}
	}

	msg, created, err := s.store.InsertMessage(ctx, store.Message{
		ID:              util.NewID("msg"),
		RoomID:          roomID,
		SenderID:        session.UserID,
		SenderName:      session.UserName,
		Type:            "text",
		Content:         content,
		Mentions:        mentions,
		ClientMessageID: clientID,
	})
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"message": messagePayload(msg), "duplicate": !created}
	if !created {
		return payload, nil
	}

	recipients := make([]notify.Recipient, 0, len(members))
	for _, m := range members {
		if m.UserID == session.UserID || m.UserID == RaftAIUserID {
			continue
		}
		recipients = append(recipients, notify.Recipient{UserID: m.UserID, Role: m.Role})
	}
	report := s.notifier.FanOutMessage(ctx, notify.MessageEvent{
		RoomID:     roomID,
		MessageID:  msg.ID,
		SenderID:   session.UserID,
		SenderName: session.UserName,
		Content:    content,
		Mentions:   mentions,
		Recipients: recipients,
	})
	payload["notified"] = report.Delivered
	if report.Failed > 0 {
		s.log.Warn("message fan-out incomplete", "room", roomID, "message", msg.ID, "failed", report.Failed)
	}

	if isCommand {
		reply, err := s.runAssistant(ctx, room, cmd)
		if err != nil {
			return nil, err
		}
		payload["reply"] = messagePayload(reply)
	}
	return payload, nil
}

func (s *Service) runAssistant(ctx context.Context, room store.Room, cmd raftai.Command) (store.Message, error) {
	history, err := s.store.ListMessages(ctx, room.ID, "", assistantHistorySize)
	if err != nil {
		return store.Message{}, err
	}
	roomCtx := raftai.RoomContext{
		RoomType: room.Type,
		RoomName: room.Name,
		Memory:   room.RaftAIMemory,
		Messages: make([]raftai.HistoryMessage, 0, len(history)),
	}
	for _, m := range history {
		if m.SenderID == RaftAIUserID {
			continue
		}
		if _, isCommand := raftai.ParseCommand(m.Content); isCommand {
			continue
		}
		roomCtx.Messages = append(roomCtx.Messages, raftai.HistoryMessage{SenderName: m.SenderName, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	reply, err := s.assistant.Run(ctx, cmd, roomCtx)
	if err != nil {
		return store.Message{}, err
	}
	msg, _, err := s.store.InsertMessage(ctx, store.Message{
		ID:         util.NewID("msg"),
		RoomID:     room.ID,
		SenderID:   RaftAIUserID,
		SenderName: "RaftAI",
		Type:       "raftai",
		Content:    reply.Text,
	})
	if err != nil {
		return store.Message{}, err
	}

	memory := make(map[string]any, len(room.RaftAIMemory)+2)
	for k, v := range room.RaftAIMemory {
		memory[k] = v
	}
	memory["lastCommand"] = reply.Command
	memory["lastCommandAt"] = s.now().Format(time.RFC3339)
	if err := s.store.UpdateRoomMemory(ctx, room.ID, memory); err != nil {
		s.log.Warn("raftai memory update failed", "room", room.ID, "error", err.Error())
	}
	s.log.Info("raftai command", "room", room.ID, "command", reply.Command, "source", reply.Source)
	return msg, nil
}

// ToggleReaction adds or removes the caller's emoji. Adding one notifies the
// author unless they reacted to their own message.
func (s *Service) ToggleReaction(ctx context.Context, session Session, roomID, messageID, emoji string) (map[string]any, error) {
	_, members, err := s.memberRoom(ctx, session, roomID)
	if err != nil {
		return nil, err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return nil, validationError("emoji is required", nil)
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RoomID != roomID {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	added, err := s.store.ToggleReaction(ctx, messageID, session.UserID, emoji)
	if err != nil {
		return nil, err
	}
	if added && msg.SenderID != session.UserID && msg.SenderID != RaftAIUserID {
		authorRole := ""
		for _, m := range members {
			if m.UserID == msg.SenderID {
				authorRole = m.Role
			}
		}
		if err := s.notifier.Notify(ctx, store.Notification{
			UserID:    msg.SenderID,
			Type:      notify.TypeReaction,
			Title:     session.UserName + " reacted " + emoji,
			Body:      util.Truncate(msg.Content, 100),
			URL:       notify.RoleMessagesURL(authorRole, roomID),
			RoomID:    roomID,
			MessageID: messageID,
		}); err != nil {
			s.log.Warn("reaction notification failed", "message", messageID, "error", err.Error())
		}
	}
	return map[string]any{"added": added, "emoji": emoji, "messageId": messageID}, nil
}

func (s *Service) ListNotifications(ctx context.Context, session Session, unreadOnly bool, limit int) (map[string]any, error) {
	if limit <= 0 {
		limit = defaultNotifications
	}
	if limit > maxNotifications {
		limit = maxNotifications
	}
	items, err := s.store.ListNotifications(ctx, session.UserID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, notificationPayload(item))
	}
	unread, err := s.notifier.Unread(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"notifications": out, "unread": unread}, nil
}

func (s *Service) UnreadCount(ctx context.Context, session Session) (int, error) {
	return s.notifier.Unread(ctx, session.UserID)
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	changed, err := s.store.MarkNotificationRead(ctx, session.UserID, notificationID)
	if err != nil {
		return err
	}
	if changed {
		s.notifier.MarkedRead(ctx, session.UserID, 1, false)
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, session Session) (int, error) {
	count, err := s.store.MarkAllNotificationsRead(ctx, session.UserID)
	if err != nil {
		return 0, err
	}
	s.notifier.MarkedRead(ctx, session.UserID, count, true)
	return count, nil
}
