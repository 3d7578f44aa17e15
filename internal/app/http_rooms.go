package app

import (
	"net/http"
	"strings"
)

// routeRooms serves /api/rooms, /api/rooms/{id}, its messages and reactions.
func (s *HTTPServer) routeRooms(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if len(parts) == 2 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		items, err := s.service.ListRooms(r.Context(), session)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"rooms": items})
		return true
	}

	roomID := parts[2]
	if len(parts) == 3 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		payload, err := s.service.GetRoom(r.Context(), session, roomID)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true
	}

	if parts[3] != "messages" {
		return false
	}

	if len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			limit, err := queryInt(r, "limit", 50)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			payload, err := s.service.ListMessages(r.Context(), session, roomID, strings.TrimSpace(r.URL.Query().Get("before")), limit)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPost:
			var body MessageInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.PostMessage(r.Context(), session, roomID, body)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			status := http.StatusCreated
			if payload["duplicate"] == true {
				status = http.StatusOK
			}
			writeJSON(w, status, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	if len(parts) == 6 && parts[5] == "reactions" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		var body struct {
			Emoji string `json:"emoji"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		payload, err := s.service.ToggleReaction(r.Context(), session, roomID, parts[4], body.Emoji)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true
	}

	return false
}

// routeNotifications serves the signed-in user's notification feed.
func (s *HTTPServer) routeNotifications(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		unreadOnly := r.URL.Query().Get("unread") == "true"
		payload, err := s.service.ListNotifications(r.Context(), session, unreadOnly, limit)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true

	case len(parts) == 3 && parts[2] == "unread" && r.Method == http.MethodGet:
		count, err := s.service.UnreadCount(r.Context(), session)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"unread": count})
		return true

	case len(parts) == 3 && parts[2] == "read-all" && r.Method == http.MethodPost:
		count, err := s.service.MarkAllNotificationsRead(r.Context(), session)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "marked": count})
		return true

	case len(parts) == 4 && parts[3] == "read" && r.Method == http.MethodPost:
		if err := s.service.MarkNotificationRead(r.Context(), session, parts[2]); err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return true
	}
	return false
}

// routeTeam serves /api/team, /api/team/invitations and invitation acceptance.
func (s *HTTPServer) routeTeam(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if parts[1] == "invitations" {
		if len(parts) != 4 || parts[3] != "accept" {
			return false
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		payload, err := s.service.AcceptInvitation(r.Context(), session, parts[2])
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true
	}

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		items, err := s.service.ListTeam(r.Context(), session, r.URL.Query().Get("teamType"))
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": items})
		return true

	case len(parts) == 3 && parts[2] == "invitations":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		var body InvitationInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		payload, err := s.service.InviteTeamMember(r.Context(), session, body)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true
	}
	return false
}
