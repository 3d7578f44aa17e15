package app

import (
	"net/http"

	"cryptorafts/api/internal/rbac"
)

// routeAdmin serves /api/admin/*. Every service call re-checks the admin
// action; the early check keeps unknown admin paths from leaking 404s to
// non-admins.
func (s *HTTPServer) routeAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if !s.service.Can(session.Role, rbac.ActionAdmin) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return true
	}
	if len(parts) < 3 {
		return false
	}
	switch parts[2] {
	case "verifications":
		return s.routeAdminVerifications(w, r, session, parts[2:])
	case "users":
		return s.routeAdminUsers(w, r, session, parts[2:])
	case "blog":
		return s.routeAdminBlog(w, r, session, parts[2:])
	case "stats":
		if len(parts) != 3 || r.Method != http.MethodGet {
			return false
		}
		payload, err := s.service.AdminStats(r.Context(), session)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true
	}
	return false
}

// parts starts at "verifications".
func (s *HTTPServer) routeAdminVerifications(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		items, err := s.service.PendingVerifications(r.Context(), session, r.URL.Query().Get("kind"))
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"verifications": items})
		return true

	case len(parts) == 2 && parts[1] == "approve-all" && r.Method == http.MethodPost:
		result, err := s.service.ApproveAll(r.Context(), session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, result)
		return true

	case len(parts) == 3 && parts[2] == "decide" && r.Method == http.MethodPost:
		var body DecisionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		payload, err := s.service.DecideVerification(r.Context(), session, parts[1], body)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true
	}
	return false
}

// parts starts at "users".
func (s *HTTPServer) routeAdminUsers(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		items, err := s.service.ListUsers(r.Context(), session, r.URL.Query().Get("role"))
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": items})
		return true

	case len(parts) == 3 && parts[2] == "role" && r.Method == http.MethodPut:
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		if err := s.service.SetUserRole(r.Context(), parts[1], body.Role); err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "userId": parts[1], "role": body.Role})
		return true
	}
	return false
}
