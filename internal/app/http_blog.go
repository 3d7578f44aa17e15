package app

import (
	"net/http"
	"strings"

	"cryptorafts/api/internal/store"
)

func blogFilterFromQuery(r *http.Request) (store.BlogFilter, error) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return store.BlogFilter{}, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return store.BlogFilter{}, err
	}
	filter := store.BlogFilter{
		Status:   strings.TrimSpace(q.Get("status")),
		Category: strings.TrimSpace(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("q")),
		Tag:      strings.ToLower(strings.TrimSpace(q.Get("tag"))),
		Limit:    limit,
		Offset:   offset,
	}
	if raw := q.Get("featured"); raw != "" {
		featured := raw == "true"
		filter.Featured = &featured
	}
	return filter, nil
}

// routePublicBlog serves the unauthenticated blog and the cron trigger.
func (s *HTTPServer) routePublicBlog(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 4 && parts[2] == "cron" && parts[3] == "auto-post" {
		if r.Method != http.MethodPost && r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		secret := bearerToken(r)
		if secret == "" {
			secret = strings.TrimSpace(r.Header.Get("X-Cron-Secret"))
		}
		published, err := s.service.RunScheduledPublish(r.Context(), secret)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "published": published})
		return
	}

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		filter, err := blogFilterFromQuery(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		items, err := s.service.ListPublishedPosts(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"posts": items})
		return

	case len(parts) == 3 && r.Method == http.MethodGet:
		payload, err := s.service.ReadPost(r.Context(), parts[2])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return

	case len(parts) == 4 && r.Method == http.MethodPost && (parts[3] == "like" || parts[3] == "share"):
		payload, err := s.service.CountEngagement(r.Context(), parts[2], parts[3]+"s")
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// routeAdminBlog serves /api/admin/blog/*. parts starts at "blog".
func (s *HTTPServer) routeAdminBlog(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			filter, err := blogFilterFromQuery(r)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			items, err := s.service.AdminListPosts(r.Context(), session, filter)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusOK, map[string]any{"posts": items})
		case http.MethodPost:
			var body BlogInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.CreatePost(r.Context(), session, body)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	postID := parts[1]
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.AdminGetPost(r.Context(), session, postID)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPut:
			var body BlogInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.UpdatePost(r.Context(), session, postID, body)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeletePost(r.Context(), session, postID); err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	switch {
	case len(parts) == 3 && parts[2] == "publish" && r.Method == http.MethodPost:
		var body PublishInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		payload, err := s.service.PublishPost(r.Context(), session, postID, body)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true

	case len(parts) == 3 && parts[2] == "unpublish" && r.Method == http.MethodPost:
		payload, err := s.service.UnpublishPost(r.Context(), session, postID)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true

	case len(parts) == 3 && parts[2] == "revisions" && r.Method == http.MethodGet:
		items, err := s.service.PostRevisions(r.Context(), session, postID)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"revisions": items})
		return true

	case len(parts) == 4 && parts[2] == "revisions" && r.Method == http.MethodGet:
		payload, err := s.service.PostRevision(r.Context(), session, postID, parts[3])
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true

	case len(parts) == 3 && parts[2] == "compare" && r.Method == http.MethodGet:
		payload, err := s.service.ComparePostRevisions(r.Context(), session, postID, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true
	}
	return false
}
