package app

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cryptorafts/api/internal/export"
)

// routeOnboarding serves /api/me, /api/onboarding/* and /api/verification/*.
func (s *HTTPServer) routeOnboarding(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	switch {
	case len(parts) == 2 && parts[1] == "me":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		payload, err := s.service.Me(r.Context(), session)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true

	case len(parts) == 3 && parts[1] == "onboarding" && parts[2] == "role":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		payload, err := s.service.SelectRole(r.Context(), session, body.Role)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true

	case len(parts) == 3 && parts[1] == "onboarding" && parts[2] == "profile":
		if r.Method != http.MethodPut && r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		var body ProfileInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		payload, err := s.service.UpdateProfile(r.Context(), session, body)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, payload)
		return true

	case len(parts) == 3 && parts[1] == "verification":
		kind := parts[2]
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.VerificationStatus(r.Context(), session, kind)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPost:
			var body VerificationInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.SubmitVerification(r.Context(), session, kind, body)
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
	return false
}

// routeProjects serves /api/projects/* and /api/dealflow.
func (s *HTTPServer) routeProjects(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if parts[1] == "dealflow" {
		if len(parts) != 2 {
			return false
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		limit, err := queryInt(r, "limit", 20)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		items, err := s.service.Dealflow(r.Context(), session, limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": items})
		return true
	}

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListMyProjects(r.Context(), session)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": items})
		case http.MethodPost:
			var body ProjectInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.CreateProject(r.Context(), session, body)
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

	projectID := parts[2]
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetProject(r.Context(), session, projectID)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPut:
			var body ProjectInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.UpdateProject(r.Context(), session, projectID, body)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusOK, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	if len(parts) == 4 && parts[3] == "analyses" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		items, err := s.service.ListAnalyses(r.Context(), session, projectID)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"analyses": items})
		return true
	}

	if len(parts) == 4 && (parts[3] == "submit" || parts[3] == "analyze" || parts[3] == "accept") {
		var (
			payload map[string]any
			err     error
			status  = http.StatusOK
		)
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		switch parts[3] {
		case "submit":
			payload, err = s.service.SubmitProject(r.Context(), session, projectID)
		case "analyze":
			payload, err = s.service.AnalyzeProject(r.Context(), session, projectID)
		case "accept":
			payload, err = s.service.AcceptProject(r.Context(), session, projectID)
			if err == nil && payload["created"] == true {
				status = http.StatusCreated
			}
		default:
			return false
		}
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, status, payload)
		return true
	}

	if len(parts) == 5 && parts[3] == "export" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		format, ok := export.ParseFormat(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
		if !ok {
			writeError(w, http.StatusBadRequest, "INVALID_FORMAT", "format must be pdf or html", nil)
			return true
		}
		var (
			result *export.Result
			err    error
		)
		switch parts[4] {
		case "report":
			result, err = s.service.ExportReport(r.Context(), session, projectID, format)
		case "whitepaper":
			result, err = s.service.ExportWhitepaper(r.Context(), session, projectID, format)
		default:
			return false
		}
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeFile(w, result.MimeType, result.Filename, result.Data)
		return true
	}

	return false
}

// routeFiles serves multipart uploads on /api/files and downloads on
// /api/files/{key}, where the key itself contains slashes.
func (s *HTTPServer) routeFiles(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if len(parts) == 2 {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return true
		}
		s.handleUpload(w, r, session)
		return true
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return true
	}
	key := strings.Join(parts[2:], "/")
	body, file, err := s.service.Download(r.Context(), session, key)
	if err != nil {
		writeServiceError(w, err)
		return true
	}
	defer body.Close()
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+file.FileName+"\"")
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.service.log.Warn("download interrupted", "key", key, "error", err.Error())
	}
	return true
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, session Session) {
	maxBytes := s.service.cfg.MaxUploadBytes
	// Multipart framing needs headroom over the file limit itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit", map[string]any{"maxBytes": maxBytes})
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return
	}
	defer file.Close()

	payload, err := s.service.Upload(r.Context(), session, UploadInput{
		Purpose:  r.FormValue("purpose"),
		FileName: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	payload, err := s.service.Search(r.Context(), session, r.URL.Query().Get("q"), r.URL.Query().Get("type"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
