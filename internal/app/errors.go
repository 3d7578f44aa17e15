package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"cryptorafts/api/internal/auth"
	"cryptorafts/api/internal/blob"
	"cryptorafts/api/internal/export"
	"cryptorafts/api/internal/gitrepo"
	sessionstore "cryptorafts/api/internal/session"
	"cryptorafts/api/internal/store"
)

// DomainError is a failure the caller can act on. Details is serialised
// verbatim into the response body.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RetryAfter returns the wait in seconds carried by 429 errors.
func (e *DomainError) RetryAfter() (int, bool) {
	if e == nil || e.Status != http.StatusTooManyRequests {
		return 0, false
	}
	d, ok := e.Details.(map[string]any)
	if !ok {
		return 0, false
	}
	seconds, ok := d["retryAfter"].(int)
	return seconds, ok && seconds > 0
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

// mapError turns any service error into a status, code, message and details.
// Unknown errors become an opaque 500.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, gitrepo.ErrNoHistory), errors.Is(err, gitrepo.ErrUnknownRevision):
		return http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found", nil
	case errors.Is(err, export.ErrNoAnalysis):
		return http.StatusNotFound, "NO_ANALYSIS", "Project has not been analysed yet", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF rendering is unavailable; request format=html", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, sessionstore.ErrSessionNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
