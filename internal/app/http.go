package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"cryptorafts/api/internal/ratelimit"
	"cryptorafts/api/internal/util"
)

// authAttemptsPerMinute bounds unauthenticated auth calls per client IP.
const authAttemptsPerMinute = 20

type HTTPServer struct {
	service     *Service
	corsOrigin  string
	public      map[string]http.HandlerFunc
	authLimiter *ratelimit.Limiter
	proxies     []netip.Prefix
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{
		service:     service,
		corsOrigin:  corsOrigin,
		authLimiter: ratelimit.PerMinute(authAttemptsPerMinute),
	}
	for _, entry := range service.cfg.TrustedProxies {
		prefix, err := parseProxy(entry)
		if err != nil {
			service.log.Warn("ignoring trusted proxy", "entry", entry, "error", err.Error())
			continue
		}
		s.proxies = append(s.proxies, prefix)
	}
	s.public = map[string]http.HandlerFunc{
		"GET /api/health":                       s.handleHealth,
		"HEAD /api/health":                      s.handleHealth,
		"GET /api/ready":                        s.handleReady,
		"HEAD /api/ready":                       s.handleReady,
		"POST /api/auth/signup":                 s.limitAuth(s.handleAuthSignUp),
		"POST /api/auth/signin":                 s.limitAuth(s.handleAuthSignIn),
		"POST /api/auth/verify-email":           s.limitAuth(s.handleAuthVerifyEmail),
		"POST /api/auth/verify-email/resend":    s.limitAuth(s.handleAuthResendVerification),
		"POST /api/auth/reset-password/request": s.limitAuth(s.handleAuthRequestReset),
		"POST /api/auth/reset-password":         s.limitAuth(s.handleAuthResetPassword),
		"GET /api/session":                      s.handleSessionStatus,
		"POST /api/session/refresh":             s.limitAuth(s.handleSessionRefresh),
		"POST /api/session/logout":              s.handleSessionLogout,
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// handle dispatches exact public routes first, then the public blog and
// invitation lookups, then everything that needs a session.
func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}
	if h, ok := s.public[r.Method+" "+strings.TrimSuffix(r.URL.Path, "/")]; ok {
		h(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case parts[1] == "blog":
		s.routePublicBlog(w, r, parts)
		return
	case parts[1] == "invitations" && len(parts) == 3 && r.Method == http.MethodGet:
		payload, err := s.service.LookupInvitation(r.Context(), parts[2])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	handled := false
	switch parts[1] {
	case "me", "onboarding", "verification":
		handled = s.routeOnboarding(w, r, session, parts)
	case "projects", "dealflow":
		handled = s.routeProjects(w, r, session, parts)
	case "files":
		handled = s.routeFiles(w, r, session, parts)
	case "search":
		if len(parts) == 2 && r.Method == http.MethodGet {
			s.handleSearch(w, r, session)
			handled = true
		}
	case "rooms":
		handled = s.routeRooms(w, r, session, parts)
	case "notifications":
		handled = s.routeNotifications(w, r, session, parts)
	case "team", "invitations":
		handled = s.routeTeam(w, r, session, parts)
	case "admin":
		handled = s.routeAdmin(w, r, session, parts)
	}
	if !handled {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleReady fails only on the database. Object storage is reported as
// degraded because uploads surface their own errors.
func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"storage":  map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.PingStorage(ctx); err != nil {
		checks["storage"] = map[string]any{"status": "degraded", "error": err.Error()}
	}

	status := "ready"
	if statusCode != http.StatusOK {
		status = "not_ready"
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     statusCode == http.StatusOK,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		status, _, _, _ := mapError(err)
		if status == http.StatusUnauthorized || status == http.StatusNotFound {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.service.log.Error("session lookup failed", "request_id", requestID(r.Context()), "error", err.Error())
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

// limitAuth rate limits a handler by client IP.
func (s *HTTPServer) limitAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := allow(s.authLimiter, "ip:"+s.clientIP(r)); err != nil {
			writeServiceError(w, err)
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = util.NewID("req")
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		defer func() {
			if p := recover(); p != nil {
				s.service.log.Error("handler panic", "request_id", id, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
				if !writer.wrote {
					writeError(writer, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
				}
			}
			fields := []any{
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", writer.status,
				"duration_ms", time.Since(started).Milliseconds(),
			}
			if writer.status >= http.StatusInternalServerError {
				s.service.log.Warn("request", fields...)
				return
			}
			s.service.log.Info("request", fields...)
		}()

		next.ServeHTTP(writer, r)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wrote {
		return
	}
	r.status = status
	r.wrote = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

// parseProxy accepts a bare address or a CIDR.
func parseProxy(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		return prefix.Masked(), err
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (s *HTTPServer) trusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range s.proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP is the connection peer unless that peer is a trusted proxy. Then
// X-Forwarded-For is walked right to left and the first untrusted hop wins.
func (s *HTTPServer) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !s.trusted(peer) {
		return host
	}

	client := peer
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		client = hop.Unmap()
		if !s.trusted(client) {
			break
		}
	}
	return client.String()
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Cron-Secret")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if seconds, ok := domainErr.RetryAfter(); ok {
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
	}
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

// writeFile sends an export or download with its own content type.
func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// decodeBody reads a JSON body into target. An empty body leaves target
// untouched.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validationError(key+" must be an integer", nil)
	}
	return parsed, nil
}
