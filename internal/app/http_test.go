package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cryptorafts/api/internal/store"
)

func doJSON(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodePayload(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func tokenFor(t *testing.T, svc *Service, userID string) string {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return session.Token
}

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(t, newFakeStore()), "*")
	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/health", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	fs := newFakeStore()
	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	server := NewHTTPServer(newTestService(t, fs), "*")

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	payload := decodePayload(t, rr)
	if payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", payload["status"])
	}
	checks := payload["checks"].(map[string]any)
	if checks["storage"].(map[string]any)["status"] != "ok" {
		t.Fatalf("expected storage ok, got %v", checks["storage"])
	}
}

func TestSignUpVerifySignInFlow(t *testing.T) {
	server := NewHTTPServer(newTestService(t, newFakeStore()), "*")
	handler := server.Handler()

	rr := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", `{"email":"Fran@Orbit.io","password":"correct-horse","displayName":"Fran","role":"founder"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	verifyToken, _ := decodePayload(t, rr)["devVerificationToken"].(string)
	if verifyToken == "" {
		t.Fatalf("expected dev verification token")
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", `{"email":"fran@orbit.io","password":"correct-horse","displayName":"Fran"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", `{"email":"fran@orbit.io","password":"correct-horse"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unverified signin: expected 403, got %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/verify-email", "", `{"token":"`+verifyToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", `{"email":"fran@orbit.io","password":"wrong-password"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", `{"email":"fran@orbit.io","password":"correct-horse"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	session := decodePayload(t, rr)
	accessToken, _ := session["accessToken"].(string)
	refreshToken, _ := session["refreshToken"].(string)
	if accessToken == "" || refreshToken == "" {
		t.Fatalf("expected access and refresh tokens, got %v", session)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/me", accessToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rr.Code)
	}
	me := decodePayload(t, rr)
	if me["role"] != "founder" || me["onboarding"] != "profile" {
		t.Fatalf("unexpected me payload %v", me)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+refreshToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", rr.Code)
	}
	rr = doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+refreshToken+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401, got %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/session/logout", accessToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rr.Code)
	}
	rr = doJSON(t, handler, http.MethodGet, "/api/me", accessToken, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	server := NewHTTPServer(newTestService(t, newFakeStore()), "*")
	for _, path := range []string{"/api/me", "/api/rooms", "/api/dealflow", "/api/admin/stats"} {
		rr := doJSON(t, server.Handler(), http.MethodGet, path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/me", "not-a-jwt", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", rr.Code)
	}
}

func TestAdminRoutesForbiddenForOthers(t *testing.T) {
	fs := newFakeStore()
	vc := fs.addUser(store.User{ID: "usr-v", Role: "vc"})
	admin := fs.addUser(store.User{ID: "usr-a", Role: "admin"})
	svc := newTestService(t, fs)
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/admin/no-such-thing", tokenFor(t, svc, vc.ID), "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}

	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/admin/stats", tokenFor(t, svc, admin.ID), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d body=%s", rr.Code, rr.Body.String())
	}
	if users := decodePayload(t, rr)["users"]; users != float64(3) {
		t.Fatalf("expected 3 users including raftai, got %v", users)
	}
}

func TestAcceptOverHTTPReturnsCreatedThenOK(t *testing.T) {
	fs := newFakeStore()
	founder := fs.addUser(store.User{ID: "usr-f", Role: "founder"})
	vc := fs.addUser(store.User{ID: "usr-v", Role: "vc"})
	svc := newTestService(t, fs)
	projectID := submittedProject(t, svc, founder)
	server := NewHTTPServer(svc, "*")
	token := tokenFor(t, svc, vc.ID)

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/projects/"+projectID+"/accept", token, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server.Handler(), http.MethodPost, "/api/projects/"+projectID+"/accept", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat, got %d", rr.Code)
	}

	roomID := DealRoomID(founder.ID, vc.ID, projectID)
	rr = doJSON(t, server.Handler(), http.MethodPost, "/api/rooms/"+roomID+"/messages", token, `{"content":"Hi","clientMessageId":"abc"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("message: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server.Handler(), http.MethodPost, "/api/rooms/"+roomID+"/messages", token, `{"content":"Hi","clientMessageId":"abc"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("duplicate message: expected 200, got %d", rr.Code)
	}
}

func TestAnalysisCooldownSetsRetryAfter(t *testing.T) {
	fs := newFakeStore()
	founder := fs.addUser(store.User{ID: "usr-f", Role: "founder"})
	svc := newTestService(t, fs)
	projectID := submittedProject(t, svc, founder)
	server := NewHTTPServer(svc, "*")
	token := tokenFor(t, svc, founder.ID)

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/projects/"+projectID+"/analyze", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server.Handler(), http.MethodPost, "/api/projects/"+projectID+"/analyze", token, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if decodePayload(t, rr)["code"] != "ANALYSIS_COOLDOWN" {
		t.Fatalf("expected ANALYSIS_COOLDOWN")
	}

	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/projects/"+projectID+"/export/report?format=html", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected html export, got %s", rr.Header().Get("Content-Type"))
	}
	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/projects/"+projectID+"/export/report?format=docx", token, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown format: expected 400, got %d", rr.Code)
	}
}

func multipartUpload(t *testing.T, purpose, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if purpose != "" {
		_ = writer.WriteField("purpose", purpose)
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(data)
	_ = writer.Close()
	return &buf, writer.FormDataContentType()
}

func TestUploadAndDownloadOverHTTP(t *testing.T) {
	fs := newFakeStore()
	founder := fs.addUser(store.User{ID: "usr-f", Role: "founder"})
	vc := fs.addUser(store.User{ID: "usr-v", Role: "vc"})
	svc := newTestService(t, fs)
	server := NewHTTPServer(svc, "*")
	token := tokenFor(t, svc, founder.ID)

	body, contentType := multipartUpload(t, "whitepaper", "paper.pdf", pdfBytes)
	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	key := decodePayload(t, rr)["key"].(string)

	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/files/"+key, token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/pdf" || !bytes.Equal(rr.Body.Bytes(), pdfBytes) {
		t.Fatalf("unexpected download %s", rr.Header().Get("Content-Type"))
	}

	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/files/"+key, tokenFor(t, svc, vc.ID), "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign download: expected 403, got %d", rr.Code)
	}

	body, contentType = multipartUpload(t, "", "notes.pdf", []byte("just some plain text pretending"))
	req = httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("text upload: expected 415, got %d", rr.Code)
	}
}

func TestCronEndpointSecret(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/blog/cron/auto-post", "wrong", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/blog/cron/auto-post", nil)
	req.Header.Set("X-Cron-Secret", "cron-secret")
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodePayload(t, rr)["published"] != float64(0) {
		t.Fatalf("expected nothing published")
	}

	svc.cfg.CronSecret = ""
	rr = doJSON(t, server.Handler(), http.MethodPost, "/api/blog/cron/auto-post", "anything", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without secret, got %d", rr.Code)
	}
}

func TestPublicBlogHidesDrafts(t *testing.T) {
	fs := newFakeStore()
	admin := fs.addUser(store.User{ID: "usr-a", Role: "admin"})
	svc := newTestService(t, fs)
	server := NewHTTPServer(svc, "*")
	token := tokenFor(t, svc, admin.ID)

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/admin/blog", token, `{"title":"Reading Tokenomics","content":"`+testPostContent+`","category":"guides"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	postID := decodePayload(t, rr)["id"].(string)

	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/blog/reading-tokenomics", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("draft read: expected 404, got %d", rr.Code)
	}

	rr = doJSON(t, server.Handler(), http.MethodPost, "/api/admin/blog/"+postID+"/publish", token, `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server.Handler(), http.MethodPost, "/api/blog/reading-tokenomics/like", "", "")
	if rr.Code != http.StatusOK || decodePayload(t, rr)["likes"] != float64(1) {
		t.Fatalf("like: expected 1 like, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/admin/blog/"+postID+"/revisions", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("revisions: expected 200, got %d", rr.Code)
	}
	if revisions := decodePayload(t, rr)["revisions"].([]any); len(revisions) != 1 {
		t.Fatalf("expected one revision, got %d", len(revisions))
	}
}

func TestInvitationLookupIsPublic(t *testing.T) {
	fs := newFakeStore()
	owner := fs.addUser(store.User{ID: "usr-o", Role: "vc"})
	svc := newTestService(t, fs)
	server := NewHTTPServer(svc, "*")

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/team/invitations", tokenFor(t, svc, owner.ID), `{"teamType":"vc","email":"analyst@fund.io"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("invite: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	token := decodePayload(t, rr)["devInviteToken"].(string)

	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/invitations/"+token, "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d", rr.Code)
	}
	if decodePayload(t, rr)["email"] != "analyst@fund.io" {
		t.Fatalf("unexpected invitation payload")
	}

	rr = doJSON(t, server.Handler(), http.MethodGet, "/api/invitations/unknown", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown token: expected 404, got %d", rr.Code)
	}
}

func signinFrom(handler http.Handler, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(`{"email":"nobody@example.com","password":"wrong-password"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestAuthRoutesAreRateLimitedPerIP(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, newFakeStore()), "*").Handler()

	for i := 0; i < authAttemptsPerMinute; i++ {
		rr := signinFrom(handler, "203.0.113.7:40000", fmt.Sprintf("198.51.100.%d", i))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rr.Code)
		}
	}
	rr := signinFrom(handler, "203.0.113.7:40001", "198.51.100.250")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the bucket is empty, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	if other := signinFrom(handler, "203.0.113.8:40000", ""); other.Code != http.StatusUnauthorized {
		t.Fatalf("expected a different client to keep its own bucket, got %d", other.Code)
	}
}

func TestAuthRateLimitBehindTrustedProxy(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	svc.cfg.TrustedProxies = []string{"10.0.0.0/8", "not-an-ip"}
	handler := NewHTTPServer(svc, "*").Handler()

	for i := 0; i < authAttemptsPerMinute; i++ {
		spoofed := fmt.Sprintf("192.0.2.%d, 198.51.100.9, 10.0.0.2", i)
		if rr := signinFrom(handler, "10.0.0.1:443", spoofed); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rr.Code)
		}
	}
	if rr := signinFrom(handler, "10.0.0.1:443", "198.51.100.9"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected the forwarded client to share one bucket, got %d", rr.Code)
	}
	if rr := signinFrom(handler, "10.0.0.1:443", "198.51.100.10"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected another forwarded client to keep its own bucket, got %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	svc.cfg.TrustedProxies = []string{"10.0.0.0/8", "2001:db8::1"}
	server := NewHTTPServer(svc, "*")

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  []string
		want       string
	}{
		{name: "direct", remoteAddr: "203.0.113.7:1234", want: "203.0.113.7"},
		{name: "untrusted peer ignores header", remoteAddr: "203.0.113.7:1234", forwarded: []string{"198.51.100.1"}, want: "203.0.113.7"},
		{name: "trusted peer without header", remoteAddr: "10.0.0.1:1234", want: "10.0.0.1"},
		{name: "single hop", remoteAddr: "10.0.0.1:1234", forwarded: []string{"198.51.100.1"}, want: "198.51.100.1"},
		{name: "right-most untrusted hop", remoteAddr: "10.0.0.1:1234", forwarded: []string{"192.0.2.66, 198.51.100.1, 10.2.2.2"}, want: "198.51.100.1"},
		{name: "repeated headers", remoteAddr: "10.0.0.1:1234", forwarded: []string{"192.0.2.66", "198.51.100.1"}, want: "198.51.100.1"},
		{name: "malformed hop stops the walk", remoteAddr: "10.0.0.1:1234", forwarded: []string{"198.51.100.1, garbage, 10.2.2.2"}, want: "10.2.2.2"},
		{name: "all hops trusted", remoteAddr: "10.0.0.1:1234", forwarded: []string{"10.9.9.9, 10.2.2.2"}, want: "10.9.9.9"},
		{name: "ipv6 proxy", remoteAddr: "[2001:db8::1]:443", forwarded: []string{"2001:db8::42"}, want: "2001:db8::42"},
		{name: "mapped ipv4 peer", remoteAddr: "[::ffff:10.0.0.1]:443", forwarded: []string{"198.51.100.1"}, want: "198.51.100.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
			req.RemoteAddr = tt.remoteAddr
			for _, value := range tt.forwarded {
				req.Header.Add("X-Forwarded-For", value)
			}
			if got := server.clientIP(req); got != tt.want {
				t.Fatalf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	handler := NewHTTPServer(newTestService(t, newFakeStore()), "*").Handler()
	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	req.Header.Set("X-Request-ID", "req-fixed")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-Request-ID"); got != "req-fixed" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}

func TestPasswordResetRevokesRefreshTokens(t *testing.T) {
	server := NewHTTPServer(newTestService(t, newFakeStore()), "*")
	handler := server.Handler()

	rr := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", `{"email":"ren@orbit.io","password":"correct-horse","displayName":"Ren","role":"vc"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	firstToken, _ := decodePayload(t, rr)["devVerificationToken"].(string)

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/verify-email/resend", "", `{"email":"ren@orbit.io"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("resend: expected 200, got %d", rr.Code)
	}
	resent, _ := decodePayload(t, rr)["devVerificationToken"].(string)
	if resent == "" || resent == firstToken {
		t.Fatalf("expected a fresh verification token, got %q", resent)
	}
	rr = doJSON(t, handler, http.MethodPost, "/api/auth/verify-email", "", `{"token":"`+resent+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", `{"email":"ren@orbit.io","password":"correct-horse"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d", rr.Code)
	}
	refreshToken, _ := decodePayload(t, rr)["refreshToken"].(string)

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/reset-password/request", "", `{"email":"ren@orbit.io"}`)
	resetToken, _ := decodePayload(t, rr)["devResetToken"].(string)
	if resetToken == "" {
		t.Fatalf("expected dev reset token, got %s", rr.Body.String())
	}
	rr = doJSON(t, handler, http.MethodPost, "/api/auth/reset-password", "", `{"token":"`+resetToken+`","newPassword":"brand-new-pass"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+refreshToken+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after reset: expected 401, got %d", rr.Code)
	}
}
