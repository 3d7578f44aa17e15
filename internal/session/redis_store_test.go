package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected an error for an invalid url")
	}
}

func TestConsumeRefreshSessionIsSingleUse(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-1", "usr-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	if !mr.Exists("refresh:hash-1") {
		t.Fatal("expected the refresh key to be stored")
	}

	userID, err := store.ConsumeRefreshSession(ctx, "hash-1")
	if err != nil || userID != "usr-1" {
		t.Fatalf("ConsumeRefreshSession() = %q, %v", userID, err)
	}
	if _, err := store.ConsumeRefreshSession(ctx, "hash-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second consume error = %v, want ErrSessionNotFound", err)
	}
	if members, _ := mr.Members("user_refresh:usr-1"); len(members) != 0 {
		t.Fatalf("expected the user index to drop the consumed hash, got %v", members)
	}
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	if err := store.SaveRefreshSession(ctx, "hash-race", "usr-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeRefreshSession(ctx, "hash-race"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", wins)
	}
}

func TestRefreshSessionExpires(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-exp", "usr-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.ConsumeRefreshSession(ctx, "hash-exp"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected an expired token to be gone, got %v", err)
	}
}

func TestConsumeChecksStoredExpiry(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	if err := store.SaveRefreshSession(ctx, "hash-clock", "usr-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := store.ConsumeRefreshSession(ctx, "hash-clock"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound past expires_at, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)
	for _, h := range []string{"hash-a", "hash-b"} {
		if err := store.SaveRefreshSession(ctx, h, "usr-1", expiresAt); err != nil {
			t.Fatalf("SaveRefreshSession(%s) error = %v", h, err)
		}
	}

	if err := store.RevokeRefreshSession(ctx, "hash-a"); err != nil {
		t.Fatalf("RevokeRefreshSession() error = %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "missing"); err != nil {
		t.Fatalf("revoking an unknown token should not fail: %v", err)
	}
	if _, err := store.ConsumeRefreshSession(ctx, "hash-a"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected revoked token to be gone, got %v", err)
	}
	if userID, err := store.ConsumeRefreshSession(ctx, "hash-b"); err != nil || userID != "usr-1" {
		t.Fatalf("expected the other session to survive, got %q, %v", userID, err)
	}
}

func TestRevokeUserSessionsLeavesOtherUsers(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)
	sessions := map[string]string{"hash-1": "usr-1", "hash-2": "usr-1", "hash-3": "usr-2"}
	for h, u := range sessions {
		if err := store.SaveRefreshSession(ctx, h, u, expiresAt); err != nil {
			t.Fatalf("SaveRefreshSession(%s) error = %v", h, err)
		}
	}

	if err := store.RevokeUserSessions(ctx, "usr-1"); err != nil {
		t.Fatalf("RevokeUserSessions() error = %v", err)
	}
	for _, h := range []string{"hash-1", "hash-2"} {
		if mr.Exists("refresh:" + h) {
			t.Fatalf("expected %s to be revoked", h)
		}
	}
	if mr.Exists("user_refresh:usr-1") {
		t.Fatal("expected the user index to be removed")
	}
	if userID, err := store.ConsumeRefreshSession(ctx, "hash-3"); err != nil || userID != "usr-2" {
		t.Fatalf("expected usr-2 to keep its session, got %q, %v", userID, err)
	}
	if err := store.RevokeUserSessions(ctx, "usr-none"); err != nil {
		t.Fatalf("revoking a user without sessions should not fail: %v", err)
	}
}

func TestAccessTokenDenylist(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := store.RevokeAccessToken(ctx, "jti-1", time.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken() error = %v", err)
	}
	if revoked, err := store.IsAccessTokenRevoked(ctx, "jti-1"); err != nil || !revoked {
		t.Fatalf("expected jti-1 revoked, got %v, %v", revoked, err)
	}
	if revoked, err := store.IsAccessTokenRevoked(ctx, "jti-2"); err != nil || revoked {
		t.Fatalf("expected jti-2 valid, got %v, %v", revoked, err)
	}

	mr.FastForward(11 * time.Minute)
	if revoked, _ := store.IsAccessTokenRevoked(ctx, "jti-1"); revoked {
		t.Fatal("expected the denylist entry to expire with the token")
	}
}

func TestRevokeAlreadyExpiredAccessTokenIsNoop(t *testing.T) {
	store, mr := setupTestRedis(t)

	if err := store.RevokeAccessToken(context.Background(), "old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken() error = %v", err)
	}
	if mr.Exists("revoked:old") {
		t.Fatal("expected no key for an already expired token")
	}
}
