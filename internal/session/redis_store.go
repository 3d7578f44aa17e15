// Package session keeps refresh tokens and the access-token denylist in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned for unknown, expired, consumed or revoked
// refresh tokens.
var ErrSessionNotFound = errors.New("token not found or expired")

const (
	refreshPrefix  = "refresh:"
	userSetPrefix  = "user_refresh:"
	revokedPrefix  = "revoked:"
	defaultRefresh = 30 * 24 * time.Hour
)

type tokenData struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore holds each refresh token under its hash, plus a per-user set of
// hashes so every session of a user can be revoked at once.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	now := s.now()
	payload, err := json.Marshal(tokenData{UserID: userID, ExpiresAt: expiresAt, CreatedAt: now})
	if err != nil {
		return fmt.Errorf("marshal token data: %w", err)
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		ttl = defaultRefresh
	}

	userKey := userSetPrefix + userID
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, refreshPrefix+tokenHash, payload, ttl)
		pipe.SAdd(ctx, userKey, tokenHash)
		// The index lives as long as the newest token.
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshSession deletes the token and returns its owner in one step,
// so a refresh token can be exchanged at most once.
func (s *RedisStore) ConsumeRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	raw, err := s.client.GetDel(ctx, refreshPrefix+tokenHash).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume refresh token: %w", err)
	}
	var data tokenData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return "", fmt.Errorf("unmarshal token data: %w", err)
	}
	if !data.ExpiresAt.IsZero() && !s.now().Before(data.ExpiresAt) {
		return "", ErrSessionNotFound
	}
	s.client.SRem(ctx, userSetPrefix+data.UserID, tokenHash)
	return data.UserID, nil
}

func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, refreshPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserSessions drops every refresh token issued to userID.
func (s *RedisStore) RevokeUserSessions(ctx context.Context, userID string) error {
	userKey := userSetPrefix + userID
	hashes, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("list user sessions: %w", err)
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, refreshPrefix+h)
	}
	keys = append(keys, userKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

// RevokeAccessToken denylists an access token id until it would have expired.
func (s *RedisStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	ttl := exp.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

// Client exposes the connection for other Redis-backed features.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
