package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const counterTTL = 24 * time.Hour

// incrIfPresent only touches counters that were reconciled before, so a
// missing key keeps meaning "unknown" rather than zero. Counts never go
// below zero.
var incrIfPresent = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
local v = redis.call("INCRBY", KEYS[1], ARGV[1])
if v < 0 then
	redis.call("SET", KEYS[1], 0, "KEEPTTL")
	v = 0
end
return v
`)

// RedisCounter keeps unread counts under "unread:<userID>".
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "unread:"}
}

func (c *RedisCounter) key(userID string) string {
	return c.prefix + userID
}

func (c *RedisCounter) Incr(ctx context.Context, userID string, delta int) error {
	if err := incrIfPresent.Run(ctx, c.client, []string{c.key(userID)}, delta).Err(); err != nil {
		return fmt.Errorf("incr unread counter: %w", err)
	}
	return nil
}

func (c *RedisCounter) Get(ctx context.Context, userID string) (int, bool, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get unread counter: %w", err)
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse unread counter: %w", err)
	}
	return count, true, nil
}

func (c *RedisCounter) Set(ctx context.Context, userID string, count int) error {
	if err := c.client.Set(ctx, c.key(userID), count, counterTTL).Err(); err != nil {
		return fmt.Errorf("set unread counter: %w", err)
	}
	return nil
}
