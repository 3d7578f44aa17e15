// Package ratelimit provides per-key token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleAfter = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per key (usually a user id). Buckets
// idle for ten minutes are dropped on the next sweep.
type Limiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*entry
	now       func() time.Time
	lastSweep time.Time
}

// PerMinute allows n requests per minute with a burst of n.
func PerMinute(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return New(rate.Every(time.Minute/time.Duration(n)), n)
}

func New(limit rate.Limit, burst int) *Limiter {
	return &Limiter{
		limit:   limit,
		burst:   burst,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow consumes a token for key. When none is available it returns false
// and how long until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleAfter {
		return
	}
	l.lastSweep = now
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) >= idleAfter {
			delete(l.entries, key)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
