package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPerMinuteAllowsBurstThenBlocks(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := PerMinute(10)
	l.now = func() time.Time { return clock }

	for i := 0; i < 10; i++ {
		ok, _ := l.Allow("usr_a")
		assert.True(t, ok, "request %d", i+1)
	}
	ok, retry := l.Allow("usr_a")
	assert.False(t, ok)
	assert.InDelta(t, float64(6*time.Second), float64(retry), float64(time.Millisecond))

	// A different key has its own bucket.
	ok, _ = l.Allow("usr_b")
	assert.True(t, ok)

	clock = clock.Add(6 * time.Second)
	ok, _ = l.Allow("usr_a")
	assert.True(t, ok)
}

func TestIdleBucketsAreSwept(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := PerMinute(5)
	l.now = func() time.Time { return clock }

	l.Allow("usr_a")
	l.Allow("usr_b")
	assert.Equal(t, 2, l.size())

	clock = clock.Add(11 * time.Minute)
	l.Allow("usr_c")
	assert.Equal(t, 1, l.size())
}
