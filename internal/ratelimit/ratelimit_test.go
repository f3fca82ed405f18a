package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allowed(rl *KeyedRateLimiter, key string, n int) int {
	ok := 0
	for range n {
		if rl.Allow(key) {
			ok++
		}
	}
	return ok
}

func TestKeyedRateLimiter_BurstPerClient(t *testing.T) {
	rl := New(1, 3)
	defer rl.Stop()

	assert.Equal(t, 3, allowed(rl, "203.0.113.7", 6), "only the burst gets through")
	assert.Equal(t, 3, allowed(rl, "198.51.100.2", 3), "another address has its own bucket")
	assert.False(t, rl.Allow("203.0.113.7"))
	assert.Equal(t, 2, rl.Len())
}

func TestKeyedRateLimiter_WaitSpacesRequests(t *testing.T) {
	rl := New(20, 1)
	defer rl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, rl.Wait(ctx, "203.0.113.7"))

	began := time.Now()
	require.NoError(t, rl.Wait(ctx, "203.0.113.7"))
	assert.GreaterOrEqual(t, time.Since(began), 30*time.Millisecond, "second request waits for a token")
}

func TestKeyedRateLimiter_WaitGivesUpWithContext(t *testing.T) {
	rl := New(0.1, 1)
	defer rl.Stop()
	require.True(t, rl.Allow("203.0.113.7"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Error(t, rl.Wait(ctx, "203.0.113.7"))
}

func TestKeyedRateLimiter_ForgetsIdleClients(t *testing.T) {
	rl := NewWithTTL(1, 1, time.Minute, time.Hour)
	defer rl.Stop()

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("203.0.113.7"))
	now = now.Add(30 * time.Second)
	require.True(t, rl.Allow("198.51.100.2"))

	now = now.Add(45 * time.Second)
	rl.evictIdle()
	assert.Equal(t, 1, rl.Len(), "only the recently seen address is kept")

	assert.True(t, rl.Allow("203.0.113.7"), "a forgotten address starts with a full bucket")
	assert.False(t, rl.Allow("198.51.100.2"))
}
