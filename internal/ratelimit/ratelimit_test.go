package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowBurstThenRefuse(t *testing.T) {
	tests := []struct {
		name      string
		rps       float64
		burst     int
		requests  int
		wantAllow int
	}{
		{
			name:      "burst covers a page load",
			rps:       1,
			burst:     5,
			requests:  5,
			wantAllow: 5,
		},
		{
			name:      "requests beyond burst are refused",
			rps:       1,
			burst:     2,
			requests:  6,
			wantAllow: 2,
		},
		{
			name:      "burst of one",
			rps:       1,
			burst:     1,
			requests:  3,
			wantAllow: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst)
			defer rl.Stop()

			allowed := 0
			for range tt.requests {
				if rl.Allow("198.51.100.7:53210") {
					allowed++
				}
			}
			assert.Equal(t, tt.wantAllow, allowed)
		})
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	// Two clients behind different addresses, each with its own bucket.
	require.True(t, rl.Allow("198.51.100.7:53210"))
	assert.False(t, rl.Allow("198.51.100.7:53210"), "first client exhausted")
	assert.True(t, rl.Allow("203.0.113.40:41882"), "second client unaffected")
}

func TestAllowRefills(t *testing.T) {
	rl := New(50, 1) // refill every 20ms
	defer rl.Stop()

	require.True(t, rl.Allow("198.51.100.7:53210"))
	require.False(t, rl.Allow("198.51.100.7:53210"))

	assert.Eventually(t, func() bool {
		return rl.Allow("198.51.100.7:53210")
	}, time.Second, 5*time.Millisecond, "bucket should refill")
}

func TestEvictIdleDropsStaleClients(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	stale := "198.51.100.7:53210"
	active := "203.0.113.40:41882"
	require.True(t, rl.Allow(stale))
	require.True(t, rl.Allow(active))

	// Backdate the stale client past the TTL.
	rl.mu.Lock()
	rl.clients[stale].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.evictIdle(idleTTL)

	rl.mu.Lock()
	_, staleKept := rl.clients[stale]
	_, activeKept := rl.clients[active]
	rl.mu.Unlock()

	assert.False(t, staleKept, "idle bucket should be evicted")
	assert.True(t, activeKept, "recently seen bucket should survive")

	// The evicted client starts over with a full bucket.
	assert.True(t, rl.Allow(stale))
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New(1, 1)
	rl.Stop()
	rl.Stop()
}
