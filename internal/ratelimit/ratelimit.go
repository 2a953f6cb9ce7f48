// Package ratelimit throttles API clients with per-key token buckets from
// golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// sweepInterval is how often idle buckets are evicted.
	sweepInterval = time.Minute
	// idleTTL is how long a key may go unseen before its bucket is dropped.
	idleTTL = 10 * time.Minute
)

// KeyedRateLimiter hands out one token bucket per key. The API keys it by
// client IP, so every browser session gets an independent allowance.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int

	done     chan struct{}
	stopOnce sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing rps sustained requests per key with the
// given burst. A background sweeper evicts buckets idle longer than idleTTL
// so the map does not grow with every client IP ever seen.
func New(rps float64, burst int) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(rps),
		burst:   burst,
		done:    make(chan struct{}),
	}

	go krl.sweep()

	return krl
}

// Allow reports whether a request from key fits within its bucket. It never
// blocks; callers turn a refusal into 429.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	krl.mu.Lock()
	c, ok := krl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.clients[key] = c
	}
	c.lastSeen = time.Now()
	krl.mu.Unlock()

	return c.limiter.Allow()
}

// Stop terminates the background sweeper. Safe to call more than once.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func (krl *KeyedRateLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-krl.done:
			return
		case <-ticker.C:
			krl.evictIdle(idleTTL)
		}
	}
}

// evictIdle drops buckets whose key has not been seen within ttl. An evicted
// client simply gets a fresh full bucket on its next request, which is
// acceptable at these limits.
func (krl *KeyedRateLimiter) evictIdle(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)

	krl.mu.Lock()
	defer krl.mu.Unlock()

	for key, c := range krl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(krl.clients, key)
		}
	}
}
