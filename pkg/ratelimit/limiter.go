package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	buckets  map[string]*entry
	limit    rate.Limit
	burst    int
	ttl      time.Duration // Time to keep inactive buckets in memory (0 = forever)
	now      func() time.Time
	mu       sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter
// burst: Maximum number of requests allowed in a burst per key
// perMinute: Sustained requests allowed per minute per key
// ttl: Time to keep inactive buckets in memory (0 = forever)
func NewRateLimiter(burst int, perMinute float64, ttl time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*entry),
		limit:   rate.Limit(perMinute / 60.0),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	if ttl > 0 {
		go rl.cleanupLoop()
	}

	return rl
}

// Allow reports whether a request for key may proceed, consuming a token if so.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	e, exists := rl.buckets[key]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = e
	}
	e.lastSeen = now
	rl.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// RetryAfter estimates how long until key has a token again.
func (rl *RateLimiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	e, exists := rl.buckets[key]
	rl.mu.Unlock()
	if !exists || rl.limit <= 0 {
		return 0
	}

	now := rl.now()
	tokens := e.limiter.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(rl.limit) * float64(time.Second))
}

// Remove forgets key, restoring its full burst.
func (rl *RateLimiter) Remove(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Cleanup removes buckets idle for longer than the TTL and returns how many were removed.
func (rl *RateLimiter) Cleanup() int {
	if rl.ttl <= 0 {
		return 0
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, e := range rl.buckets {
		if now.Sub(e.lastSeen) > rl.ttl {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stop:
			return
		}
	}
}

// Stop ends the background cleanup.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Stats returns statistics about the rate limiter
type Stats struct {
	ActiveBuckets int
	Burst         int
	PerSecond     float64
}

// GetStats returns current statistics
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return Stats{
		ActiveBuckets: len(rl.buckets),
		Burst:         rl.burst,
		PerSecond:     float64(rl.limit),
	}
}
