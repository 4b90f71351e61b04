package pipeline

import (
	"sync"
	"time"
)

// RunAllKey is the rate limiter key covering run-all triggers.
const RunAllKey = "*"

// RunRateLimiter enforces per-pipeline rate limiting for run triggers
// using a token bucket. Each pipeline name gets an independent bucket;
// RunAllKey tracks run-all.
type RunRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	interval time.Duration // minimum time between triggers
}

// bucket tracks the last allowed trigger time for a single key.
type bucket struct {
	lastAllowed time.Time
}

// NewRunRateLimiter creates a rate limiter that allows one trigger per
// pipeline per interval. The default interval is 30 seconds.
func NewRunRateLimiter(interval time.Duration) *RunRateLimiter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RunRateLimiter{
		buckets:  make(map[string]*bucket),
		interval: interval,
	}
}

// Allow checks whether a trigger for the given key is permitted.
// Returns true if allowed, or false with the duration until the next
// allowed attempt.
func (rl *RunRateLimiter) Allow(key string) (bool, time.Duration) {
	return rl.allowAt(key, time.Now())
}

// allowAt is the testable core of Allow that accepts a "now" parameter.
func (rl *RunRateLimiter) allowAt(key string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{lastAllowed: now}
		return true, 0
	}

	nextAllowed := b.lastAllowed.Add(rl.interval)
	if now.Before(nextAllowed) {
		return false, nextAllowed.Sub(now)
	}

	b.lastAllowed = now
	return true, 0
}

// Reset removes all tracked buckets. Useful for testing.
func (rl *RunRateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.buckets = make(map[string]*bucket)
}
