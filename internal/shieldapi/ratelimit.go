package shieldapi

import (
	"sync"
	"time"
)

// rateLimiter is a sliding-window in-memory limiter keyed by arbitrary
// strings ("otp:user@example.com" etc).
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	now      func() time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records the request and reports whether it is within limit over the
// trailing window.
func (r *rateLimiter) Allow(key string, limit int, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-window)

	kept := r.requests[key][:0]
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		r.requests[key] = kept
		return false
	}
	r.requests[key] = append(kept, now)
	return true
}
