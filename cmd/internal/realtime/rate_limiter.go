package realtime

import (
	"sync"
	"time"
)

// RateLimiter bounds how many envelopes one connection may submit inside a
// sliding window. Chat traffic is bursty: a multi-line paste, a run of
// history fetches while scrolling, a batch of seen markers on thread open.
// The window absorbs those bursts while still cutting off floods.
//
// The implementation keeps a ring of the last `limit` accepted timestamps.
// A new event is denied while the slot it would overwrite is still inside
// the window.
type RateLimiter struct {
	mu     sync.Mutex
	ring   []time.Time
	next   int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter, substituting the package defaults
// for non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		ring:   make([]time.Time, limit),
		window: window,
	}
}

// Allow reports whether an event at time "now" should be permitted. Denied
// events do not consume a slot.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldest := r.ring[r.next]
	if !oldest.IsZero() && now.Sub(oldest) < r.window {
		return false
	}
	r.ring[r.next] = now
	r.next = (r.next + 1) % len(r.ring)
	return true
}
