package realtime

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Second)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("event beyond limit must be denied")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Second)
	base := time.Now()

	if !rl.Allow(base) || !rl.Allow(base) {
		t.Fatalf("first two events should be allowed")
	}
	if rl.Allow(base.Add(500 * time.Millisecond)) {
		t.Fatalf("window still full at +500ms")
	}
	if !rl.Allow(base.Add(1100 * time.Millisecond)) {
		t.Fatalf("window should have slid at +1100ms")
	}
}

func TestRateLimiter_InvalidInputsFallBackToDefaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	now := time.Now()

	for i := 0; i < rateLimitEvents; i++ {
		if !rl.Allow(now) {
			t.Fatalf("default limit not honored at event %d", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("default limit must deny event %d", rateLimitEvents)
	}
}

func TestRateLimiter_DeniedEventsDoNotConsumeSlots(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Second)
	base := time.Now()

	if !rl.Allow(base) || !rl.Allow(base) {
		t.Fatalf("first two events should be allowed")
	}
	for i := 0; i < 10; i++ {
		if rl.Allow(base.Add(200 * time.Millisecond)) {
			t.Fatalf("flood event %d should be denied", i)
		}
	}
	// The denied flood must not have extended the window.
	if !rl.Allow(base.Add(time.Second)) {
		t.Fatalf("event at window edge should be allowed")
	}
}
