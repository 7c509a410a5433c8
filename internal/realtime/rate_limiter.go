package realtime

import (
	"sync"
	"time"
)

// frameEvent is one accepted frame inside the sliding window.
type frameEvent struct {
	at   time.Time
	cost int
}

// RateLimiter bounds inbound traffic per connection over a sliding window.
// Budget is spent in frame-cost units rather than raw frame counts: a
// maximum-size frame costs several units, so a burst of large frames
// exhausts the window sooner than ordinary chat messages do.
type RateLimiter struct {
	mu     sync.Mutex
	events []frameEvent
	budget int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter with safe defaults when inputs are invalid.
func NewRateLimiter(budget int, window time.Duration) *RateLimiter {
	if budget <= 0 {
		budget = rateLimitFrames
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		events: make([]frameEvent, 0, budget+8),
		budget: budget,
		window: window,
	}
}

// frameCost converts a frame's wire size into budget units. Every frame
// costs at least one unit plus one per rateCostChunk of payload, keeping a
// flood of near-limit frames as expensive as the bytes it actually moves.
func frameCost(size int) int {
	if size < 0 {
		size = 0
	}
	return 1 + size/rateCostChunk
}

// Allow reports whether a frame of the given cost should be permitted at
// time "now", and charges the window when it is.
func (r *RateLimiter) Allow(now time.Time, cost int) bool {
	if cost < 1 {
		cost = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)
	dst := r.events[:0]
	used := 0
	for _, e := range r.events {
		if e.at.After(cut) {
			dst = append(dst, e)
			used += e.cost
		}
	}
	r.events = dst

	if used+cost > r.budget {
		return false
	}
	r.events = append(r.events, frameEvent{at: now, cost: cost})
	return true
}
