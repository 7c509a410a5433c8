package realtime

import "time"

// Security/performance limits for the websocket gateway.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max message content length (runes).
	maxMessageChars = 4000
)

const (
	// How often serving connections re-check the drain flag.
	drainPollInterval = 200 * time.Millisecond

	// Per-connection rate limit budget (frame-cost units per window).
	rateLimitFrames = 120
	rateLimitWindow = 10 * time.Second

	// Payload bytes per extra budget unit a frame is charged.
	rateCostChunk = 8 << 10
)
