package realtime

import "time"

const (
	// Max bytes per websocket frame read. Message text tops out at 4000
	// runes, but send payloads may carry an inline image data URL, so the
	// frame limit leaves room for one.
	maxFrameBytes = 256 << 10 // 256 KiB
)

const (
	// Heartbeat defaults (can be overridden by env in gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection envelope budget. Six envelopes a second sustained
	// covers fast typing plus the seen/history chatter a thread switch
	// produces; anything past that is a flood.
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second
)
