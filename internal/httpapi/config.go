package httpapi

import "time"

// maxBodyBytes bounds JSON bodies, image and audio uploads.
var maxBodyBytes int64 = 16 << 20

// SetMaxBodyBytes sets the request body limit. Non-positive restores 16 MiB.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 16 << 20
		return
	}
	maxBodyBytes = n
}

// turnWait is how long a request waits for the in-flight turn to finish
// before it is rejected with 429.
var turnWait = 30 * time.Second

// SetTurnWait sets the wait for a busy conversation. Negative means zero:
// reject immediately.
func SetTurnWait(d time.Duration) {
	if d < 0 {
		d = 0
	}
	turnWait = d
}

// requestTimeout bounds a single turn. Zero means only the client and
// backend timeouts apply.
var requestTimeout time.Duration

// SetRequestTimeout sets the per-turn timeout (0 disables).
func SetRequestTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	requestTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
)

// SetCORSOptions configures CORS for browser front ends.
func SetCORSOptions(enabled bool, origins []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
}
