package relay

import "time"

// DefaultStreamTimeout bounds one relayed stream when Config.StreamTimeout is
// zero.
const DefaultStreamTimeout = 5 * time.Minute

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// BackendURL is the root of the backend chat service
	// (e.g., "http://localhost:8000"). Required unless Mock is set.
	BackendURL string

	// Mock serves the chat route from the mock generator instead of the
	// backend.
	Mock bool

	// MockInterval overrides the mock generator's tick interval.
	MockInterval time.Duration

	// StreamTimeout bounds a single relayed stream.
	StreamTimeout time.Duration

	// JWTSecret turns on the bearer-token gate for /api routes when set.
	JWTSecret string

	// RequestsPerSecond turns on per-client rate limiting of the chat route
	// when positive.
	RequestsPerSecond float64

	// Burst is the rate limiter's bucket size.
	Burst int
}
