// Package api provides a read-only HTTP API for inspecting the turns the
// relay has recorded.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string
}
