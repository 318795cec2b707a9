// Package header decides which headers cross the relay.
//
// The relay sits between the chat UI and the backend chat service:
//
//	UI <--> Relay <--> Backend
//
// Each leg negotiates its own connection and encoding, so hop-by-hop and
// relay-owned headers are dropped at the boundary.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientHeader is the optional header a UI uses to name itself. It is logged
// by the relay and never forwarded.
const ClientHeader = "X-Typhoon-Client"

// skipRequest is the set of request headers (UI --> relay --> backend) that
// are not forwarded.
var skipRequest = map[string]struct{}{
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Host":              {},

	// net/http adds its own Accept-Encoding and decompresses transparently.
	"Accept-Encoding": {},

	// Set by the stream client for the body it actually sends.
	"Content-Length": {},
	"Content-Type":   {},
	"Accept":         {},

	// Relay credentials stay at the relay.
	"Authorization": {},
	"Cookie":        {},

	ClientHeader: {},
}

// skipResponse is the set of backend response headers (UI <-- relay <-- backend)
// that are not copied back to the UI.
var skipResponse = map[string]struct{}{
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},

	// The relay reads a decompressed body.
	"Content-Encoding": {},

	// The relay re-frames the body, so the backend's length no longer holds.
	"Content-Length": {},
}

// Handler manages headers between relay connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// UpstreamHeaders returns the UI request headers that should be sent on to
// the backend.
func (h *Handler) UpstreamHeaders(c *fiber.Ctx) http.Header {
	out := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, skip := skipRequest[k]; !skip {
			out.Add(k, string(value))
		}
	})
	return out
}

// SetClientResponseHeaders copies backend response headers to the UI response,
// dropping the ones the relay owns.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, header http.Header) {
	for k, v := range header {
		if _, skip := skipResponse[http.CanonicalHeaderKey(k)]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}

// SetEventStreamHeaders marks the UI response as an unbuffered event stream.
func (h *Handler) SetEventStreamHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}
