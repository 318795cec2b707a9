// Package sse reads and writes Server-Sent Event frames for the typhoon relay
// and its clients.
//
// Decoding is delegated to github.com/tmaxmax/go-sse and exposed as a pull
// style Reader so consumers can fold events one at a time. Encoding writes
// data-only frames, which is all the chat stream contract needs.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
