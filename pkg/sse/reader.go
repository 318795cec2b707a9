package sse

import (
	"io"
	"iter"

	gosse "github.com/tmaxmax/go-sse"
)

// Reader pulls SSE events from a source io.Reader one at a time.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │  Reader.Next()   │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Event       │
// └──────────────────┘
//
// A Reader is not safe for concurrent use. Next and Close must be called
// from the same goroutine, or be serialized by the caller.
type Reader struct {
	next func() (gosse.Event, error, bool)
	stop func()
	done bool
}

// NewReader returns a Reader that parses SSE events from src.
func NewReader(src io.Reader) *Reader {
	next, stop := iter.Pull2(gosse.Read(src, nil))
	return &Reader{next: next, stop: stop}
}

// Next returns the next parsed SSE event. It blocks until a complete event is
// available (terminated by a blank line in the stream).
// Next returns nil, nil when the source is exhausted. Once Next has returned
// an error or nil, nil every later call returns nil, nil.
func (r *Reader) Next() (*Event, error) {
	if r.done {
		return nil, nil
	}

	ev, err, ok := r.next()
	if !ok {
		r.Close()
		return nil, nil
	}
	if err != nil {
		r.Close()
		return nil, err
	}

	return &Event{
		Type: ev.Type,
		Data: ev.Data,
		ID:   ev.LastEventID,
	}, nil
}

// Close releases the parser. It does not close the source reader.
func (r *Reader) Close() {
	if r.done {
		return
	}
	r.done = true
	r.stop()
}
