// Package eventstreamtest provides an in-memory eventstream.Publisher for
// tests.
package eventstreamtest

import (
	"context"
	"sync"

	"github.com/papercomputeco/typhoon/pkg/eventstream"
)

// Recorder keeps every published event.
type Recorder struct {
	mu     sync.Mutex
	events []*eventstream.TurnRelayedEvent
	err    error
	closed bool
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes later PublishTurn calls return err without recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) PublishTurn(_ context.Context, event *eventstream.TurnRelayedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (r *Recorder) Events() []*eventstream.TurnRelayedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.TurnRelayedEvent(nil), r.events...)
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
