package transcript_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/typhoon/pkg/chat"
	"github.com/papercomputeco/typhoon/pkg/sse"
	"github.com/papercomputeco/typhoon/pkg/transcript"
)

var errFakeClosed = errors.New("fake stream closed")

// step is one result of fakeStream.Next: either data or an error.
type step struct {
	data string
	err  error
}

func data(s string) step { return step{data: s} }

// fakeStream replays steps, then either ends with io.EOF or blocks until
// closed when hold is set. It counts Close calls.
type fakeStream struct {
	steps  []step
	hold   bool
	closes atomic.Int32

	mu       sync.Mutex
	pos      int
	closed   chan struct{}
	closeSig sync.Once
}

func newFakeStream(hold bool, steps ...step) *fakeStream {
	return &fakeStream{steps: steps, hold: hold, closed: make(chan struct{})}
}

func (f *fakeStream) Next() (*sse.Event, error) {
	f.mu.Lock()
	if f.pos < len(f.steps) {
		s := f.steps[f.pos]
		f.pos++
		f.mu.Unlock()
		if s.err != nil {
			return nil, s.err
		}
		return &sse.Event{Data: s.data}, nil
	}
	f.mu.Unlock()

	if !f.hold {
		return nil, io.EOF
	}
	<-f.closed
	return nil, errFakeClosed
}

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	f.closeSig.Do(func() { close(f.closed) })
	return nil
}

// fakeOpener hands out streams in order and records requests.
type fakeOpener struct {
	mu       sync.Mutex
	streams  []*fakeStream
	err      error
	requests []*chat.ChatRequest
}

func (o *fakeOpener) OpenChat(_ context.Context, req *chat.ChatRequest) (transcript.EventStream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, req)
	if o.err != nil {
		return nil, o.err
	}
	s := o.streams[0]
	o.streams = o.streams[1:]
	return s, nil
}

// fakePersister allocates ids and records calls.
type fakePersister struct {
	mu          sync.Mutex
	nextID      int64
	sessionID   int64
	registerErr error
	registered  []chat.RegisterMessageRequest
	preferences []chat.PreferenceRequest
	history     []chat.PersistedMessage
	sessions    []chat.SessionSummary
	models      []chat.ModelDescriptor

	// slowPreference delays SetPreference calls carrying that preference.
	slowPreference chat.Preference
	slowDelay      time.Duration
}

func newFakePersister() *fakePersister {
	return &fakePersister{nextID: 10, sessionID: 100}
}

func (p *fakePersister) RegisterMessage(_ context.Context, req chat.RegisterMessageRequest) (chat.RegisterMessageResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, req)
	if p.registerErr != nil {
		return chat.RegisterMessageResponse{}, p.registerErr
	}
	id := p.nextID
	if req.MessageID != nil {
		id = *req.MessageID
	} else {
		p.nextID++
	}
	session := p.sessionID
	if req.SessionID != nil {
		session = *req.SessionID
	}
	return chat.RegisterMessageResponse{Message: "ok", SessionID: session, MessageID: id}, nil
}

func (p *fakePersister) SetPreference(_ context.Context, messageID int64, pref chat.Preference) error {
	if pref == p.slowPreference {
		time.Sleep(p.slowDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preferences = append(p.preferences, chat.PreferenceRequest{MessageID: messageID, Preference: pref.Wire()})
	return nil
}

func (p *fakePersister) SessionMessages(context.Context, int64) ([]chat.PersistedMessage, error) {
	return p.history, nil
}

func (p *fakePersister) UserSessions(context.Context, string) ([]chat.SessionSummary, error) {
	return p.sessions, nil
}

func (p *fakePersister) ModelParams(context.Context) ([]chat.ModelDescriptor, error) {
	return p.models, nil
}

func (p *fakePersister) registeredCopy() []chat.RegisterMessageRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chat.RegisterMessageRequest(nil), p.registered...)
}

func (p *fakePersister) preferencesCopy() []chat.PreferenceRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chat.PreferenceRequest(nil), p.preferences...)
}
