// Package transcript assembles streamed chat turns into a shared, observable
// transcript.
package transcript

import (
	"slices"
	"sync"

	"github.com/papercomputeco/typhoon/pkg/chat"
)

// State is an immutable snapshot of the shared chat UI state.
type State struct {
	// Messages is the transcript, oldest first.
	Messages []chat.Message

	// SessionID is the selected session. Nil means a new session that the
	// backend has not allocated yet.
	SessionID *int64

	Model  chat.ModelName
	Params chat.ModelParams
}

func (s State) clone() State {
	s.Messages = slices.Clone(s.Messages)
	if s.SessionID != nil {
		id := *s.SessionID
		s.SessionID = &id
	}
	return s
}

// Store holds the shared state. Every change replaces the whole state, and
// subscribers are called with the new snapshot after the change is visible.
// Subscribers see changes in commit order and must not change the Store.
type Store struct {
	// notifyMu serializes commit plus fan-out; it is taken before mu.
	notifyMu sync.Mutex
	mu       sync.Mutex
	state   State
	nextKey uint64
	subs    map[uint64]func(State)
	nextSub uint64
}

// NewStore creates a Store seeded with initial.
func NewStore(initial State) *Store {
	s := &Store{subs: map[uint64]func(State){}}
	s.state = s.withKeys(initial.clone())
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Set replaces the state.
func (s *Store) Set(st State) {
	s.Update(func(State) State { return st })
}

// Update replaces the state with fn's result. fn receives a private copy.
func (s *Store) Update(fn func(State) State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := s.withKeys(fn(s.state.clone()).clone())
	s.state = next
	subs := make([]func(State), 0, len(s.subs))
	for _, id := range sortedKeys(s.subs) {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next.clone())
	}
}

// Subscribe registers fn to be called after every change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// withKeys assigns a local key to every message that has none.
// Callers hold s.mu.
func (s *Store) withKeys(st State) State {
	for i := range st.Messages {
		if st.Messages[i].Key == 0 {
			s.nextKey++
			st.Messages[i].Key = s.nextKey
		}
	}
	return st
}

func sortedKeys(m map[uint64]func(State)) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Messages returns a copy of the transcript.
func (s *Store) Messages() []chat.Message {
	return s.Snapshot().Messages
}

// Message returns the message with the given key.
func (s *Store) Message(key uint64) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.state.Messages {
		if m.Key == key {
			return m, true
		}
	}
	return chat.Message{}, false
}

// Append adds msg to the end of the transcript and returns its key.
func (s *Store) Append(msg chat.Message) uint64 {
	s.mu.Lock()
	s.nextKey++
	key := s.nextKey
	s.mu.Unlock()

	msg.Key = key
	s.Update(func(st State) State {
		st.Messages = append(st.Messages, msg)
		return st
	})
	return key
}

// UpdateMessage applies fn to a copy of the message with the given key and
// stores the result. It reports whether the message was found.
func (s *Store) UpdateMessage(key uint64, fn func(*chat.Message)) bool {
	found := false
	s.Update(func(st State) State {
		for i := range st.Messages {
			if st.Messages[i].Key == key {
				fn(&st.Messages[i])
				st.Messages[i].Key = key
				found = true
				break
			}
		}
		return st
	})
	return found
}

// ReplaceMessages swaps the whole transcript.
func (s *Store) ReplaceMessages(msgs []chat.Message) {
	s.Update(func(st State) State {
		st.Messages = slices.Clone(msgs)
		return st
	})
}

// SessionID returns the selected session, or nil.
func (s *Store) SessionID() *int64 {
	return s.Snapshot().SessionID
}

// SelectSession changes the selected session.
func (s *Store) SelectSession(id *int64) {
	s.Update(func(st State) State {
		st.SessionID = id
		return st
	})
}

// NewSession discards the transcript and clears the session selection.
func (s *Store) NewSession() {
	s.Update(func(st State) State {
		st.Messages = nil
		st.SessionID = nil
		return st
	})
}

func (s *Store) ModelName() chat.ModelName {
	return s.Snapshot().Model
}

func (s *Store) SetModelName(name chat.ModelName) {
	s.Update(func(st State) State {
		st.Model = name
		return st
	})
}

func (s *Store) ModelParams() chat.ModelParams {
	return s.Snapshot().Params
}

func (s *Store) SetModelParams(p chat.ModelParams) {
	s.Update(func(st State) State {
		st.Params = p
		return st
	})
}
