package transcript

import "github.com/papercomputeco/typhoon/pkg/chat"

// Handle refers to the open message of a stream by its key, independent of
// its position in the transcript.
type Handle struct {
	store *Store
	key   uint64
}

func (h *Handle) Key() uint64 {
	return h.key
}

// Get returns the current value of the message.
func (h *Handle) Get() (chat.Message, bool) {
	return h.store.Message(h.key)
}

// Update applies fn to the message and publishes the new transcript.
func (h *Handle) Update(fn func(*chat.Message)) bool {
	return h.store.UpdateMessage(h.key, fn)
}
