// Package chat defines the chat data model shared by the typhoon relay, the
// transcript assembler and the persistence side channel.
package chat

import "fmt"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// roleBot is the legacy name persisted by older backends for model turns.
	roleBot Role = "bot"
)

// ParseRole converts a wire role into a Role, accepting "bot" as an alias
// for the assistant.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant, roleBot:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Preference is the user's rating of a bot turn.
type Preference string

const (
	PreferenceNeutral Preference = "neutral"
	PreferenceLike    Preference = "like"
	PreferenceDislike Preference = "dislike"

	// wireNeutral is how the persistence backend spells PreferenceNeutral.
	wireNeutral = "na"
)

// Wire returns the preference as the persistence backend expects it.
func (p Preference) Wire() string {
	switch p {
	case PreferenceLike, PreferenceDislike:
		return string(p)
	default:
		return wireNeutral
	}
}

// ParsePreference accepts both the wire and the local spelling. An empty
// value is neutral.
func ParsePreference(s string) (Preference, error) {
	switch s {
	case "", wireNeutral, string(PreferenceNeutral):
		return PreferenceNeutral, nil
	case string(PreferenceLike):
		return PreferenceLike, nil
	case string(PreferenceDislike):
		return PreferenceDislike, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPreference, s)
	}
}

// Status tracks whether a message is still receiving stream fragments.
type Status string

const (
	StatusComplete   Status = "complete"
	StatusStreaming  Status = "streaming"
	StatusIncomplete Status = "incomplete"
)

// Message is one turn in a conversation transcript.
type Message struct {
	// Key is the local identity of the message within a transcript. It is
	// assigned by the transcript store and never sent over the wire.
	Key uint64 `json:"-"`

	// Content is the accumulated text. It only grows while Status is
	// StatusStreaming.
	Content string `json:"content"`

	IsBot bool `json:"isbot"`

	// TokenCount is the last value reported by the backend for this turn.
	TokenCount int `json:"tokens"`

	// TokenRate is tokens per second, rounded to 2 decimal places.
	TokenRate float64 `json:"tokenSpeed"`

	// MessageID is assigned once the backend has persisted the turn.
	// A nil MessageID means the turn is not durably stored.
	MessageID *int64 `json:"message_id,omitempty"`

	Preference Preference `json:"preference"`
	Status     Status     `json:"status"`
}

// Role returns the wire role of the message.
func (m Message) Role() Role {
	if m.IsBot {
		return RoleAssistant
	}
	return RoleUser
}

// Persisted reports whether the backend acknowledged the message.
func (m Message) Persisted() bool {
	return m.MessageID != nil
}

// NewUserMessage returns a complete user turn.
func NewUserMessage(content string) Message {
	return Message{
		Content:    content,
		Preference: PreferenceNeutral,
		Status:     StatusComplete,
	}
}

// NewBotMessage returns an empty bot turn that is open for streaming.
func NewBotMessage() Message {
	return Message{
		IsBot:      true,
		Preference: PreferenceNeutral,
		Status:     StatusStreaming,
	}
}
