package chat

import (
	"fmt"
	"strings"
)

// Turn is one prior message sent to the chat backend.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body accepted by the relay and forwarded verbatim to the
// backend chat service.
type ChatRequest struct {
	// Ordered list of prior turns, oldest first.
	Messages []Turn `json:"messages"`

	// Model identifier (the model's short name).
	Model string `json:"model"`

	// Generation knobs. Passed through to the backend without inspection.
	Params map[string]any `json:"params,omitempty"`
}

// Validate checks the request shape before it is relayed.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrEmptyMessages
	}
	if strings.TrimSpace(r.Model) == "" {
		return ErrMissingModel
	}
	for i, t := range r.Messages {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return fmt.Errorf("message %d: %w: %q", i, ErrUnknownRole, t.Role)
		}
	}
	return nil
}

// LastUserContent returns the content of the most recent user turn.
func (r *ChatRequest) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// TurnsFrom converts transcript messages into request turns.
func TurnsFrom(msgs []Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: m.Role(), Content: m.Content})
	}
	return turns
}
