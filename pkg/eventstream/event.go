package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/typhoon/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnRelayed is emitted after a relayed chat turn is recorded.
	EventTypeTurnRelayed = "typhoon.turn.relayed"
)

// TurnRelayedEvent is a transport-neutral event payload for a relayed turn.
type TurnRelayedEvent struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	Request       TurnRequestMeta `json:"request_meta"`
	Turn          storage.Turn    `json:"turn"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	Path       string `json:"path,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	HTTPStatus int    `json:"http_status"`
}

// NewTurnRelayedEvent builds the event for a recorded turn.
func NewTurnRelayedEvent(turn *storage.Turn, path string, status int) *TurnRelayedEvent {
	return &TurnRelayedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnRelayed,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Request: TurnRequestMeta{
			Path:       path,
			DurationMs: turn.Duration().Milliseconds(),
			HTTPStatus: status,
		},
		Turn: *turn,
	}
}
