// Package storage records the chat turns relayed by typhoon.
package storage

import (
	"context"
	"time"
)

// TurnStatus is how a relayed stream ended.
type TurnStatus string

const (
	// TurnComplete means the backend sent the done sentinel.
	TurnComplete TurnStatus = "complete"

	// TurnIncomplete means the stream ended without the sentinel, or the
	// caller went away.
	TurnIncomplete TurnStatus = "incomplete"

	// TurnFailed means the backend could not be reached.
	TurnFailed TurnStatus = "failed"
)

// TurnSource is where the relayed events came from.
type TurnSource string

const (
	SourceBackend TurnSource = "backend"
	SourceMock    TurnSource = "mock"
)

// Turn is the record of one relayed chat stream.
type Turn struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	MessageCount int        `json:"message_count"`
	Prompt       string     `json:"prompt"`
	Content      string     `json:"content"`
	Tokens       int        `json:"tokens"`
	TokenRate    float64    `json:"token_rate"`
	Events       int        `json:"events"`
	Skipped      int        `json:"skipped"`
	Status       TurnStatus `json:"status"`
	Source       TurnSource `json:"source"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  time.Time  `json:"completed_at"`
}

// Duration is how long the stream was open.
func (t *Turn) Duration() time.Duration {
	return t.CompletedAt.Sub(t.StartedAt)
}

// ListOptions narrows List.
type ListOptions struct {
	// Limit caps the number of turns returned. Zero means no limit.
	Limit int
}

// Driver defines the interface for persisting and retrieving relayed turns.
type Driver interface {
	// Put stores a turn. Storing an ID twice is an error.
	Put(ctx context.Context, turn *Turn) error

	// Get retrieves a turn by its ID.
	Get(ctx context.Context, id string) (*Turn, error)

	// List returns turns, most recently started first.
	List(ctx context.Context, opts ListOptions) ([]*Turn, error)

	// Close closes the store and releases any resources.
	Close() error
}
