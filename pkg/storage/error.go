package storage

import "errors"

// ErrNilTurn is returned when Put is called without a turn.
var ErrNilTurn = errors.New("cannot store nil turn")

// NotFoundError is returned when a turn doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "turn not found"
	}

	return "turn not found: " + e.ID
}
