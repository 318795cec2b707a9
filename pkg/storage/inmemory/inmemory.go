// Package inmemory provides a map-backed storage driver for tests and
// single-process deployments.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/papercomputeco/typhoon/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of turns
	mu sync.RWMutex

	// turns is the in memory map of turns keyed by turn ID
	turns map[string]*storage.Turn
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		turns: make(map[string]*storage.Turn),
	}
}

func (s *Driver) Put(_ context.Context, turn *storage.Turn) error {
	if turn == nil {
		return storage.ErrNilTurn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.turns[turn.ID]; ok {
		return fmt.Errorf("turn %s already stored", turn.ID)
	}

	cp := *turn
	s.turns[turn.ID] = &cp
	return nil
}

func (s *Driver) Get(_ context.Context, id string) (*storage.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turn, ok := s.turns[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	cp := *turn
	return &cp, nil
}

func (s *Driver) List(_ context.Context, opts storage.ListOptions) ([]*storage.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*storage.Turn, 0, len(s.turns))
	for _, turn := range s.turns {
		cp := *turn
		result = append(result, &cp)
	}

	slices.SortFunc(result, func(a, b *storage.Turn) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Close is a no-op for the in-memory store.
func (s *Driver) Close() error {
	return nil
}
