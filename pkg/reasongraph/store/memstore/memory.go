package memstore

import (
	"context"
	"sync"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
	"github.com/cognicore/reasongraph/pkg/reasongraph/store"
)

// Store is an in-memory implementation of store.Snapshotter for tests and
// the CLI's default driver.
type Store struct {
	mu     sync.RWMutex
	snap   store.Snapshot
	saves  int
	closed bool
}

// New creates an empty in-memory snapshot store.
func New() *Store {
	return &Store{}
}

// Close implements store.Snapshotter.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SaveGraph implements store.Snapshotter.
func (s *Store) SaveGraph(ctx context.Context, g *graph.Store) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := store.Capture(g)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return internalerr.ErrStoreUnavailable
	}
	s.snap = snap
	s.saves++
	return nil
}

// LoadGraph implements store.Snapshotter.
func (s *Store) LoadGraph(ctx context.Context, opts ...graph.Option) (*graph.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, internalerr.ErrStoreUnavailable
	}
	// Restore copies nodes and edges, so the held snapshot stays private.
	return s.snap.Build(opts...)
}

// Saves returns how many snapshots have been written.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

var _ store.Snapshotter = (*Store)(nil)
