// Package store persists graph snapshots. A snapshot is the full node and
// edge set of a graph.Store, including derivations, so a restored graph
// answers queries and explanations exactly as before it was saved.
package store

import (
	"context"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
)

// Snapshotter saves and loads whole graphs.
type Snapshotter interface {
	// SaveGraph replaces the stored snapshot with the contents of g.
	SaveGraph(ctx context.Context, g *graph.Store) error
	// LoadGraph returns a new store built from the saved snapshot. An
	// empty store is returned when nothing has been saved.
	LoadGraph(ctx context.Context, opts ...graph.Option) (*graph.Store, error)
	Close() error
}

// Snapshot is a detached copy of a graph's contents.
type Snapshot struct {
	Nodes []graph.Node
	Edges []graph.Edge
}

// Capture copies the contents of g.
func Capture(g *graph.Store) Snapshot {
	return Snapshot{Nodes: g.Nodes(), Edges: g.Edges()}
}

// Build restores the snapshot into a new store.
func (s Snapshot) Build(opts ...graph.Option) (*graph.Store, error) {
	g := graph.NewStore(opts...)
	if err := g.Restore(s.Nodes, s.Edges); err != nil {
		return nil, err
	}
	return g, nil
}
