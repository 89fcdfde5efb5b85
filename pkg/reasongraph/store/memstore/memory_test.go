package memstore

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
)

func sampleGraph(t *testing.T) *graph.Store {
	t.Helper()
	g := graph.NewStore()
	require.NoError(t, g.AddNode(graph.Node{ID: 1, Label: "wheel", Attributes: map[string]string{"round": "yes"}}))
	require.NoError(t, g.AddNode(graph.Node{ID: 2, Label: "car"}))
	require.NoError(t, g.AddNode(graph.Node{ID: 3, Label: "fleet"}))
	a, err := g.AddEdge(1, 2, graph.PartOf, 1)
	require.NoError(t, err)
	b, err := g.AddEdge(2, 3, graph.PartOf, 0.9)
	require.NoError(t, err)
	_, _, err = g.PutInferred(1, 3, graph.PartOf, 0.81, graph.Derivation{
		RuleID:     "transitive_part_of",
		Depth:      2,
		Supporters: []graph.EdgeID{a.ID, b.ID},
		Path:       []graph.NodeID{1, 2, 3},
	})
	require.NoError(t, err)
	return g
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	g := sampleGraph(t)
	require.NoError(t, s.SaveGraph(ctx, g))
	assert.Equal(t, 1, s.Saves())

	loaded, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(g.Edges(), loaded.Edges()); diff != "" {
		t.Errorf("edges mismatch (-saved +loaded):\n%s", diff)
	}
	if diff := cmp.Diff(g.Nodes(), loaded.Nodes()); diff != "" {
		t.Errorf("nodes mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	ctx := context.Background()
	s := New()
	g := sampleGraph(t)
	require.NoError(t, s.SaveGraph(ctx, g))

	// Mutations after the save do not reach the snapshot.
	require.NoError(t, g.SetAttribute(1, "round", "no"))
	assert.Equal(t, 1, g.RemoveInferred())

	first, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.EdgeCount())
	n, _ := first.Node(1)
	assert.Equal(t, "yes", n.Attributes["round"])

	// Nor do mutations of a loaded graph.
	require.NoError(t, first.SetAttribute(1, "round", "maybe"))
	second, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	n, _ = second.Node(1)
	assert.Equal(t, "yes", n.Attributes["round"])
}

func TestLoadBeforeSaveIsEmpty(t *testing.T) {
	g, err := New().LoadGraph(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, g.NodeCount())
}

func TestClosedStore(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.SaveGraph(context.Background(), graph.NewStore()), internalerr.ErrStoreUnavailable)
	_, err := s.LoadGraph(context.Background())
	assert.ErrorIs(t, err, internalerr.ErrStoreUnavailable)
}
