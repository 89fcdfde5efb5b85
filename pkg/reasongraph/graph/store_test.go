package graph

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, labels ...string) *Store {
	t.Helper()
	s := NewStore(WithClock(func() time.Time { return fixedTime }))
	for i, label := range labels {
		require.NoError(t, s.AddNode(Node{ID: NodeID(i + 1), Label: label}))
	}
	return s
}

func TestAddNodeThenGetNodeIsIdentical(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewStore()
	want := map[NodeID]Node{}
	for i := 0; i < 200; i++ {
		id := NodeID(rng.Int63n(1<<40) + 1)
		if _, dup := want[id]; dup {
			continue
		}
		n := Node{
			ID:         id,
			Label:      "n",
			Type:       "concept",
			Attributes: map[string]string{"k": "v"},
			CreatedAt:  fixedTime,
		}
		require.NoError(t, s.AddNode(n))
		want[id] = n
	}
	for id, n := range want {
		got, ok := s.Node(id)
		require.True(t, ok)
		if diff := cmp.Diff(n, got); diff != "" {
			t.Fatalf("node %d mismatch (-want +got):\n%s", id, diff)
		}
	}
}

func TestAddNodeRejectsDuplicateAndReservedIDs(t *testing.T) {
	s := newTestStore(t, "Dog")

	err := s.AddNode(Node{ID: 1, Label: "Other"})
	require.ErrorIs(t, err, internalerr.ErrDuplicate)
	assert.True(t, internalerr.IsValidation(err))

	n, _ := s.Node(1)
	assert.Equal(t, "Dog", n.Label)

	assert.ErrorIs(t, s.AddNode(Node{ID: 0}), internalerr.ErrInvalidInput)
	assert.ErrorIs(t, s.AddNode(Node{ID: -3}), internalerr.ErrInvalidInput)
}

func TestNodeCopiesAreIsolated(t *testing.T) {
	s := NewStore()
	attrs := map[string]string{"color": "brown"}
	require.NoError(t, s.AddNode(Node{ID: 1, Attributes: attrs}))
	attrs["color"] = "black"

	n, _ := s.Node(1)
	assert.Equal(t, "brown", n.Attributes["color"])

	n.Attributes["color"] = "white"
	again, _ := s.Node(1)
	assert.Equal(t, "brown", again.Attributes["color"])
}

func TestAddEdgeUnknownEndpointLeavesStoreUnchanged(t *testing.T) {
	s := newTestStore(t, "A", "B")
	_, err := s.AddEdge(1, 2, IsA, 0.9)
	require.NoError(t, err)
	before := s.Stats()

	cases := []struct{ src, tgt NodeID }{{1, 99}, {99, 2}, {98, 99}}
	for _, tc := range cases {
		_, err := s.AddEdge(tc.src, tc.tgt, PartOf, 1)
		require.ErrorIs(t, err, internalerr.ErrUnknownNode)
		assert.True(t, internalerr.IsValidation(err))
	}
	assert.Equal(t, before, s.Stats())
	assert.NoError(t, s.CheckIntegrity())
}

func TestAddEdgeValidatesConfidenceAndRelation(t *testing.T) {
	s := newTestStore(t, "A", "B")
	for _, c := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		_, err := s.AddEdge(1, 2, IsA, c)
		assert.ErrorIs(t, err, internalerr.ErrConfidenceRange, "confidence %v", c)
	}
	_, err := s.AddEdge(1, 2, RelationUnknown, 1)
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
	assert.Zero(t, s.EdgeCount())
}

func TestAddEdgeRejectsDuplicateAssertion(t *testing.T) {
	s := newTestStore(t, "A", "B")
	_, err := s.AddEdge(1, 2, IsA, 1)
	require.NoError(t, err)
	_, err = s.AddEdge(1, 2, IsA, 0.5)
	assert.ErrorIs(t, err, internalerr.ErrDuplicate)

	// same pair with another relation is a different fact
	_, err = s.AddEdge(1, 2, PartOf, 0.5)
	assert.NoError(t, err)
}

func TestPutInferredCreatesThenUpgrades(t *testing.T) {
	s := newTestStore(t, "A", "B", "C")
	ab, _ := s.AddEdge(1, 2, IsA, 1)
	bc, _ := s.AddEdge(2, 3, IsA, 1)

	d := Derivation{RuleID: "transitive_is_a", Depth: 2, Supporters: []EdgeID{ab.ID, bc.ID}, Path: []NodeID{1, 2, 3}}
	e, created, err := s.PutInferred(1, 3, IsA, 0.5, d)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, Inferred, e.Provenance)
	assert.Equal(t, 2, e.Depth())
	assert.Equal(t, "transitive_is_a", e.RuleID())

	up, created, err := s.PutInferred(1, 3, IsA, 0.8, d)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e.ID, up.ID)
	assert.InDelta(t, 0.8, up.Confidence, 1e-9)
	assert.Equal(t, 3, s.EdgeCount())
}

func TestPutInferredValidatesDerivation(t *testing.T) {
	s := newTestStore(t, "A", "B", "C")
	ab, _ := s.AddEdge(1, 2, IsA, 1)

	_, _, err := s.PutInferred(1, 3, IsA, 0.5, Derivation{Depth: 2})
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)

	_, _, err = s.PutInferred(1, 3, IsA, 0.5, Derivation{RuleID: "r", Depth: 1, Supporters: []EdgeID{ab.ID}})
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)

	_, _, err = s.PutInferred(1, 3, IsA, 0.5, Derivation{RuleID: "r", Depth: 2, Supporters: []EdgeID{404}})
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
	assert.Equal(t, 1, s.EdgeCount())
}

func TestAssertedAndInferredCoexist(t *testing.T) {
	s := newTestStore(t, "A", "B")
	a, _ := s.AddEdge(1, 2, IsA, 0.3)
	i, _, err := s.PutInferred(1, 2, IsA, 0.7, Derivation{RuleID: "r", Depth: 2, Supporters: []EdgeID{a.ID}})
	require.NoError(t, err)

	key := Triple{Source: 1, Target: 2, Relation: IsA}
	got, ok := s.Lookup(key, Asserted)
	require.True(t, ok)
	assert.Equal(t, a.ID, got.ID)
	got, ok = s.Lookup(key, Inferred)
	require.True(t, ok)
	assert.Equal(t, i.ID, got.ID)

	best, ok := s.Best(1, 2, IsA)
	require.True(t, ok)
	assert.Equal(t, i.ID, best.ID)
}

func TestNeighborsDirectionsAndFilter(t *testing.T) {
	s := newTestStore(t, "Transformers", "Neural Networks", "Attention", "Deep Learning")
	mustEdge(t, s, 1, 2, IsA)
	mustEdge(t, s, 1, 3, Uses)
	mustEdge(t, s, 4, 1, RelatedTo)

	collect := func(dir Direction, rels ...RelationType) []NodeID {
		var ids []NodeID
		for n := range s.Neighbors(1, dir, rels...) {
			ids = append(ids, n.ID)
		}
		return ids
	}
	assert.Equal(t, []NodeID{2, 3}, collect(Out))
	assert.Equal(t, []NodeID{4}, collect(In))
	assert.Equal(t, []NodeID{2, 3, 4}, collect(Both))
	assert.Equal(t, []NodeID{3}, collect(Both, Uses))
	assert.Empty(t, collect(Out, PartOf))
}

func TestNeighborsIsRestartableAndStopsEarly(t *testing.T) {
	s := newTestStore(t, "A", "B", "C")
	mustEdge(t, s, 1, 2, IsA)
	mustEdge(t, s, 1, 3, IsA)

	seq := s.Neighbors(1, Out)
	for range 2 {
		count := 0
		for range seq {
			count++
		}
		assert.Equal(t, 2, count)
	}

	seen := 0
	for range seq {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestNeighborsSelfLoopYieldedOnce(t *testing.T) {
	s := newTestStore(t, "Thing")
	mustEdge(t, s, 1, 1, IsA)
	count := 0
	for range s.Neighbors(1, Both) {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestRemoveNodeCascades(t *testing.T) {
	s := newTestStore(t, "A", "B", "C")
	mustEdge(t, s, 1, 2, IsA)
	mustEdge(t, s, 2, 3, IsA)
	mustEdge(t, s, 3, 2, RelatedTo)
	mustEdge(t, s, 1, 3, PartOf)

	removed, err := s.RemoveNode(2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, s.EdgeCount())
	assert.False(t, s.HasNode(2))
	assert.Zero(t, s.RelationCount(IsA))
	assert.NoError(t, s.CheckIntegrity())

	_, err = s.RemoveNode(2)
	assert.ErrorIs(t, err, internalerr.ErrUnknownNode)
}

func TestRemoveInferredKeepsAsserted(t *testing.T) {
	s := newTestStore(t, "A", "B", "C")
	ab := mustEdge(t, s, 1, 2, IsA)
	bc := mustEdge(t, s, 2, 3, IsA)
	_, _, err := s.PutInferred(1, 3, IsA, 0.9, Derivation{RuleID: "r", Depth: 2, Supporters: []EdgeID{ab.ID, bc.ID}})
	require.NoError(t, err)

	assert.Equal(t, 1, s.RemoveInferred())
	assert.Equal(t, 2, s.EdgeCount())
	assert.NoError(t, s.CheckIntegrity())
}

func TestRemoveDependentsFollowsChains(t *testing.T) {
	s := newTestStore(t, "A", "B", "C", "D")
	ab := mustEdge(t, s, 1, 2, IsA)
	bc := mustEdge(t, s, 2, 3, IsA)
	cd := mustEdge(t, s, 3, 4, IsA)
	ac, _, err := s.PutInferred(1, 3, IsA, 0.9, Derivation{RuleID: "r", Depth: 2, Supporters: []EdgeID{ab.ID, bc.ID}})
	require.NoError(t, err)
	_, _, err = s.PutInferred(1, 4, IsA, 0.81, Derivation{RuleID: "r", Depth: 3, Supporters: []EdgeID{ac.ID, cd.ID}})
	require.NoError(t, err)
	_, _, err = s.PutInferred(2, 4, IsA, 0.9, Derivation{RuleID: "r", Depth: 2, Supporters: []EdgeID{bc.ID, cd.ID}})
	require.NoError(t, err)

	assert.Equal(t, 2, s.RemoveDependents(ab.ID))
	_, ok := s.Edge(ab.ID)
	assert.True(t, ok, "the edge itself stays")
	_, ok = s.Best(2, 4, IsA)
	assert.True(t, ok, "B to D does not rest on A to B")
	assert.Equal(t, 4, s.EdgeCount())
	assert.NoError(t, s.CheckIntegrity())
	assert.Zero(t, s.RemoveDependents(ab.ID))
}

func TestCheckIntegrityRejectsShallowDependent(t *testing.T) {
	s := newTestStore(t, "A", "B", "C", "D")
	ab := mustEdge(t, s, 1, 2, IsA)
	bc := mustEdge(t, s, 2, 3, IsA)
	cd := mustEdge(t, s, 3, 4, IsA)
	ac, _, err := s.PutInferred(1, 3, IsA, 0.5, Derivation{RuleID: "r", Depth: 2, Supporters: []EdgeID{ab.ID, bc.ID}})
	require.NoError(t, err)
	_, _, err = s.PutInferred(1, 4, IsA, 0.45, Derivation{RuleID: "r", Depth: 3, Supporters: []EdgeID{ac.ID, cd.ID}})
	require.NoError(t, err)
	require.NoError(t, s.CheckIntegrity())

	// upgrading A to C in place without touching A to D leaves A to D too shallow
	_, created, err := s.PutInferred(1, 3, IsA, 0.9, Derivation{RuleID: "r", Depth: 4, Supporters: []EdgeID{ab.ID, bc.ID}})
	require.NoError(t, err)
	require.False(t, created)
	assert.ErrorIs(t, s.CheckIntegrity(), ErrCorrupt)

	restored := NewStore()
	err = restored.Restore(s.Nodes(), s.Edges())
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
	assert.Zero(t, restored.EdgeCount())
}

func TestStatsHistogram(t *testing.T) {
	s := newTestStore(t, "A", "B", "C")
	mustEdge(t, s, 1, 2, IsA)
	mustEdge(t, s, 2, 3, IsA)
	mustEdge(t, s, 1, 3, Uses)

	st := s.Stats()
	assert.Equal(t, 3, st.Nodes)
	assert.Equal(t, 3, st.Edges)
	assert.Equal(t, 3, st.Asserted)
	assert.Equal(t, map[RelationType]int{IsA: 2, Uses: 1}, st.ByRelation)
}

func TestUpdateConfidence(t *testing.T) {
	s := newTestStore(t, "A", "B")
	e := mustEdge(t, s, 1, 2, IsA)
	require.NoError(t, s.UpdateConfidence(e.ID, 0.25))
	got, _ := s.Edge(e.ID)
	assert.InDelta(t, 0.25, got.Confidence, 1e-9)
	assert.ErrorIs(t, s.UpdateConfidence(e.ID, 2), internalerr.ErrConfidenceRange)
	assert.ErrorIs(t, s.UpdateConfidence(999, 0.5), internalerr.ErrNotFound)
}

func TestRestoreRoundTrip(t *testing.T) {
	s := newTestStore(t, "A", "B", "C")
	ab := mustEdge(t, s, 1, 2, IsA)
	bc := mustEdge(t, s, 2, 3, IsA)
	_, _, err := s.PutInferred(1, 3, IsA, 0.9, Derivation{RuleID: "r", Depth: 2, Supporters: []EdgeID{ab.ID, bc.ID}, Path: []NodeID{1, 2, 3}})
	require.NoError(t, err)

	restored := NewStore()
	require.NoError(t, restored.Restore(s.Nodes(), s.Edges()))
	if diff := cmp.Diff(s.Edges(), restored.Edges()); diff != "" {
		t.Fatalf("edges mismatch (-want +got):\n%s", diff)
	}
	assert.NoError(t, restored.CheckIntegrity())

	// new edges continue after the restored ids
	next, err := restored.AddEdge(3, 1, RelatedTo, 1)
	require.NoError(t, err)
	assert.Equal(t, EdgeID(4), next.ID)
}

func TestRestoreRejectsBadSnapshotAndResets(t *testing.T) {
	s := NewStore()
	nodes := []Node{{ID: 1}, {ID: 2}}
	edges := []Edge{
		{ID: 1, Source: 1, Target: 2, Relation: IsA, Confidence: 1, Provenance: Asserted},
		{ID: 2, Source: 1, Target: 7, Relation: IsA, Confidence: 1, Provenance: Asserted},
	}
	err := s.Restore(nodes, edges)
	require.ErrorIs(t, err, internalerr.ErrUnknownNode)
	assert.Zero(t, s.NodeCount())
	assert.Zero(t, s.EdgeCount())
}

func TestCheckIntegrityDetectsCorruption(t *testing.T) {
	s := newTestStore(t, "A", "B")
	e := mustEdge(t, s, 1, 2, IsA)
	require.NoError(t, s.CheckIntegrity())

	s.out[1] = append(s.out[1], e.ID)
	assert.ErrorIs(t, s.CheckIntegrity(), ErrCorrupt)
	assert.Panics(t, s.MustCheckIntegrity)
}

func TestNodeByLabelAndSetters(t *testing.T) {
	s := newTestStore(t, "Dog", "Cat")
	n, ok := s.NodeByLabel("Cat")
	require.True(t, ok)
	assert.Equal(t, NodeID(2), n.ID)

	require.NoError(t, s.SetLabel(2, "Feline"))
	require.NoError(t, s.SetAttribute(2, "legs", "4"))
	n, _ = s.Node(2)
	assert.Equal(t, "Feline", n.Label)
	assert.Equal(t, "4", n.Attributes["legs"])
	assert.ErrorIs(t, s.SetLabel(9, "x"), internalerr.ErrUnknownNode)
}

func mustEdge(t *testing.T, s *Store, src, tgt NodeID, rel RelationType) Edge {
	t.Helper()
	e, err := s.AddEdge(src, tgt, rel, 1)
	require.NoError(t, err)
	return e
}
