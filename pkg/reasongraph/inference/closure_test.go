package inference

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
)

func TestClosureOrdering(t *testing.T) {
	f := newFixture(t, "Dog", "Mammal", "Animal", "LivingThing", "Pet")
	f.edge(t, "Dog", graph.IsA, "Mammal", 1.0)
	f.edge(t, "Mammal", graph.IsA, "Animal", 1.0)
	f.edge(t, "Animal", graph.IsA, "LivingThing", 1.0)
	f.edge(t, "Dog", graph.IsA, "Pet", 0.6)

	eng := newEngine(t, f, Options{})
	got := eng.TransitiveClosure(f.ids["Dog"], graph.IsA)

	want := []ClosureEntry{
		{Target: f.ids["Mammal"], Confidence: 1.0, Depth: 1},
		{Target: f.ids["Pet"], Confidence: 0.6, Depth: 1},
		{Target: f.ids["Animal"], Confidence: 0.9, Depth: 2},
		{Target: f.ids["LivingThing"], Confidence: 0.9 * 0.9, Depth: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("closure mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, eng.TransitiveClosure(f.ids["LivingThing"], graph.IsA))
	assert.Nil(t, eng.TransitiveClosure(999, graph.IsA))
}

func TestClosureExcludesStartOnCycle(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	f.edge(t, "A", graph.DependsOn, "B", 1.0)
	f.edge(t, "B", graph.DependsOn, "C", 1.0)
	f.edge(t, "C", graph.DependsOn, "A", 1.0)

	got := newEngine(t, f, Options{}).TransitiveClosure(f.ids["A"], graph.DependsOn)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.NotEqual(t, f.ids["A"], c.Target)
	}
}

// randomDAG builds an IS_A graph whose nodes sit on levels 0..levels-1 with
// edges only pointing downwards, so no path is longer than levels-1 hops.
func randomDAG(t *testing.T, rnd *rand.Rand, levels, perLevel int) *fixture {
	t.Helper()
	var labels []string
	level := make(map[string]int)
	for l := range levels {
		for i := range perLevel {
			label := fmt.Sprintf("n%d_%d", l, i)
			labels = append(labels, label)
			level[label] = l
		}
	}
	f := newFixture(t, labels...)
	for _, src := range labels {
		for _, tgt := range labels {
			if level[tgt] <= level[src] {
				continue
			}
			// favour short hops so long chains exist
			p := 0.5 / float64(level[tgt]-level[src])
			if rnd.Float64() < p {
				f.edge(t, src, graph.IsA, tgt, 0.5+0.5*rnd.Float64())
			}
		}
	}
	return f
}

func reachable(s *graph.Store, start graph.NodeID, rel graph.RelationType) map[graph.NodeID]bool {
	seen := make(map[graph.NodeID]bool)
	queue := []graph.NodeID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for n := range s.Neighbors(cur, graph.Out, rel) {
			if n.ID != start && !seen[n.ID] {
				seen[n.ID] = true
				queue = append(queue, n.ID)
			}
		}
	}
	return seen
}

func closureTargets(entries []ClosureEntry) map[graph.NodeID]bool {
	out := make(map[graph.NodeID]bool, len(entries))
	for _, c := range entries {
		out[c.Target] = true
	}
	return out
}

func TestClosureMatchesReachability(t *testing.T) {
	rnd := rand.New(rand.NewPCG(42, 1))
	for trial := range 5 {
		t.Run(fmt.Sprintf("trial%d", trial), func(t *testing.T) {
			f := randomDAG(t, rnd, 11, 3)
			eng := newEngine(t, f, Options{})

			// reachability is computed on asserted edges before the run
			want := make(map[graph.NodeID]map[graph.NodeID]bool)
			for _, n := range f.store.Nodes() {
				want[n.ID] = reachable(f.store, n.ID, graph.IsA)
				got := closureTargets(eng.TransitiveClosure(n.ID, graph.IsA))
				if diff := cmp.Diff(want[n.ID], got); diff != "" {
					t.Fatalf("closure of %d before run (-want +got):\n%s", n.ID, diff)
				}
			}

			res, err := eng.Run(context.Background())
			require.NoError(t, err)
			require.True(t, res.Converged())

			for _, n := range f.store.Nodes() {
				direct := make(map[graph.NodeID]bool)
				for m := range f.store.Neighbors(n.ID, graph.Out, graph.IsA) {
					direct[m.ID] = true
				}
				if diff := cmp.Diff(want[n.ID], direct); diff != "" {
					t.Fatalf("derived IS_A edges of %d (-want +got):\n%s", n.ID, diff)
				}
				got := closureTargets(eng.TransitiveClosure(n.ID, graph.IsA))
				if diff := cmp.Diff(want[n.ID], got); diff != "" {
					t.Fatalf("closure of %d after run (-want +got):\n%s", n.ID, diff)
				}
			}
		})
	}
}
