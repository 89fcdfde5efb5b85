package inference

import (
	"cmp"
	"slices"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
)

// ClosureEntry is one node reachable through a transitive relation.
type ClosureEntry struct {
	Target     graph.NodeID `json:"target"`
	Confidence float64      `json:"confidence"`
	Depth      int          `json:"depth"`
}

// TransitiveClosure returns every node reachable from id over edges of rel,
// asserted and inferred alike. Confidence and depth combine the way the
// transitive rule for rel would combine them; without such a rule the
// confidence is the weakest link and depth is unbounded by any rule.
// Entries are ordered by depth, then descending confidence, then target.
func (e *Engine) TransitiveClosure(id graph.NodeID, rel graph.RelationType) []ClosureEntry {
	if !e.store.HasNode(id) {
		return nil
	}
	decay, maxDepth := 1.0, e.store.NodeCount()
	if rule, ok := e.rules.TransitiveFor(rel); ok {
		decay, maxDepth = rule.Decay, rule.MaxDepth
	}

	best := make(map[graph.NodeID]ClosureEntry)
	var queue []ClosureEntry
	offer := func(c ClosureEntry) {
		if c.Target == id || c.Depth > maxDepth {
			return
		}
		if cur, ok := best[c.Target]; ok {
			if c.Confidence < cur.Confidence || (c.Confidence == cur.Confidence && c.Depth >= cur.Depth) {
				return
			}
		}
		best[c.Target] = c
		queue = append(queue, c)
	}

	for _, edge := range e.store.Neighbors(id, graph.Out, rel) {
		offer(ClosureEntry{Target: edge.Target, Confidence: edge.Confidence, Depth: edge.Depth()})
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if b := best[cur.Target]; b != cur {
			continue // superseded while queued
		}
		for _, edge := range e.store.Neighbors(cur.Target, graph.Out, rel) {
			offer(ClosureEntry{
				Target:     edge.Target,
				Confidence: min(cur.Confidence, edge.Confidence) * decay,
				Depth:      max(cur.Depth, edge.Depth()) + 1,
			})
		}
	}

	out := make([]ClosureEntry, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b ClosureEntry) int {
		return cmp.Or(
			cmp.Compare(a.Depth, b.Depth),
			cmp.Compare(b.Confidence, a.Confidence),
			cmp.Compare(a.Target, b.Target),
		)
	})
	return out
}
