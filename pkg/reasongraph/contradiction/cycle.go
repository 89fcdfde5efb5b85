package contradiction

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
)

const (
	white = iota
	grey
	black
)

type frame struct {
	node  graph.NodeID
	via   graph.EdgeID // edge that entered node, 0 for a root
	edges []graph.Edge
	next  int
}

// Cycles finds cycles of two or more distinct nodes in every acyclic
// relation. Each distinct node set is reported once.
func (d *Detector) Cycles(ctx context.Context) ([]Contradiction, error) {
	var out []Contradiction
	for _, rel := range graph.Relations() {
		if !graph.SemanticsOf(rel).Acyclic {
			continue
		}
		found, err := d.cyclesOf(ctx, rel)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

// cyclesOf runs an iterative three-colour DFS over the edges of rel.
func (d *Detector) cyclesOf(ctx context.Context, rel graph.RelationType) ([]Contradiction, error) {
	var roots []graph.NodeID
	for e := range d.store.EdgesByRelation(rel) {
		roots = append(roots, e.Source)
	}
	if len(roots) == 0 {
		return nil, nil
	}
	slices.Sort(roots)
	roots = slices.Compact(roots)

	color := make(map[graph.NodeID]int)
	seen := make(map[string]bool)
	var out []Contradiction

	outEdges := func(id graph.NodeID) []graph.Edge {
		var es []graph.Edge
		for _, e := range d.store.Neighbors(id, graph.Out, rel) {
			es = append(es, e)
		}
		return es
	}

	for _, root := range roots {
		if color[root] != white {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stack := []*frame{{node: root, edges: outEdges(root)}}
		pos := map[graph.NodeID]int{root: 0}
		color[root] = grey

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.next == len(top.edges) {
				color[top.node] = black
				delete(pos, top.node)
				stack = stack[:len(stack)-1]
				continue
			}
			e := top.edges[top.next]
			top.next++

			switch color[e.Target] {
			case white:
				color[e.Target] = grey
				pos[e.Target] = len(stack)
				stack = append(stack, &frame{node: e.Target, via: e.ID, edges: outEdges(e.Target)})
			case grey:
				if e.Target == top.node {
					continue // self-loops are reflexive violations
				}
				loop := stack[pos[e.Target]:]
				if c, ok := d.cycle(rel, loop, e); ok {
					k := cycleKey(rel, c.Nodes)
					if !seen[k] {
						seen[k] = true
						out = append(out, c)
					}
				}
			}
		}
	}
	return out, nil
}

func (d *Detector) cycle(rel graph.RelationType, loop []*frame, closing graph.Edge) (Contradiction, bool) {
	nodes := make([]graph.NodeID, 0, len(loop))
	edges := make([]graph.EdgeID, 0, len(loop))
	labels := make([]string, 0, len(loop)+1)
	severity := closing.Confidence
	for i, f := range loop {
		nodes = append(nodes, f.node)
		labels = append(labels, d.label(f.node))
		if i > 0 {
			edges = append(edges, f.via)
			if e, ok := d.store.Edge(f.via); ok {
				severity = min(severity, e.Confidence)
			}
		}
	}
	edges = append(edges, closing.ID)
	labels = append(labels, d.label(closing.Target))

	if len(nodes) < 2 {
		return Contradiction{}, false
	}
	slices.Sort(nodes)
	return Contradiction{
		Kind:        CycleViolation,
		Nodes:       nodes,
		Relations:   []graph.RelationType{rel},
		Edges:       edges,
		Severity:    severity,
		Description: fmt.Sprintf("%s cycle: %s", rel, strings.Join(labels, " -> ")),
	}, true
}

func cycleKey(rel graph.RelationType, nodes []graph.NodeID) string {
	var b strings.Builder
	b.WriteString(rel.String())
	for _, n := range nodes {
		fmt.Fprintf(&b, ":%d", n)
	}
	return b.String()
}
