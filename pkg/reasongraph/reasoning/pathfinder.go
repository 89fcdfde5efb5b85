// Package reasoning answers questions over a populated graph: bounded path
// search, typed queries and structured explanations of derived facts.
package reasoning

import (
	"cmp"
	"container/heap"
	"errors"
	"math"
	"slices"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
)

// ErrNoPath is returned when the endpoints are not connected within the
// search bounds.
var ErrNoPath = errors.New("no path")

// maxEnumerated caps the number of simple paths FindAll will visit.
const maxEnumerated = 10000

// Path is a walk through the graph. Nodes has one more element than Edges.
type Path struct {
	Nodes      []graph.NodeID `json:"nodes"`
	Edges      []graph.Edge   `json:"edges"`
	Confidence float64        `json:"confidence"` // product of edge confidences
	Cost       float64        `json:"cost"`       // sum of -log(confidence)
	Hops       int            `json:"hops"`
}

func newPath(start graph.NodeID, edges []graph.Edge, dir graph.Direction) Path {
	p := Path{Nodes: []graph.NodeID{start}, Edges: edges, Confidence: 1, Hops: len(edges)}
	cur := start
	for _, e := range edges {
		cur = other(e, cur, dir)
		p.Nodes = append(p.Nodes, cur)
		p.Confidence *= e.Confidence
		p.Cost += edgeCost(e)
	}
	return p
}

func edgeCost(e graph.Edge) float64 {
	return math.Abs(math.Log(e.Confidence))
}

// other returns the endpoint reached by walking e away from from.
func other(e graph.Edge, from graph.NodeID, dir graph.Direction) graph.NodeID {
	switch dir {
	case graph.Out:
		return e.Target
	case graph.In:
		return e.Source
	default:
		if e.Source == from {
			return e.Target
		}
		return e.Source
	}
}

type searchOptions struct {
	relations []graph.RelationType
	dir       graph.Direction
	maxHops   int
}

// Option tunes a search.
type Option func(*searchOptions)

// WithRelations restricts the search to the given relations.
func WithRelations(rels ...graph.RelationType) Option {
	return func(o *searchOptions) { o.relations = append(o.relations, rels...) }
}

// WithDirection selects which edges are walked. The default is outgoing.
func WithDirection(dir graph.Direction) Option {
	return func(o *searchOptions) { o.dir = dir }
}

// WithMaxHops bounds FindWeighted. The bound is exact: the search tracks
// (node, hops) states rather than nodes.
func WithMaxHops(n int) Option {
	return func(o *searchOptions) { o.maxHops = n }
}

func buildOptions(opts []Option) searchOptions {
	o := searchOptions{dir: graph.Out}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PathFinder searches a store. It only reads.
type PathFinder struct {
	store *graph.Store
}

// NewPathFinder returns a path finder over store.
func NewPathFinder(store *graph.Store) *PathFinder {
	return &PathFinder{store: store}
}

func (pf *PathFinder) checkEndpoints(op string, start, end graph.NodeID) error {
	if !pf.store.HasNode(start) {
		return internalerr.Invalid(op, internalerr.ErrUnknownNode, "start %d", start)
	}
	if !pf.store.HasNode(end) {
		return internalerr.Invalid(op, internalerr.ErrUnknownNode, "end %d", end)
	}
	return nil
}

// Find returns a path with the fewest hops, at most maxHops.
func (pf *PathFinder) Find(start, end graph.NodeID, maxHops int, opts ...Option) (Path, error) {
	if err := pf.checkEndpoints("find_path", start, end); err != nil {
		return Path{}, err
	}
	if maxHops < 1 {
		return Path{}, internalerr.Invalid("find_path", internalerr.ErrInvalidInput, "max hops %d", maxHops)
	}
	o := buildOptions(opts)
	if start == end {
		return newPath(start, nil, o.dir), nil
	}

	type visit struct {
		prev graph.NodeID
		via  graph.Edge
		hops int
	}
	visited := map[graph.NodeID]visit{start: {}}
	queue := []graph.NodeID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		hops := visited[cur].hops
		if hops == maxHops {
			continue
		}
		for n, e := range pf.store.Neighbors(cur, o.dir, o.relations...) {
			if _, seen := visited[n.ID]; seen {
				continue
			}
			visited[n.ID] = visit{prev: cur, via: e, hops: hops + 1}
			if n.ID == end {
				var edges []graph.Edge
				for at := end; at != start; at = visited[at].prev {
					edges = append(edges, visited[at].via)
				}
				slices.Reverse(edges)
				return newPath(start, edges, o.dir), nil
			}
			queue = append(queue, n.ID)
		}
	}
	return Path{}, ErrNoPath
}

// FindAll returns simple paths from start to end of at most maxHops, fewest
// hops first and then by descending confidence. A positive limit caps the
// result.
func (pf *PathFinder) FindAll(start, end graph.NodeID, maxHops, limit int, opts ...Option) ([]Path, error) {
	if err := pf.checkEndpoints("find_all_paths", start, end); err != nil {
		return nil, err
	}
	if maxHops < 1 {
		return nil, internalerr.Invalid("find_all_paths", internalerr.ErrInvalidInput, "max hops %d", maxHops)
	}
	o := buildOptions(opts)

	var out []Path
	explored := 0
	onPath := map[graph.NodeID]bool{start: true}
	var edges []graph.Edge
	var walk func(cur graph.NodeID)
	walk = func(cur graph.NodeID) {
		for n, e := range pf.store.Neighbors(cur, o.dir, o.relations...) {
			if explored >= maxEnumerated {
				return
			}
			explored++
			if onPath[n.ID] {
				continue
			}
			edges = append(edges, e)
			if n.ID == end {
				out = append(out, newPath(start, slices.Clone(edges), o.dir))
			} else if len(edges) < maxHops {
				onPath[n.ID] = true
				walk(n.ID)
				delete(onPath, n.ID)
			}
			edges = edges[:len(edges)-1]
		}
	}
	if start != end {
		walk(start)
	}

	slices.SortStableFunc(out, func(a, b Path) int {
		return cmp.Or(cmp.Compare(a.Hops, b.Hops), cmp.Compare(b.Confidence, a.Confidence))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindWeighted returns the path maximising the product of confidences, by
// running Dijkstra over -log(confidence). Zero-confidence edges are never
// walked.
func (pf *PathFinder) FindWeighted(start, end graph.NodeID, opts ...Option) (Path, error) {
	if err := pf.checkEndpoints("find_weighted", start, end); err != nil {
		return Path{}, err
	}
	o := buildOptions(opts)
	if o.maxHops < 0 {
		return Path{}, internalerr.Invalid("find_weighted", internalerr.ErrInvalidInput, "max hops %d", o.maxHops)
	}
	if start == end {
		return newPath(start, nil, o.dir), nil
	}

	type key struct {
		node graph.NodeID
		hops int
	}
	// without a hop bound every node is one state
	stateOf := func(n graph.NodeID, hops int) key {
		if o.maxHops == 0 {
			return key{node: n}
		}
		return key{node: n, hops: hops}
	}
	type back struct {
		prev key
		via  graph.Edge
	}

	dist := map[key]float64{stateOf(start, 0): 0}
	prev := make(map[key]back)
	done := make(map[key]bool)
	pq := &costQueue{}
	heap.Push(pq, &queueItem{node: start, hops: 0, cost: 0})

	for pq.Len() > 0 {
		it := heap.Pop(pq).(*queueItem)
		k := stateOf(it.node, it.hops)
		if done[k] {
			continue
		}
		done[k] = true
		if it.node == end {
			var edges []graph.Edge
			for at := k; at != stateOf(start, 0); at = prev[at].prev {
				edges = append(edges, prev[at].via)
			}
			slices.Reverse(edges)
			return newPath(start, edges, o.dir), nil
		}
		if o.maxHops > 0 && it.hops >= o.maxHops {
			continue
		}
		for n, e := range pf.store.Neighbors(it.node, o.dir, o.relations...) {
			if e.Confidence <= 0 || n.ID == start {
				continue
			}
			nk := stateOf(n.ID, it.hops+1)
			if done[nk] {
				continue
			}
			c := it.cost + edgeCost(e)
			if d, ok := dist[nk]; ok && d <= c {
				continue
			}
			dist[nk] = c
			prev[nk] = back{prev: k, via: e}
			heap.Push(pq, &queueItem{node: n.ID, hops: it.hops + 1, cost: c})
		}
	}
	return Path{}, ErrNoPath
}

type queueItem struct {
	node graph.NodeID
	hops int
	cost float64
}

type costQueue []*queueItem

func (q costQueue) Len() int { return len(q) }

func (q costQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	if q[i].hops != q[j].hops {
		return q[i].hops < q[j].hops
	}
	return q[i].node < q[j].node
}

func (q costQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *costQueue) Push(x any) { *q = append(*q, x.(*queueItem)) }

func (q *costQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
