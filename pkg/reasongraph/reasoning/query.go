package reasoning

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/inference"
	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
)

// AnswerType says which question an Answer responds to.
type AnswerType string

const (
	AnswerExists    AnswerType = "exists"
	AnswerRelations AnswerType = "relations"
	AnswerMultiHop  AnswerType = "multi_hop"
	AnswerClosure   AnswerType = "closure"
)

// Answer sources.
const (
	SourceAsserted = "asserted"
	SourceInferred = "inferred"
	SourcePath     = "path"
	SourceClosure  = "closure"
)

// Answer is a typed query result. Confidence is the product of the edge
// confidences on the chosen path, or the confidence of the single fact.
type Answer struct {
	Type       AnswerType               `json:"type"`
	Found      bool                     `json:"found"`
	Confidence float64                  `json:"confidence"`
	Path       *Path                    `json:"path,omitempty"`
	Facts      []graph.Edge             `json:"facts,omitempty"`
	Closure    []inference.ClosureEntry `json:"closure,omitempty"`
	Source     string                   `json:"source,omitempty"`
}

// QueryEngine composes stored facts, path search and the engine's closure
// into answers.
type QueryEngine struct {
	store  *graph.Store
	engine *inference.Engine
	paths  *PathFinder
}

// NewQueryEngine returns a query engine. engine supplies transitive closure.
func NewQueryEngine(store *graph.Store, engine *inference.Engine) *QueryEngine {
	return &QueryEngine{store: store, engine: engine, paths: NewPathFinder(store)}
}

// Exists answers whether rel(src, tgt) holds: first as a stored fact, then,
// for transitive relations, as a chain of rel edges.
func (q *QueryEngine) Exists(src, tgt graph.NodeID, rel graph.RelationType) (Answer, error) {
	ans := Answer{Type: AnswerExists}
	if !rel.Valid() {
		return ans, internalerr.Invalid("exists", internalerr.ErrInvalidInput, "relation %s", rel)
	}
	if err := q.paths.checkEndpoints("exists", src, tgt); err != nil {
		return ans, err
	}
	if e, ok := q.store.Best(src, tgt, rel); ok {
		ans.Found = true
		ans.Confidence = e.Confidence
		ans.Facts = []graph.Edge{e}
		ans.Source = SourceAsserted
		if e.Provenance == graph.Inferred {
			ans.Source = SourceInferred
		}
		return ans, nil
	}
	if !graph.SemanticsOf(rel).Transitive || src == tgt {
		return ans, nil
	}
	p, err := q.paths.FindWeighted(src, tgt, WithRelations(rel))
	if errors.Is(err, ErrNoPath) {
		return ans, nil
	}
	if err != nil {
		return ans, err
	}
	ans.Found = true
	ans.Confidence = p.Confidence
	ans.Path = &p
	ans.Facts = p.Edges
	ans.Source = SourcePath
	return ans, nil
}

// Relations lists the strongest edge per (target, relation) leaving src,
// optionally filtered, by descending confidence.
func (q *QueryEngine) Relations(src graph.NodeID, rels ...graph.RelationType) (Answer, error) {
	ans := Answer{Type: AnswerRelations}
	if !q.store.HasNode(src) {
		return ans, internalerr.Invalid("relations", internalerr.ErrUnknownNode, "source %d", src)
	}
	best := make(map[graph.Triple]graph.Edge)
	for _, e := range q.store.Neighbors(src, graph.Out, rels...) {
		if cur, ok := best[e.Triple()]; !ok || e.Confidence > cur.Confidence {
			best[e.Triple()] = e
		}
	}
	for _, e := range best {
		ans.Facts = append(ans.Facts, e)
	}
	slices.SortFunc(ans.Facts, func(a, b graph.Edge) int {
		return cmp.Or(
			cmp.Compare(b.Confidence, a.Confidence),
			cmp.Compare(a.Target, b.Target),
			cmp.Compare(a.Relation, b.Relation),
		)
	})
	if len(ans.Facts) > 0 {
		ans.Found = true
		ans.Confidence = ans.Facts[0].Confidence
	}
	return ans, nil
}

// MultiHop returns the best-evidence path of at most maxHops over any
// relation.
func (q *QueryEngine) MultiHop(src, tgt graph.NodeID, maxHops int) (Answer, error) {
	ans := Answer{Type: AnswerMultiHop}
	if maxHops < 1 {
		return ans, internalerr.Invalid("multi_hop", internalerr.ErrInvalidInput, "max hops %d", maxHops)
	}
	p, err := q.paths.FindWeighted(src, tgt, WithMaxHops(maxHops))
	if errors.Is(err, ErrNoPath) {
		return ans, nil
	}
	if err != nil {
		return ans, fmt.Errorf("multi hop: %w", err)
	}
	ans.Found = true
	ans.Confidence = p.Confidence
	ans.Path = &p
	ans.Facts = p.Edges
	ans.Source = SourcePath
	return ans, nil
}

// Closure returns the transitive closure of id over rel.
func (q *QueryEngine) Closure(id graph.NodeID, rel graph.RelationType) (Answer, error) {
	ans := Answer{Type: AnswerClosure, Source: SourceClosure}
	if !q.store.HasNode(id) {
		return ans, internalerr.Invalid("closure", internalerr.ErrUnknownNode, "node %d", id)
	}
	if !rel.Valid() {
		return ans, internalerr.Invalid("closure", internalerr.ErrInvalidInput, "relation %s", rel)
	}
	ans.Closure = q.engine.TransitiveClosure(id, rel)
	for _, c := range ans.Closure {
		ans.Confidence = max(ans.Confidence, c.Confidence)
	}
	ans.Found = len(ans.Closure) > 0
	return ans, nil
}
