package reasoning

import (
	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
)

// RuleAsserted marks a step whose conclusion was asserted, not derived.
const RuleAsserted = "asserted"

// maxSteps bounds the supporter walk of a single explanation.
const maxSteps = 512

// Step is one application of a rule: the premises, the rule and the fact it
// concluded.
type Step struct {
	Premises   []graph.Edge `json:"premises"`
	Rule       string       `json:"rule"`
	Conclusion graph.Edge   `json:"conclusion"`
	Confidence float64      `json:"confidence"`
}

// Explanation is an ordered derivation. Every premise of a step is either
// asserted or the conclusion of an earlier step.
type Explanation struct {
	Steps      []Step   `json:"steps"`
	Confidence float64  `json:"confidence"`
	Rules      []string `json:"rules"`
	// Incomplete is set when a supporter no longer exists or the walk hit
	// its step bound.
	Incomplete bool `json:"incomplete"`
}

// Explainer turns paths and inferred facts into explanations.
type Explainer struct {
	store *graph.Store
}

// NewExplainer returns an explainer over store.
func NewExplainer(store *graph.Store) *Explainer {
	return &Explainer{store: store}
}

// ExplainFact walks the supporters of an edge leaves-first.
func (x *Explainer) ExplainFact(id graph.EdgeID) (Explanation, error) {
	e, ok := x.store.Edge(id)
	if !ok {
		return Explanation{}, internalerr.Invalid("explain_fact", internalerr.ErrNotFound, "edge %d", id)
	}
	w := newWalker(x.store)
	w.visit(e)
	w.exp.Confidence = e.Confidence
	return w.exp, nil
}

// ExplainPath explains each edge of a path in order. The explanation
// confidence is the path confidence.
func (x *Explainer) ExplainPath(p Path) (Explanation, error) {
	if len(p.Nodes) == 0 {
		return Explanation{}, internalerr.Invalid("explain_path", internalerr.ErrInvalidInput, "empty path")
	}
	w := newWalker(x.store)
	for _, e := range p.Edges {
		w.visit(e)
	}
	w.exp.Confidence = p.Confidence
	return w.exp, nil
}

type walker struct {
	store *graph.Store
	exp   Explanation
	done  map[graph.EdgeID]bool
	rules map[string]bool
}

func newWalker(store *graph.Store) *walker {
	return &walker{store: store, done: make(map[graph.EdgeID]bool), rules: make(map[string]bool)}
}

// visit emits the steps for e after those of its supporters.
func (w *walker) visit(e graph.Edge) {
	if w.done[e.ID] {
		return
	}
	if len(w.exp.Steps) >= maxSteps {
		w.exp.Incomplete = true
		return
	}
	w.done[e.ID] = true

	if e.Provenance == graph.Asserted || e.Derivation == nil {
		w.emit(Step{Rule: RuleAsserted, Conclusion: e, Confidence: e.Confidence})
		return
	}
	var premises []graph.Edge
	for _, sid := range e.Derivation.Supporters {
		sup, ok := w.store.Edge(sid)
		if !ok {
			w.exp.Incomplete = true
			continue
		}
		if sup.Provenance == graph.Inferred {
			w.visit(sup)
		}
		premises = append(premises, sup)
	}
	w.emit(Step{Premises: premises, Rule: e.RuleID(), Conclusion: e, Confidence: e.Confidence})
}

func (w *walker) emit(s Step) {
	w.exp.Steps = append(w.exp.Steps, s)
	if !w.rules[s.Rule] {
		w.rules[s.Rule] = true
		w.exp.Rules = append(w.exp.Rules, s.Rule)
	}
}
