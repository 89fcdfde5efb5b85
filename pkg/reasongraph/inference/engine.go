// Package inference derives new facts from asserted edges by semi-naive
// forward chaining over a rules.Base.
package inference

import (
	"cmp"
	"context"
	"crypto/rand"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/rules"
)

const (
	DefaultMaxIterations       = 50
	DefaultAcceptanceThreshold = 0.05
)

// State is the engine lifecycle state.
type State uint8

const (
	Idle State = iota
	Running
	Converged
	MaxIterReached
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Converged:
		return "converged"
	case MaxIterReached:
		return "max_iter_reached"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// RejectReason says why a candidate fact was not written.
type RejectReason string

const (
	RejectDominated  RejectReason = "dominated"  // an edge of the triple is at least as confident
	RejectThreshold  RejectReason = "threshold"  // below the acceptance threshold
	RejectDepth      RejectReason = "depth"      // deeper than the rule allows
	RejectCycle      RejectReason = "cycle"      // node path revisits a node
	RejectSuperseded RejectReason = "superseded" // lost to a better candidate in the same iteration
)

// Observer receives run telemetry. See the metrics package.
type Observer interface {
	ObserveIteration(iteration, accepted int)
	ObserveRun(Result)
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	MaxIterations       int
	Timeout             time.Duration // wall-clock budget, 0 for none
	AcceptanceThreshold float64
	Logger              *slog.Logger
	Observer            Observer
	Clock               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.AcceptanceThreshold <= 0 {
		o.AcceptanceThreshold = DefaultAcceptanceThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// InferredFact is one edge written during a run. A triple upgraded in a
// later iteration keeps a single entry holding its final value.
type InferredFact struct {
	Edge      graph.Edge `json:"edge"`
	Iteration int        `json:"iteration"`
	Created   bool       `json:"created"` // false when an older inferred edge was upgraded
}

// Result summarises one Run.
type Result struct {
	RunID      string               `json:"run_id"`
	Status     State                `json:"status"`
	Partial    bool                 `json:"partial"`
	Facts      []InferredFact       `json:"facts"`
	Iterations int                  `json:"iterations"`
	Elapsed    time.Duration        `json:"elapsed"`
	FireCounts map[string]int       `json:"fire_counts"`
	Candidates int                  `json:"candidates"`
	Rejections map[RejectReason]int `json:"rejections"`
	Refreshed  int                  `json:"refreshed"` // dependents re-derived after an upgrade
}

// Converged reports whether the run reached a fixpoint.
func (r Result) Converged() bool { return r.Status == Converged }

// Engine runs a rule base against a store. It is not safe for concurrent
// use; callers serialise access to the store.
type Engine struct {
	store   *graph.Store
	rules   *rules.Base
	opts    Options
	log     *slog.Logger
	state   State
	entropy *ulid.MonotonicEntropy
}

// New creates an engine over store using rb.
func New(store *graph.Store, rb *rules.Base, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:   store,
		rules:   rb,
		opts:    opts,
		log:     opts.Logger.With("component", "inference"),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// State returns the state after the most recent run.
func (e *Engine) State() State { return e.state }

// Rules returns the engine's rule base.
func (e *Engine) Rules() *rules.Base { return e.rules }

type candidate struct {
	rule       int
	triple     graph.Triple
	confidence float64
	depth      int
	supporters []graph.EdgeID
	path       []graph.NodeID
}

type run struct {
	res    *Result
	active []rules.Rule
	facts  map[graph.Triple]int
	deps   map[graph.EdgeID][]graph.EdgeID // supporter -> inferred edges citing it, may hold stale entries
}

func (r *run) link(e graph.Edge) {
	if e.Derivation == nil {
		return
	}
	for _, sup := range e.Derivation.Supporters {
		if !slices.Contains(r.deps[sup], e.ID) {
			r.deps[sup] = append(r.deps[sup], e.ID)
		}
	}
}

func (r *run) record(edge graph.Edge, created bool) {
	fact := InferredFact{Edge: edge, Iteration: r.res.Iterations, Created: created}
	t := edge.Triple()
	if i, ok := r.facts[t]; ok {
		fact.Created = fact.Created || r.res.Facts[i].Created
		r.res.Facts[i] = fact
		return
	}
	r.facts[t] = len(r.res.Facts)
	r.res.Facts = append(r.res.Facts, fact)
}

// Run forward-chains until no new fact is accepted or a budget is exhausted.
// Exhausting MaxIterations or Timeout yields a partial result and a nil
// error. Context cancellation yields the partial result and an error
// wrapping ctx.Err().
func (e *Engine) Run(ctx context.Context) (Result, error) {
	e.store.MustCheckIntegrity()

	start := e.opts.Clock()
	res := Result{
		RunID:      ulid.MustNew(ulid.Timestamp(start), e.entropy).String(),
		FireCounts: make(map[string]int),
		Rejections: make(map[RejectReason]int),
	}
	r := &run{
		res:    &res,
		active: e.rules.Active(),
		facts:  make(map[graph.Triple]int),
		deps:   make(map[graph.EdgeID][]graph.EdgeID),
	}
	e.state = Running
	log := e.log.With("run_id", res.RunID)
	log.Debug("inference started", "rules", len(r.active), "edges", e.store.EdgeCount())

	var frontier []graph.EdgeID
	for _, edge := range e.store.Edges() {
		r.link(edge)
	}
	for edge := range e.assertedEdges() {
		frontier = append(frontier, edge.ID)
	}

	var runErr error
	status := Converged
	for {
		if err := ctx.Err(); err != nil {
			status = MaxIterReached
			runErr = fmt.Errorf("inference run %s: %w", res.RunID, err)
			break
		}
		if res.Iterations >= e.opts.MaxIterations {
			status = MaxIterReached
			break
		}
		if e.opts.Timeout > 0 && e.opts.Clock().Sub(start) >= e.opts.Timeout {
			status = MaxIterReached
			break
		}
		res.Iterations++

		winners := e.collect(r, frontier)
		next, err := e.apply(r, winners)
		if err != nil {
			status = MaxIterReached
			runErr = fmt.Errorf("inference run %s: %w", res.RunID, err)
			break
		}
		log.Debug("iteration done", "iteration", res.Iterations, "frontier", len(frontier), "accepted", len(next))
		if e.opts.Observer != nil {
			e.opts.Observer.ObserveIteration(res.Iterations, len(next))
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	res.Status = status
	res.Partial = status != Converged
	res.Elapsed = e.opts.Clock().Sub(start)
	e.state = status
	if e.opts.Observer != nil {
		e.opts.Observer.ObserveRun(res)
	}
	if res.Partial {
		log.Warn("inference stopped before fixpoint",
			"iterations", res.Iterations, "facts", len(res.Facts), "elapsed", res.Elapsed, "error", runErr)
	} else {
		log.Info("inference converged",
			"iterations", res.Iterations, "facts", len(res.Facts), "candidates", res.Candidates, "elapsed", res.Elapsed)
	}
	return res, runErr
}

func (e *Engine) assertedEdges() iter.Seq[graph.Edge] {
	return func(yield func(graph.Edge) bool) {
		for _, edge := range e.store.Edges() {
			if edge.Provenance == graph.Asserted && !yield(edge) {
				return
			}
		}
	}
}

// collect matches every active rule against the frontier and returns the
// best acceptable candidate per triple, ordered by triple.
func (e *Engine) collect(r *run, frontier []graph.EdgeID) []candidate {
	best := make(map[graph.Triple]candidate)
	consider := func(c candidate) {
		r.res.Candidates++
		if reason, ok := e.reject(r, c); ok {
			r.res.Rejections[reason]++
			return
		}
		if cur, ok := best[c.triple]; ok {
			r.res.Rejections[RejectSuperseded]++
			if !better(c, cur) {
				return
			}
		}
		best[c.triple] = c
	}

	for _, id := range frontier {
		f, ok := e.store.Edge(id)
		if !ok {
			continue
		}
		for ri, rule := range r.active {
			if !rule.Type.Chain() {
				if f.Relation == rule.Premises[0] {
					consider(derive(ri, rule, f))
				}
				continue
			}
			if f.Relation == rule.Premises[0] {
				for _, g := range e.store.Neighbors(f.Target, graph.Out, rule.Premises[1]) {
					consider(derive(ri, rule, f, g))
				}
			}
			if f.Relation == rule.Premises[1] {
				for _, g := range e.store.Neighbors(f.Source, graph.In, rule.Premises[0]) {
					consider(derive(ri, rule, g, f))
				}
			}
		}
	}

	out := make([]candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b candidate) int { return compareTriples(a.triple, b.triple) })
	return out
}

// apply writes the winners. Supporters may have been upgraded earlier in the
// same pass, so each candidate is re-derived from the current supporter
// values and checked again. Upgrading an existing inferred edge also rewrites
// every inferred edge resting on it; see refresh.
func (e *Engine) apply(r *run, winners []candidate) ([]graph.EdgeID, error) {
	var next []graph.EdgeID
	for _, w := range winners {
		rule := r.active[w.rule]
		parents := make([]graph.Edge, 0, len(w.supporters))
		for _, id := range w.supporters {
			p, ok := e.store.Edge(id)
			if !ok {
				return next, fmt.Errorf("supporter edge %d vanished", id)
			}
			parents = append(parents, p)
		}
		c := derive(w.rule, rule, parents...)
		if reason, ok := e.reject(r, c); ok {
			r.res.Rejections[reason]++
			continue
		}
		d := graph.Derivation{
			RuleID:     rule.ID,
			Depth:      c.depth,
			Supporters: c.supporters,
			Path:       c.path,
		}

		old, upgrade := e.store.Lookup(c.triple, graph.Inferred)
		if !upgrade {
			edge, _, err := e.store.PutInferred(c.triple.Source, c.triple.Target, c.triple.Relation, c.confidence, d)
			if err != nil {
				return next, fmt.Errorf("write %s: %w", c.triple, err)
			}
			r.res.FireCounts[rule.ID]++
			r.link(edge)
			r.record(edge, true)
			next = append(next, edge.ID)
			continue
		}

		old.Confidence = c.confidence
		old.Derivation = &d
		writes, reason, err := e.refresh(r, old)
		if err != nil {
			return next, fmt.Errorf("refresh %s: %w", c.triple, err)
		}
		if reason != "" {
			r.res.Rejections[reason]++
			continue
		}
		r.res.FireCounts[rule.ID]++
		for i, x := range writes {
			edge, _, err := e.store.PutInferred(x.Source, x.Target, x.Relation, x.Confidence, *x.Derivation)
			if err != nil {
				return next, fmt.Errorf("write %s: %w", x.Triple(), err)
			}
			if i > 0 {
				r.res.Refreshed++
			}
			r.link(edge)
			r.record(edge, false)
			next = append(next, edge.ID)
		}
	}
	return next, nil
}

// refresh plans the upgrade of the inferred edge x to its new confidence and
// derivation. Every inferred edge resting on x, directly or not, is
// re-derived from the upgraded supporters so depth stays strictly above each
// supporter and confidence stays min(supporters) x decay. The writes come
// back ordered by depth, x first. A non-empty reason means a dependent would
// break its rule's depth bound, revisit a node or could not be re-derived,
// and x must keep its current value.
func (e *Engine) refresh(r *run, x graph.Edge) ([]graph.Edge, RejectReason, error) {
	planned := map[graph.EdgeID]graph.Edge{x.ID: x}
	current := func(id graph.EdgeID) (graph.Edge, bool) {
		if p, ok := planned[id]; ok {
			return p, true
		}
		return e.store.Edge(id)
	}

	queue := slices.Clone(r.deps[x.ID])
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == x.ID {
			return nil, RejectCycle, nil
		}
		y, ok := current(id)
		if !ok || y.Derivation == nil {
			continue
		}
		rule, ok := e.rules.Get(y.RuleID())
		if !ok {
			return nil, RejectDepth, nil
		}
		parents := make([]graph.Edge, 0, len(y.Derivation.Supporters))
		for _, sid := range y.Derivation.Supporters {
			p, ok := current(sid)
			if !ok {
				return nil, RejectDepth, nil
			}
			parents = append(parents, p)
		}
		c := derive(0, rule, parents...)
		if c.triple != y.Triple() {
			return nil, "", fmt.Errorf("rule %s no longer concludes %s", rule.ID, y.Triple())
		}
		if c.depth > rule.MaxDepth {
			return nil, RejectDepth, nil
		}
		if revisits(c.path) {
			return nil, RejectCycle, nil
		}
		if c.confidence == y.Confidence && c.depth == y.Depth() && slices.Equal(c.path, y.Path()) {
			continue
		}
		y.Confidence = c.confidence
		y.Derivation = &graph.Derivation{RuleID: rule.ID, Depth: c.depth, Supporters: c.supporters, Path: c.path}
		planned[id] = y
		queue = append(queue, r.deps[id]...)
	}

	writes := make([]graph.Edge, 0, len(planned))
	for _, p := range planned {
		writes = append(writes, p)
	}
	slices.SortFunc(writes, func(a, b graph.Edge) int {
		if a.ID == x.ID {
			return -1
		}
		if b.ID == x.ID {
			return 1
		}
		return cmp.Or(cmp.Compare(a.Depth(), b.Depth()), cmp.Compare(a.ID, b.ID))
	})
	return writes, "", nil
}

// reject applies the acceptance conditions in order and returns the first
// one the candidate fails.
func (e *Engine) reject(r *run, c candidate) (RejectReason, bool) {
	if have, ok := e.store.MaxConfidence(c.triple); ok && have >= c.confidence {
		return RejectDominated, true
	}
	if c.confidence < e.opts.AcceptanceThreshold {
		return RejectThreshold, true
	}
	if c.depth > r.active[c.rule].MaxDepth {
		return RejectDepth, true
	}
	if revisits(c.path) {
		return RejectCycle, true
	}
	return "", false
}

// derive builds the candidate a rule concludes from its premises: one edge
// for inverse and symmetric rules, a left and right edge for chain rules.
func derive(ri int, rule rules.Rule, parents ...graph.Edge) candidate {
	c := candidate{rule: ri, confidence: 1}
	for _, p := range parents {
		c.confidence = min(c.confidence, p.Confidence)
		c.depth = max(c.depth, p.Depth())
		c.supporters = append(c.supporters, p.ID)
	}
	c.confidence *= rule.Decay
	c.depth++

	if len(parents) == 1 {
		p := parents[0]
		c.triple = graph.Triple{Source: p.Target, Target: p.Source, Relation: rule.Conclusion}
		c.path = p.Path()
		slices.Reverse(c.path)
		return c
	}
	left, right := parents[0], parents[1]
	c.triple = graph.Triple{Source: left.Source, Target: right.Target, Relation: rule.Conclusion}
	c.path = append(left.Path(), right.Path()[1:]...)
	return c
}

func revisits(path []graph.NodeID) bool {
	seen := make(map[graph.NodeID]struct{}, len(path))
	for _, n := range path {
		if _, ok := seen[n]; ok {
			return true
		}
		seen[n] = struct{}{}
	}
	return false
}

func better(a, b candidate) bool {
	if a.confidence != b.confidence {
		return a.confidence > b.confidence
	}
	if a.rule != b.rule {
		return a.rule < b.rule
	}
	return slices.Compare(a.supporters, b.supporters) < 0
}

func compareTriples(a, b graph.Triple) int {
	return cmp.Or(
		cmp.Compare(a.Source, b.Source),
		cmp.Compare(a.Target, b.Target),
		cmp.Compare(a.Relation, b.Relation),
	)
}
