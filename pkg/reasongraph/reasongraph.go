// Package reasongraph is the entry point to the knowledge graph reasoner.
//
// A Reasoner owns one graph.Store and every component that reads or writes
// it. Mutations (adding facts, inference, conflict resolution, loading a
// snapshot) take an exclusive lock; queries, path search, explanations and
// contradiction scans share a read lock.
package reasongraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cognicore/reasongraph/pkg/reasongraph/config"
	"github.com/cognicore/reasongraph/pkg/reasongraph/contradiction"
	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/inference"
	"github.com/cognicore/reasongraph/pkg/reasongraph/metrics"
	"github.com/cognicore/reasongraph/pkg/reasongraph/reasoning"
	"github.com/cognicore/reasongraph/pkg/reasongraph/rules"
	"github.com/cognicore/reasongraph/pkg/reasongraph/store"
	"github.com/cognicore/reasongraph/pkg/reasongraph/store/memstore"
)

// Options configures a Reasoner. Every field is optional.
type Options struct {
	// Config supplies engine and detector settings, the rule base and an
	// initial graph fixture. Defaults to config.Default().
	Config *config.Config
	// Rules overrides the rule base built from Config.
	Rules *rules.Base
	// Snapshots persists the graph. Defaults to an in-memory store.
	Snapshots store.Snapshotter
	// Registerer, when set, receives the Prometheus collectors.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Reasoner is the concurrency boundary around a graph and its reasoning
// components.
type Reasoner struct {
	mu sync.RWMutex

	cfg       config.Config
	rules     *rules.Base
	policy    contradiction.Policy
	snapshots store.Snapshotter
	metrics   *metrics.Metrics
	log       *slog.Logger
	clock     func() time.Time

	graph     *graph.Store
	engine    *inference.Engine
	detector  *contradiction.Detector
	paths     *reasoning.PathFinder
	query     *reasoning.QueryEngine
	explainer *reasoning.Explainer
}

// New creates a Reasoner and loads the configured graph fixture.
func New(opts Options) (*Reasoner, error) {
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rb := opts.Rules
	if rb == nil {
		var err error
		if rb, err = cfg.RuleBase(); err != nil {
			return nil, fmt.Errorf("build rules: %w", err)
		}
	}

	r := &Reasoner{
		cfg:       cfg,
		rules:     rb,
		snapshots: opts.Snapshots,
		log:       opts.Logger,
		clock:     opts.Clock,
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.snapshots == nil {
		r.snapshots = memstore.New()
	}
	_, r.policy = cfg.DetectorOptions()

	if opts.Registerer != nil {
		m, err := metrics.New(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		r.metrics = m
	}

	g := graph.NewStore(r.graphOptions()...)
	if err := cfg.BuildGraph(g); err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	r.wire(g)
	return r, nil
}

func (r *Reasoner) graphOptions() []graph.Option {
	if r.clock == nil {
		return nil
	}
	return []graph.Option{graph.WithClock(r.clock)}
}

// wire points every component at g. Callers hold the write lock or own r
// exclusively.
func (r *Reasoner) wire(g *graph.Store) {
	engineOpts := r.cfg.EngineOptions()
	engineOpts.Logger = r.log
	engineOpts.Clock = r.clock
	detectorOpts, _ := r.cfg.DetectorOptions()
	detectorOpts.Logger = r.log
	if r.metrics != nil {
		engineOpts.Observer = r.metrics
		detectorOpts.Observer = r.metrics
	}

	r.graph = g
	r.engine = inference.New(g, r.rules, engineOpts)
	r.detector = contradiction.New(g, detectorOpts)
	r.paths = reasoning.NewPathFinder(g)
	r.query = reasoning.NewQueryEngine(g, r.engine)
	r.explainer = reasoning.NewExplainer(g)
}

// Close releases the snapshot store.
func (r *Reasoner) Close() error {
	return r.snapshots.Close()
}

// Metrics returns the collectors, or nil when no Registerer was given.
func (r *Reasoner) Metrics() *metrics.Metrics { return r.metrics }

// Rules returns the rule base. It must not be modified during Infer.
func (r *Reasoner) Rules() *rules.Base { return r.rules }

// AddNode adds a node to the graph.
func (r *Reasoner) AddNode(n graph.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.graph.AddNode(n)
}

// AddEdge asserts relation(src, tgt).
func (r *Reasoner) AddEdge(src, tgt graph.NodeID, rel graph.RelationType, confidence float64) (graph.Edge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.graph.AddEdge(src, tgt, rel, confidence)
}

// AddFacts asserts facts keyed by node label, creating missing nodes.
func (r *Reasoner) AddFacts(facts []config.Fact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return config.ApplyFacts(r.graph, facts)
}

// RemoveInferred drops every inferred edge and returns how many went.
func (r *Reasoner) RemoveInferred() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.graph.RemoveInferred()
}

// Infer runs forward chaining to a fixpoint or the configured bounds.
func (r *Reasoner) Infer(ctx context.Context) (inference.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Run(ctx)
}

// Check scans the graph for contradictions.
func (r *Reasoner) Check(ctx context.Context) (contradiction.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.detector.DetectAll(ctx)
}

// Resolve applies the configured conflict policy to rep and returns how many
// conflicts were folded. The default policy only flags.
func (r *Reasoner) Resolve(rep contradiction.Report) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := contradiction.Resolve(r.graph, rep, r.policy)
	if err != nil {
		return n, err
	}
	if n > 0 {
		r.log.Info("resolved confidence conflicts", "count", n, "policy", r.policy.String())
	}
	return n, nil
}

// Policy returns the conflict policy Resolve applies.
func (r *Reasoner) Policy() contradiction.Policy { return r.policy }

// Exists answers whether rel(src, tgt) holds.
func (r *Reasoner) Exists(src, tgt graph.NodeID, rel graph.RelationType) (reasoning.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.query.Exists(src, tgt, rel)
}

// Relations lists the outgoing facts of src, optionally filtered.
func (r *Reasoner) Relations(src graph.NodeID, rels ...graph.RelationType) (reasoning.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.query.Relations(src, rels...)
}

// MultiHop finds the most confident chain from src to tgt.
func (r *Reasoner) MultiHop(src, tgt graph.NodeID, maxHops int) (reasoning.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.query.MultiHop(src, tgt, maxHops)
}

// Closure returns everything reachable from id over rel.
func (r *Reasoner) Closure(id graph.NodeID, rel graph.RelationType) (reasoning.Answer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.query.Closure(id, rel)
}

// FindPath returns a fewest-hops path.
func (r *Reasoner) FindPath(start, end graph.NodeID, maxHops int, opts ...reasoning.Option) (reasoning.Path, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paths.Find(start, end, maxHops, opts...)
}

// FindAllPaths enumerates simple paths up to limit.
func (r *Reasoner) FindAllPaths(start, end graph.NodeID, maxHops, limit int, opts ...reasoning.Option) ([]reasoning.Path, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paths.FindAll(start, end, maxHops, limit, opts...)
}

// FindWeightedPath returns the path with the highest confidence product.
func (r *Reasoner) FindWeightedPath(start, end graph.NodeID, opts ...reasoning.Option) (reasoning.Path, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paths.FindWeighted(start, end, opts...)
}

// ExplainFact reconstructs the derivation of an edge.
func (r *Reasoner) ExplainFact(id graph.EdgeID) (reasoning.Explanation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.explainer.ExplainFact(id)
}

// ExplainPath explains every edge on p.
func (r *Reasoner) ExplainPath(p reasoning.Path) (reasoning.Explanation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.explainer.ExplainPath(p)
}

// Node returns a copy of a node.
func (r *Reasoner) Node(id graph.NodeID) (graph.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.Node(id)
}

// NodeByLabel looks a node up by its exact label.
func (r *Reasoner) NodeByLabel(label string) (graph.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.NodeByLabel(label)
}

// Edge returns a copy of an edge.
func (r *Reasoner) Edge(id graph.EdgeID) (graph.Edge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.Edge(id)
}

// Facts exports the graph as label-keyed facts.
func (r *Reasoner) Facts(withInferred bool) []config.Fact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return config.FactsFromStore(r.graph, withInferred)
}

// Stats summarises the graph.
func (r *Reasoner) Stats() graph.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph.Stats()
}

// Save writes a snapshot of the graph.
func (r *Reasoner) Save(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.snapshots.SaveGraph(ctx, r.graph); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load replaces the graph with the saved snapshot.
func (r *Reasoner) Load(ctx context.Context) error {
	g, err := r.snapshots.LoadGraph(ctx, r.graphOptions()...)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wire(g)
	r.log.Info("snapshot loaded", "nodes", g.NodeCount(), "edges", g.EdgeCount())
	return nil
}
