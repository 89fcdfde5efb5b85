package contradiction

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
)

// DefaultTolerance is the largest asserted/inferred confidence gap that is
// not reported as a conflict.
const DefaultTolerance = 0.2

// Observer receives scan telemetry. See the metrics package.
type Observer interface {
	ObserveReport(Report, time.Duration)
}

// Options configures a Detector.
type Options struct {
	Tolerance float64
	Logger    *slog.Logger
	Observer  Observer
}

// Detector runs read-only consistency checks over a store. Callers must not
// mutate the store while a scan is in progress.
type Detector struct {
	store     *graph.Store
	tolerance float64
	log       *slog.Logger
	observer  Observer

	mu      sync.Mutex // guards entropy
	entropy *ulid.MonotonicEntropy
}

// New creates a detector over store.
func New(store *graph.Store, opts Options) *Detector {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Detector{
		store:     store,
		tolerance: opts.Tolerance,
		log:       opts.Logger.With("component", "contradiction"),
		observer:  opts.Observer,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

// DetectAll runs every check concurrently and merges the results.
func (d *Detector) DetectAll(ctx context.Context) (Report, error) {
	start := time.Now()
	checks := []func(context.Context) ([]Contradiction, error){
		d.MutualExclusions,
		d.ReflexiveViolations,
		d.Cycles,
		d.ConfidenceConflicts,
	}
	found := make([][]Contradiction, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			out, err := check(gctx)
			if err != nil {
				return err
			}
			found[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("contradiction scan: %w", err)
	}

	var all []Contradiction
	for _, f := range found {
		all = append(all, f...)
	}
	slices.SortFunc(all, compare)

	counts := make(map[Kind]int)
	for _, c := range all {
		counts[c.Kind]++
	}
	d.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(start), d.entropy).String()
	d.mu.Unlock()

	rep := Report{
		ID:             id,
		Contradictions: all,
		Counts:         counts,
		Summary:        summarize(counts, len(all)),
	}
	elapsed := time.Since(start)
	if d.observer != nil {
		d.observer.ObserveReport(rep, elapsed)
	}
	if rep.HasContradictions() {
		d.log.Warn("contradictions found", "report_id", rep.ID, "count", len(all), "summary", rep.Summary)
	} else {
		d.log.Debug("graph consistent", "report_id", rep.ID, "elapsed", elapsed)
	}
	return rep, nil
}

// MutualExclusions finds node pairs joined by two mutually exclusive
// relations. Asserted and inferred edges of a triple count once. When both
// relations are symmetric the pair is unordered, so a restated pair such as
// (cold, hot) is not reported again and the two edges may point opposite ways.
func (d *Detector) MutualExclusions(ctx context.Context) ([]Contradiction, error) {
	type key struct {
		src, tgt graph.NodeID
		lo, hi   graph.RelationType
	}
	seen := make(map[key]bool)
	var out []Contradiction
	for i, e := range d.store.Edges() {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, other := range graph.SemanticsOf(e.Relation).ExclusiveWith {
			lo, hi := min(e.Relation, other), max(e.Relation, other)
			unordered := graph.SemanticsOf(lo).Symmetric && graph.SemanticsOf(hi).Symmetric
			k := key{e.Source, e.Target, lo, hi}
			if unordered {
				k.src, k.tgt = min(e.Source, e.Target), max(e.Source, e.Target)
			}
			if seen[k] {
				continue
			}
			a, okA := d.pairEdge(e.Source, e.Target, lo, unordered)
			b, okB := d.pairEdge(e.Source, e.Target, hi, unordered)
			if !okA || !okB {
				continue
			}
			seen[k] = true
			out = append(out, Contradiction{
				Kind:        MutualExclusion,
				Nodes:       []graph.NodeID{e.Source, e.Target},
				Relations:   []graph.RelationType{lo, hi},
				Edges:       []graph.EdgeID{a.ID, b.ID},
				Severity:    min(a.Confidence, b.Confidence),
				Description: fmt.Sprintf("%s and %s both hold between %s and %s", lo, hi, d.label(e.Source), d.label(e.Target)),
			})
		}
	}
	return out, nil
}

// pairEdge returns the best edge of rel from src to tgt, falling back to the
// reverse direction when either may be used.
func (d *Detector) pairEdge(src, tgt graph.NodeID, rel graph.RelationType, either bool) (graph.Edge, bool) {
	if e, ok := d.store.Best(src, tgt, rel); ok {
		return e, true
	}
	if either {
		return d.store.Best(tgt, src, rel)
	}
	return graph.Edge{}, false
}

// ReflexiveViolations finds self-loops on irreflexive relations.
func (d *Detector) ReflexiveViolations(ctx context.Context) ([]Contradiction, error) {
	var out []Contradiction
	for _, rel := range graph.Relations() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !graph.SemanticsOf(rel).Irreflexive {
			continue
		}
		seen := make(map[graph.NodeID]bool)
		for e := range d.store.EdgesByRelation(rel) {
			if e.Source != e.Target || seen[e.Source] {
				continue
			}
			seen[e.Source] = true
			best, _ := d.store.Best(e.Source, e.Target, rel)
			out = append(out, Contradiction{
				Kind:        ReflexiveViolation,
				Nodes:       []graph.NodeID{e.Source},
				Relations:   []graph.RelationType{rel},
				Edges:       []graph.EdgeID{best.ID},
				Severity:    best.Confidence,
				Description: fmt.Sprintf("%s %s itself", d.label(e.Source), rel),
			})
		}
	}
	return out, nil
}

// ConfidenceConflicts finds triples whose asserted and inferred confidences
// differ by more than the tolerance.
func (d *Detector) ConfidenceConflicts(ctx context.Context) ([]Contradiction, error) {
	var out []Contradiction
	for i, inf := range d.store.Edges() {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if inf.Provenance != graph.Inferred {
			continue
		}
		asserted, ok := d.store.Lookup(inf.Triple(), graph.Asserted)
		if !ok {
			continue
		}
		gap := math.Abs(asserted.Confidence - inf.Confidence)
		if gap <= d.tolerance {
			continue
		}
		out = append(out, Contradiction{
			Kind:      ConfidenceConflict,
			Nodes:     []graph.NodeID{inf.Source, inf.Target},
			Relations: []graph.RelationType{inf.Relation},
			Edges:     []graph.EdgeID{asserted.ID, inf.ID},
			Severity:  gap,
			Description: fmt.Sprintf("%s asserted at %.2f but inferred at %.2f",
				inf.Triple(), asserted.Confidence, inf.Confidence),
		})
	}
	return out, nil
}

func (d *Detector) label(id graph.NodeID) string {
	if n, ok := d.store.Node(id); ok && n.Label != "" {
		return n.Label
	}
	return fmt.Sprintf("#%d", id)
}
