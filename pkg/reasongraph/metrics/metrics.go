// Package metrics exports inference and contradiction telemetry as
// Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cognicore/reasongraph/pkg/reasongraph/contradiction"
	"github.com/cognicore/reasongraph/pkg/reasongraph/inference"
)

const namespace = "reasongraph"

// Metrics implements inference.Observer and contradiction.Observer.
type Metrics struct {
	// InferenceRuns counts finished runs by final status.
	InferenceRuns *prometheus.CounterVec
	// InferenceIterations counts iterations across all runs.
	InferenceIterations prometheus.Counter
	// FactsAccepted counts facts written by each rule.
	FactsAccepted *prometheus.CounterVec
	// FactsRefreshed counts dependent facts re-derived after an upgrade.
	FactsRefreshed prometheus.Counter
	// CandidatesRejected counts rejected candidates by reason.
	CandidatesRejected *prometheus.CounterVec
	// InferenceDuration observes run wall time.
	InferenceDuration prometheus.Histogram
	// LastIterationAccepted is the fact count of the most recent iteration.
	LastIterationAccepted prometheus.Gauge

	// Contradictions is the count per kind in the most recent scan.
	Contradictions *prometheus.GaugeVec
	// ScanDuration observes contradiction scan wall time.
	ScanDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		InferenceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_runs_total",
			Help:      "Inference runs by final status",
		}, []string{"status"}),
		InferenceIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_iterations_total",
			Help:      "Forward-chaining iterations executed",
		}),
		FactsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_facts_accepted_total",
			Help:      "Inferred facts written, by rule",
		}, []string{"rule"}),
		FactsRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_facts_refreshed_total",
			Help:      "Inferred facts re-derived because a supporter was upgraded",
		}),
		CandidatesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_candidates_rejected_total",
			Help:      "Candidate facts rejected, by reason",
		}, []string{"reason"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Wall time of inference runs",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		LastIterationAccepted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inference_last_iteration_accepted",
			Help:      "Facts accepted by the most recent iteration",
		}),
		Contradictions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contradictions",
			Help:      "Contradictions found by the most recent scan, by kind",
		}, []string{"kind"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "contradiction_scan_duration_seconds",
			Help:      "Wall time of contradiction scans",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	for _, c := range []prometheus.Collector{
		m.InferenceRuns,
		m.InferenceIterations,
		m.FactsAccepted,
		m.FactsRefreshed,
		m.CandidatesRejected,
		m.InferenceDuration,
		m.LastIterationAccepted,
		m.Contradictions,
		m.ScanDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveIteration implements inference.Observer.
func (m *Metrics) ObserveIteration(_ int, accepted int) {
	m.InferenceIterations.Inc()
	m.LastIterationAccepted.Set(float64(accepted))
}

// ObserveRun implements inference.Observer.
func (m *Metrics) ObserveRun(res inference.Result) {
	m.InferenceRuns.WithLabelValues(res.Status.String()).Inc()
	m.InferenceDuration.Observe(res.Elapsed.Seconds())
	for rule, n := range res.FireCounts {
		m.FactsAccepted.WithLabelValues(rule).Add(float64(n))
	}
	m.FactsRefreshed.Add(float64(res.Refreshed))
	for reason, n := range res.Rejections {
		m.CandidatesRejected.WithLabelValues(string(reason)).Add(float64(n))
	}
}

// ObserveReport implements contradiction.Observer.
func (m *Metrics) ObserveReport(rep contradiction.Report, elapsed time.Duration) {
	for _, k := range contradiction.Kinds() {
		m.Contradictions.WithLabelValues(k.String()).Set(float64(rep.Counts[k]))
	}
	m.ScanDuration.Observe(elapsed.Seconds())
}

var (
	_ inference.Observer     = (*Metrics)(nil)
	_ contradiction.Observer = (*Metrics)(nil)
)
