package metrics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/reasongraph/pkg/reasongraph/contradiction"
	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/inference"
	"github.com/cognicore/reasongraph/pkg/reasongraph/rules"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestObserveRun(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveIteration(1, 4)
	m.ObserveIteration(2, 0)
	m.ObserveRun(inference.Result{
		Status:     inference.Converged,
		Elapsed:    20 * time.Millisecond,
		FireCounts: map[string]int{"transitive_is_a": 3, "symmetric_similar_to": 1},
		Rejections: map[inference.RejectReason]int{inference.RejectDominated: 5},
		Refreshed:  2,
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.InferenceIterations))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastIterationAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InferenceRuns.WithLabelValues("converged")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FactsAccepted.WithLabelValues("transitive_is_a")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.CandidatesRejected.WithLabelValues("dominated")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FactsRefreshed))
	assert.Equal(t, 1, testutil.CollectAndCount(m.InferenceDuration))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestWiredIntoEngineAndDetector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	s := graph.NewStore()
	for i, label := range []string{"Hot", "Cold", "Warm"} {
		require.NoError(t, s.AddNode(graph.Node{ID: graph.NodeID(i + 1), Label: label}))
	}
	_, err = s.AddEdge(1, 2, graph.OppositeOf, 1.0)
	require.NoError(t, err)
	_, err = s.AddEdge(1, 2, graph.SimilarTo, 0.5)
	require.NoError(t, err)

	rb := rules.NewBase()
	require.NoError(t, rb.AddBuiltinRules())
	res, err := inference.New(s, rb, inference.Options{Logger: quiet, Observer: m}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(res.Iterations), testutil.ToFloat64(m.InferenceIterations))

	rep, err := contradiction.New(s, contradiction.Options{Logger: quiet, Observer: m}).DetectAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(rep.Counts[contradiction.MutualExclusion]),
		testutil.ToFloat64(m.Contradictions.WithLabelValues("mutual_exclusion")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Contradictions.WithLabelValues("cycle_violation")))

	n, err := testutil.GatherAndCount(reg, "reasongraph_inference_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
