package contradiction

import (
	"fmt"
	"strings"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
)

// Policy decides what Resolve does with a confidence conflict.
type Policy uint8

const (
	// PolicyFlag leaves the store untouched; conflicts stay in the report.
	PolicyFlag Policy = iota
	// PolicyKeepHigher raises the asserted edge to the larger confidence and
	// drops the inferred duplicate.
	PolicyKeepHigher
	// PolicyAverage sets the asserted edge to the mean of both and drops the
	// inferred duplicate.
	PolicyAverage
)

var policyNames = map[Policy]string{
	PolicyFlag:       "flag",
	PolicyKeepHigher: "keep_higher",
	PolicyAverage:    "average",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Policy(%d)", uint8(p))
}

// ParsePolicy accepts the names produced by String.
func ParsePolicy(s string) (Policy, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if norm == "" {
		return PolicyFlag, nil
	}
	for p, name := range policyNames {
		if name == norm {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown conflict policy %q", s)
}

// Resolve applies p to the confidence conflicts in rep and returns how many
// were folded into their asserted edge. Other kinds are never touched.
// Conflicts whose edges have since changed are skipped.
//
// Inferred facts derived from the dropped duplicate are removed with it, as
// are facts derived from an asserted edge whose confidence went down. The
// next inference run derives them again from the resolved values.
func Resolve(store *graph.Store, rep Report, p Policy) (int, error) {
	if p == PolicyFlag {
		return 0, nil
	}
	resolved := 0
	for _, c := range rep.Of(ConfidenceConflict) {
		if len(c.Edges) != 2 {
			continue
		}
		asserted, okA := store.Edge(c.Edges[0])
		inferred, okI := store.Edge(c.Edges[1])
		if !okA || !okI || asserted.Provenance != graph.Asserted || inferred.Provenance != graph.Inferred {
			continue
		}
		var conf float64
		switch p {
		case PolicyKeepHigher:
			conf = max(asserted.Confidence, inferred.Confidence)
		case PolicyAverage:
			conf = (asserted.Confidence + inferred.Confidence) / 2
		default:
			return resolved, fmt.Errorf("resolve: unsupported policy %s", p)
		}
		if conf < asserted.Confidence {
			store.RemoveDependents(asserted.ID)
		}
		if err := store.UpdateConfidence(asserted.ID, conf); err != nil {
			return resolved, fmt.Errorf("resolve %s: %w", asserted.Triple(), err)
		}
		// the duplicate may already be gone if it rested on the asserted edge
		if _, ok := store.Edge(inferred.ID); ok {
			store.RemoveDependents(inferred.ID)
			if err := store.RemoveEdge(inferred.ID); err != nil {
				return resolved, fmt.Errorf("resolve %s: %w", inferred.Triple(), err)
			}
		}
		resolved++
	}
	return resolved, nil
}
