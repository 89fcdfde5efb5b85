// Package contradiction scans a graph for logically inconsistent facts.
// Contradictions are reported as data; nothing is rejected or repaired
// unless the caller asks for it with Resolve.
package contradiction

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
)

// Kind classifies a contradiction.
type Kind uint8

const (
	MutualExclusion Kind = iota + 1
	ReflexiveViolation
	CycleViolation
	ConfidenceConflict
)

var kindNames = map[Kind]string{
	MutualExclusion:    "mutual_exclusion",
	ReflexiveViolation: "reflexive_violation",
	CycleViolation:     "cycle_violation",
	ConfidenceConflict: "confidence_conflict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Kinds lists every kind in report order.
func Kinds() []Kind {
	return []Kind{MutualExclusion, ReflexiveViolation, CycleViolation, ConfidenceConflict}
}

// Contradiction is one detected inconsistency.
type Contradiction struct {
	Kind        Kind                 `json:"kind"`
	Nodes       []graph.NodeID       `json:"nodes"`
	Relations   []graph.RelationType `json:"relations"`
	Edges       []graph.EdgeID       `json:"edges"`
	Severity    float64              `json:"severity"` // in [0,1], higher is more certain
	Description string               `json:"description"`
}

func compare(a, b Contradiction) int {
	return cmp.Or(
		cmp.Compare(a.Kind, b.Kind),
		slices.Compare(a.Nodes, b.Nodes),
		slices.Compare(a.Relations, b.Relations),
		slices.Compare(a.Edges, b.Edges),
	)
}

// Report is the outcome of DetectAll.
type Report struct {
	ID             string          `json:"id"`
	Contradictions []Contradiction `json:"contradictions"`
	Counts         map[Kind]int    `json:"counts"`
	Summary        string          `json:"summary"`
}

// HasContradictions reports whether anything was found.
func (r Report) HasContradictions() bool { return len(r.Contradictions) > 0 }

// Of returns the contradictions of one kind.
func (r Report) Of(k Kind) []Contradiction {
	var out []Contradiction
	for _, c := range r.Contradictions {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

func summarize(counts map[Kind]int, total int) string {
	if total == 0 {
		return "no contradictions found"
	}
	var parts []string
	for _, k := range Kinds() {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	return fmt.Sprintf("%d contradictions: %s", total, strings.Join(parts, ", "))
}
