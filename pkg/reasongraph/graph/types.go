package graph

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// NodeID identifies a node. Ids are assigned by the caller; 0 is reserved.
type NodeID int64

// EdgeID identifies an edge. Ids are assigned by the Store.
type EdgeID int64

// Provenance records whether an edge was added by a caller or derived.
type Provenance uint8

const (
	Asserted Provenance = iota + 1
	Inferred
)

func (p Provenance) String() string {
	switch p {
	case Asserted:
		return "asserted"
	case Inferred:
		return "inferred"
	default:
		return fmt.Sprintf("Provenance(%d)", uint8(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Provenance) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Provenance) UnmarshalText(b []byte) error {
	switch string(b) {
	case "asserted":
		*p = Asserted
	case "inferred":
		*p = Inferred
	default:
		return fmt.Errorf("unknown provenance %q", b)
	}
	return nil
}

// Direction selects which adjacency list Neighbors walks.
type Direction uint8

const (
	Out Direction = iota
	In
	Both
)

func (d Direction) String() string {
	switch d {
	case Out:
		return "out"
	case In:
		return "in"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// ParseDirection accepts "out", "in" and "both".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "out", "":
		return Out, nil
	case "in":
		return In, nil
	case "both":
		return Both, nil
	}
	return Out, fmt.Errorf("unknown direction %q", s)
}

// Node is an entity in the graph.
type Node struct {
	ID         NodeID            `json:"id"`
	Label      string            `json:"label"`
	Type       string            `json:"type,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (n Node) clone() Node {
	n.Attributes = maps.Clone(n.Attributes)
	return n
}

// Derivation is the provenance chain of an inferred edge.
type Derivation struct {
	RuleID     string   `json:"rule_id"`
	Depth      int      `json:"depth"`
	Supporters []EdgeID `json:"supporters"`
	Path       []NodeID `json:"path"`
}

func (d *Derivation) clone() *Derivation {
	if d == nil {
		return nil
	}
	c := *d
	c.Supporters = slices.Clone(d.Supporters)
	c.Path = slices.Clone(d.Path)
	return &c
}

// Edge is a directed, typed relationship between two nodes.
type Edge struct {
	ID         EdgeID       `json:"id"`
	Source     NodeID       `json:"source"`
	Target     NodeID       `json:"target"`
	Relation   RelationType `json:"relation"`
	Confidence float64      `json:"confidence"`
	Provenance Provenance   `json:"provenance"`
	Derivation *Derivation  `json:"derivation,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Depth is the derivation depth. Asserted edges are one-hop chains.
func (e Edge) Depth() int {
	if e.Derivation == nil {
		return 1
	}
	return e.Derivation.Depth
}

// RuleID returns the firing rule of an inferred edge, or "".
func (e Edge) RuleID() string {
	if e.Derivation == nil {
		return ""
	}
	return e.Derivation.RuleID
}

// Path returns the node path the edge summarises. For asserted edges this is
// just the two endpoints.
func (e Edge) Path() []NodeID {
	if e.Derivation == nil || len(e.Derivation.Path) == 0 {
		return []NodeID{e.Source, e.Target}
	}
	return slices.Clone(e.Derivation.Path)
}

// Triple returns the (source, target, relation) key of the edge.
func (e Edge) Triple() Triple {
	return Triple{Source: e.Source, Target: e.Target, Relation: e.Relation}
}

func (e Edge) clone() Edge {
	e.Derivation = e.Derivation.clone()
	return e
}

// Triple identifies a fact independent of provenance.
type Triple struct {
	Source   NodeID
	Target   NodeID
	Relation RelationType
}

func (t Triple) String() string {
	return fmt.Sprintf("%s(%d, %d)", t.Relation, t.Source, t.Target)
}

// Stats summarises the store contents.
type Stats struct {
	Nodes      int                  `json:"nodes"`
	Edges      int                  `json:"edges"`
	Asserted   int                  `json:"asserted"`
	Inferred   int                  `json:"inferred"`
	ByRelation map[RelationType]int `json:"by_relation"`
}
