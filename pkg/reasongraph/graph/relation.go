package graph

import (
	"fmt"
	"strings"
)

// RelationType is the closed set of edge relations the graph understands.
type RelationType uint8

const (
	RelationUnknown RelationType = iota
	IsA
	InstanceOf
	PartOf
	HasPart
	HasProperty
	Contains
	Causes
	CausedBy
	Uses
	UsedBy
	DependsOn
	Precedes
	Follows
	DerivedFrom
	SimilarTo
	OppositeOf
	RelatedTo

	relationCount
)

var relationNames = [relationCount]string{
	RelationUnknown: "UNKNOWN",
	IsA:             "IS_A",
	InstanceOf:      "INSTANCE_OF",
	PartOf:          "PART_OF",
	HasPart:         "HAS_PART",
	HasProperty:     "HAS_PROPERTY",
	Contains:        "CONTAINS",
	Causes:          "CAUSES",
	CausedBy:        "CAUSED_BY",
	Uses:            "USES",
	UsedBy:          "USED_BY",
	DependsOn:       "DEPENDS_ON",
	Precedes:        "PRECEDES",
	Follows:         "FOLLOWS",
	DerivedFrom:     "DERIVED_FROM",
	SimilarTo:       "SIMILAR_TO",
	OppositeOf:      "OPPOSITE_OF",
	RelatedTo:       "RELATED_TO",
}

func (r RelationType) String() string {
	if r >= relationCount {
		return fmt.Sprintf("RelationType(%d)", uint8(r))
	}
	return relationNames[r]
}

// Valid reports whether r is one of the declared relations.
func (r RelationType) Valid() bool {
	return r > RelationUnknown && r < relationCount
}

// MarshalText implements encoding.TextMarshaler.
func (r RelationType) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid relation %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RelationType) UnmarshalText(b []byte) error {
	rel, err := ParseRelation(string(b))
	if err != nil {
		return err
	}
	*r = rel
	return nil
}

// ParseRelation accepts "IS_A", "is_a" and "is-a".
func ParseRelation(s string) (RelationType, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for i := RelationType(1); i < relationCount; i++ {
		if relationNames[i] == norm {
			return i, nil
		}
	}
	return RelationUnknown, fmt.Errorf("unknown relation %q", s)
}

// Relations returns every valid relation in declaration order.
func Relations() []RelationType {
	out := make([]RelationType, 0, relationCount-1)
	for i := RelationType(1); i < relationCount; i++ {
		out = append(out, i)
	}
	return out
}

// Semantics are the static logical properties of a relation.
type Semantics struct {
	Transitive    bool
	Symmetric     bool
	Inverse       RelationType // RelationUnknown when the relation has no inverse
	Irreflexive   bool
	Acyclic       bool // must not participate in a cycle of 2+ distinct nodes
	ExclusiveWith []RelationType
}

// HasInverse reports whether the relation declares an inverse.
func (s Semantics) HasInverse() bool { return s.Inverse != RelationUnknown }

// semanticsTable is never written after package init.
var semanticsTable = [relationCount]Semantics{
	IsA:         {Transitive: true, Irreflexive: true, Acyclic: true, ExclusiveWith: []RelationType{OppositeOf}},
	InstanceOf:  {Irreflexive: true},
	PartOf:      {Transitive: true, Inverse: HasPart, Irreflexive: true, Acyclic: true, ExclusiveWith: []RelationType{HasPart}},
	HasPart:     {Transitive: true, Inverse: PartOf, Irreflexive: true, Acyclic: true, ExclusiveWith: []RelationType{PartOf}},
	HasProperty: {},
	Contains:    {Transitive: true, Irreflexive: true, Acyclic: true},
	Causes:      {Transitive: true, Inverse: CausedBy, Irreflexive: true, ExclusiveWith: []RelationType{CausedBy}},
	CausedBy:    {Inverse: Causes, Irreflexive: true, ExclusiveWith: []RelationType{Causes}},
	Uses:        {Inverse: UsedBy},
	UsedBy:      {Inverse: Uses},
	DependsOn:   {Transitive: true, Irreflexive: true, Acyclic: true},
	Precedes:    {Transitive: true, Inverse: Follows, Irreflexive: true, Acyclic: true, ExclusiveWith: []RelationType{Follows}},
	Follows:     {Transitive: true, Inverse: Precedes, Irreflexive: true, Acyclic: true, ExclusiveWith: []RelationType{Precedes}},
	DerivedFrom: {Irreflexive: true, Acyclic: true},
	SimilarTo:   {Symmetric: true, ExclusiveWith: []RelationType{OppositeOf}},
	OppositeOf:  {Symmetric: true, Irreflexive: true, ExclusiveWith: []RelationType{SimilarTo, IsA}},
	RelatedTo:   {Symmetric: true},
}

// SemanticsOf returns the static semantics of r. The returned ExclusiveWith
// slice is a copy.
func SemanticsOf(r RelationType) Semantics {
	if !r.Valid() {
		return Semantics{}
	}
	s := semanticsTable[r]
	s.ExclusiveWith = append([]RelationType(nil), s.ExclusiveWith...)
	return s
}

// Exclusive reports whether a and b may not both hold between the same
// ordered pair of nodes.
func Exclusive(a, b RelationType) bool {
	if !a.Valid() || !b.Valid() || a == b {
		return false
	}
	for _, x := range semanticsTable[a].ExclusiveWith {
		if x == b {
			return true
		}
	}
	for _, x := range semanticsTable[b].ExclusiveWith {
		if x == a {
			return true
		}
	}
	return false
}
