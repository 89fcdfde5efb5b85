package rules

import (
	"fmt"
	"strings"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
)

type transitiveSpec struct {
	rel      graph.RelationType
	decay    float64
	maxDepth int
}

var builtinTransitive = []transitiveSpec{
	{graph.IsA, 0.9, 10},
	{graph.PartOf, 0.9, 8},
	{graph.HasPart, 0.9, 8},
	{graph.Causes, 0.8, 5},
	{graph.Precedes, 0.95, 10},
	{graph.Follows, 0.95, 10},
	{graph.DependsOn, 0.85, 6},
	{graph.Contains, 0.9, 8},
}

// Inverse and symmetric rules restate a fact; they must reach past the
// deepest transitive conclusion, hence the larger bound.
const restateMaxDepth = 12

// Builtin returns the canonical rule set.
func Builtin() []Rule {
	var out []Rule
	for _, t := range builtinTransitive {
		out = append(out, Rule{
			ID:          "transitive_" + slug(t.rel),
			Type:        Transitive,
			Premises:    []graph.RelationType{t.rel, t.rel},
			Conclusion:  t.rel,
			Decay:       t.decay,
			MaxDepth:    t.maxDepth,
			Description: fmt.Sprintf("%s is transitive", t.rel),
		})
	}

	// one rule per direction so each can be disabled on its own
	for _, rel := range []graph.RelationType{graph.PartOf, graph.HasPart, graph.Causes, graph.CausedBy, graph.Uses, graph.UsedBy, graph.Precedes, graph.Follows} {
		inv := graph.SemanticsOf(rel).Inverse
		out = append(out, Rule{
			ID:          "inverse_" + slug(rel) + "_" + slug(inv),
			Type:        Inverse,
			Premises:    []graph.RelationType{rel},
			Conclusion:  inv,
			Decay:       1.0,
			MaxDepth:    restateMaxDepth,
			Description: fmt.Sprintf("%s(A, B) implies %s(B, A)", rel, inv),
		})
	}

	for _, rel := range []graph.RelationType{graph.OppositeOf, graph.SimilarTo, graph.RelatedTo} {
		out = append(out, Rule{
			ID:          "symmetric_" + slug(rel),
			Type:        Symmetric,
			Premises:    []graph.RelationType{rel},
			Conclusion:  rel,
			Decay:       1.0,
			MaxDepth:    restateMaxDepth,
			Description: fmt.Sprintf("%s is symmetric", rel),
		})
	}

	out = append(out,
		Rule{
			ID:          "inherit_property_is_a",
			Type:        PropertyInheritance,
			Premises:    []graph.RelationType{graph.IsA, graph.HasProperty},
			Conclusion:  graph.HasProperty,
			Decay:       0.9,
			MaxDepth:    6,
			Description: "subclasses inherit properties",
		},
		Rule{
			ID:          "inherit_property_instance_of",
			Type:        PropertyInheritance,
			Premises:    []graph.RelationType{graph.InstanceOf, graph.HasProperty},
			Conclusion:  graph.HasProperty,
			Decay:       0.95,
			MaxDepth:    6,
			Description: "instances inherit class properties",
		},
		Rule{
			ID:          "compose_uses_depends_on",
			Type:        Composition,
			Premises:    []graph.RelationType{graph.Uses, graph.DependsOn},
			Conclusion:  graph.DependsOn,
			Decay:       0.7,
			MaxDepth:    4,
			Description: "using something makes you depend on its dependencies",
		},
		Rule{
			ID:          "compose_instance_of_is_a",
			Type:        Composition,
			Premises:    []graph.RelationType{graph.InstanceOf, graph.IsA},
			Conclusion:  graph.InstanceOf,
			Decay:       0.95,
			MaxDepth:    6,
			Description: "an instance of a subclass is an instance of the superclass",
		},
	)
	return out
}

// AddBuiltinRules installs the canonical rule set. Rules whose id is already
// present are skipped, so the call is idempotent.
func (b *Base) AddBuiltinRules() error {
	for _, r := range Builtin() {
		if _, ok := b.index[r.ID]; ok {
			continue
		}
		if err := b.Add(r); err != nil {
			return fmt.Errorf("builtin rule %s: %w", r.ID, err)
		}
	}
	return nil
}

func slug(rel graph.RelationType) string {
	return strings.ToLower(rel.String())
}
