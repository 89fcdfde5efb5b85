package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
)

func TestBuiltinRulesAreValid(t *testing.T) {
	for _, r := range Builtin() {
		assert.NoError(t, r.Validate(), r.ID)
	}
}

func TestAddBuiltinRulesIsIdempotent(t *testing.T) {
	b := NewBase()
	require.NoError(t, b.AddBuiltinRules())
	n := b.Len()
	require.NoError(t, b.AddBuiltinRules())
	assert.Equal(t, n, b.Len())
}

func TestBuiltinCoversCanonicalFamilies(t *testing.T) {
	b := NewBase()
	require.NoError(t, b.AddBuiltinRules())

	for _, rel := range []graph.RelationType{graph.IsA, graph.PartOf, graph.Causes, graph.Precedes, graph.DependsOn} {
		r, ok := b.TransitiveFor(rel)
		require.True(t, ok, rel.String())
		assert.Equal(t, Transitive, r.Type)
	}

	opp, ok := b.Get("symmetric_opposite_of")
	require.True(t, ok)
	assert.Equal(t, Symmetric, opp.Type)

	inh, ok := b.Get("inherit_property_is_a")
	require.True(t, ok)
	assert.Equal(t, []graph.RelationType{graph.IsA, graph.HasProperty}, inh.Premises)
	assert.Less(t, inh.Decay, 1.0)

	comp, ok := b.Get("compose_uses_depends_on")
	require.True(t, ok)
	trans, _ := b.Get("transitive_depends_on")
	assert.Less(t, comp.Decay, trans.Decay, "composition should be weaker than transitivity")

	inv, ok := b.Get("inverse_part_of_has_part")
	require.True(t, ok)
	assert.Equal(t, graph.HasPart, inv.Conclusion)
}

func TestAddRejectsInvalidRules(t *testing.T) {
	base := Rule{
		ID:         "r",
		Type:       Transitive,
		Premises:   []graph.RelationType{graph.IsA, graph.IsA},
		Conclusion: graph.IsA,
		Decay:      0.9,
		MaxDepth:   3,
	}
	tests := []struct {
		name   string
		modify func(*Rule)
	}{
		{"missing id", func(r *Rule) { r.ID = "" }},
		{"zero decay", func(r *Rule) { r.Decay = 0 }},
		{"decay above one", func(r *Rule) { r.Decay = 1.5 }},
		{"zero depth", func(r *Rule) { r.MaxDepth = 0 }},
		{"wrong arity", func(r *Rule) { r.Premises = r.Premises[:1] }},
		{"mixed transitive", func(r *Rule) { r.Premises = []graph.RelationType{graph.IsA, graph.PartOf} }},
		{"bad conclusion", func(r *Rule) { r.Conclusion = graph.RelationUnknown }},
		{"bad type", func(r *Rule) { r.Type = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			r.Premises = append([]graph.RelationType(nil), base.Premises...)
			tt.modify(&r)
			err := NewBase().Add(r)
			require.Error(t, err)
			assert.True(t, internalerr.IsValidation(err))
		})
	}

	b := NewBase()
	require.NoError(t, b.Add(base))
	assert.ErrorIs(t, b.Add(base), internalerr.ErrDuplicate)
}

func TestSetEnabledFiltersActive(t *testing.T) {
	b := NewBase()
	require.NoError(t, b.AddBuiltinRules())
	total := len(b.Active())

	require.NoError(t, b.SetEnabled("transitive_is_a", false))
	assert.Len(t, b.Active(), total-1)
	_, ok := b.TransitiveFor(graph.IsA)
	assert.False(t, ok)

	require.NoError(t, b.SetEnabled("transitive_is_a", true))
	assert.Len(t, b.Active(), total)
	assert.ErrorIs(t, b.SetEnabled("nope", true), internalerr.ErrNotFound)
}

func TestRuleStringAndTypeParse(t *testing.T) {
	r, ok := builtinRule("transitive_is_a")
	require.True(t, ok)
	assert.Equal(t, "transitive_is_a: IS_A(A, C) :- IS_A(A, B), IS_A(B, C)", r.String())

	for _, typ := range []Type{Transitive, Inverse, Symmetric, PropertyInheritance, Composition} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("magic")
	assert.Error(t, err)
}

func builtinRule(id string) (Rule, bool) {
	b := NewBase()
	_ = b.AddBuiltinRules()
	return b.Get(id)
}

func TestAddCopiesPremises(t *testing.T) {
	prem := []graph.RelationType{graph.Uses}
	b := NewBase()
	require.NoError(t, b.Add(Rule{ID: "u", Type: Inverse, Premises: prem, Conclusion: graph.UsedBy, Decay: 1, MaxDepth: 2}))
	prem[0] = graph.Causes
	r, _ := b.Get("u")
	assert.Equal(t, graph.Uses, r.Premises[0])
}
