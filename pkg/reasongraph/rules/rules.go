// Package rules holds the inference rule catalog. Rules are plain data;
// the inference package interprets them with a single executor.
package rules

import (
	"fmt"
	"strings"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
)

// Type tags the shape of a rule.
type Type uint8

const (
	// Transitive: A R B, B R C => A R C
	Transitive Type = iota + 1
	// Inverse: A R1 B => B R2 A
	Inverse
	// Symmetric: A R B => B R A
	Symmetric
	// PropertyInheritance: A IS_A B, B HAS_PROPERTY P => A HAS_PROPERTY P
	PropertyInheritance
	// Composition: A R1 B, B R2 C => A R3 C
	Composition
)

var typeNames = map[Type]string{
	Transitive:          "transitive",
	Inverse:             "inverse",
	Symmetric:           "symmetric",
	PropertyInheritance: "property_inheritance",
	Composition:         "composition",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType accepts the lower-case names produced by String.
func ParseType(s string) (Type, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == norm {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown rule type %q", s)
}

// Chain reports whether the rule joins two premises.
func (t Type) Chain() bool {
	return t == Transitive || t == PropertyInheritance || t == Composition
}

// Rule is one inference rule.
type Rule struct {
	ID          string
	Type        Type
	Premises    []graph.RelationType // one for unary rules, two for chain rules
	Conclusion  graph.RelationType
	Decay       float64 // multiplies the weakest premise confidence, in (0,1]
	MaxDepth    int     // deepest derivation this rule may produce
	Disabled    bool
	Description string
}

// Arity is the number of premises the rule type requires.
func (r Rule) Arity() int {
	if r.Type.Chain() {
		return 2
	}
	return 1
}

// Validate checks the rule parameters.
func (r Rule) Validate() error {
	if r.ID == "" {
		return internalerr.Invalid("add_rule", internalerr.ErrInvalidInput, "missing rule id")
	}
	if _, ok := typeNames[r.Type]; !ok {
		return internalerr.Invalid("add_rule", internalerr.ErrInvalidInput, "rule %s: type %s", r.ID, r.Type)
	}
	if len(r.Premises) != r.Arity() {
		return internalerr.Invalid("add_rule", internalerr.ErrInvalidInput,
			"rule %s: %s needs %d premises, got %d", r.ID, r.Type, r.Arity(), len(r.Premises))
	}
	for _, p := range r.Premises {
		if !p.Valid() {
			return internalerr.Invalid("add_rule", internalerr.ErrInvalidInput, "rule %s: premise %s", r.ID, p)
		}
	}
	if !r.Conclusion.Valid() {
		return internalerr.Invalid("add_rule", internalerr.ErrInvalidInput, "rule %s: conclusion %s", r.ID, r.Conclusion)
	}
	if !(r.Decay > 0 && r.Decay <= 1) {
		return internalerr.Invalid("add_rule", internalerr.ErrConfidenceRange, "rule %s: decay %v", r.ID, r.Decay)
	}
	if r.MaxDepth < 1 {
		return internalerr.Invalid("add_rule", internalerr.ErrInvalidInput, "rule %s: max depth %d", r.ID, r.MaxDepth)
	}
	switch r.Type {
	case Transitive:
		if r.Premises[0] != r.Conclusion || r.Premises[1] != r.Conclusion {
			return internalerr.Invalid("add_rule", internalerr.ErrInvalidInput, "rule %s: transitive premises must equal conclusion", r.ID)
		}
	case Symmetric:
		if r.Premises[0] != r.Conclusion {
			return internalerr.Invalid("add_rule", internalerr.ErrInvalidInput, "rule %s: symmetric premise must equal conclusion", r.ID)
		}
	}
	return nil
}

// String renders the rule in a compact Horn-clause form, for logs.
func (r Rule) String() string {
	switch r.Type {
	case Inverse, Symmetric:
		return fmt.Sprintf("%s: %s(B, A) :- %s(A, B)", r.ID, r.Conclusion, r.Premises[0])
	default:
		if len(r.Premises) < 2 {
			return r.ID
		}
		return fmt.Sprintf("%s: %s(A, C) :- %s(A, B), %s(B, C)", r.ID, r.Conclusion, r.Premises[0], r.Premises[1])
	}
}

// Base is an ordered rule catalog. Each inference engine is given its own
// Base; there is no process-wide registry.
type Base struct {
	rules []Rule
	index map[string]int
}

// NewBase returns an empty rule base.
func NewBase() *Base {
	return &Base{index: make(map[string]int)}
}

// Add validates and appends a rule.
func (b *Base) Add(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, ok := b.index[r.ID]; ok {
		return internalerr.Invalid("add_rule", internalerr.ErrDuplicate, "rule %s", r.ID)
	}
	r.Premises = append([]graph.RelationType(nil), r.Premises...)
	b.index[r.ID] = len(b.rules)
	b.rules = append(b.rules, r)
	return nil
}

// Get returns the rule with the given id.
func (b *Base) Get(id string) (Rule, bool) {
	i, ok := b.index[id]
	if !ok {
		return Rule{}, false
	}
	return b.rules[i], true
}

// SetEnabled toggles a rule.
func (b *Base) SetEnabled(id string, enabled bool) error {
	i, ok := b.index[id]
	if !ok {
		return internalerr.Invalid("set_enabled", internalerr.ErrNotFound, "rule %s", id)
	}
	b.rules[i].Disabled = !enabled
	return nil
}

// All returns every rule in insertion order.
func (b *Base) All() []Rule {
	return append([]Rule(nil), b.rules...)
}

// Active returns the enabled rules in insertion order.
func (b *Base) Active() []Rule {
	out := make([]Rule, 0, len(b.rules))
	for _, r := range b.rules {
		if !r.Disabled {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of rules.
func (b *Base) Len() int { return len(b.rules) }

// TransitiveFor returns the first enabled transitive rule for rel.
func (b *Base) TransitiveFor(rel graph.RelationType) (Rule, bool) {
	for _, r := range b.rules {
		if !r.Disabled && r.Type == Transitive && r.Conclusion == rel {
			return r, true
		}
	}
	return Rule{}, false
}
