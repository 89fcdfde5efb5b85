package config

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
)

// Fact is one line of a facts file:
//
//	is_a(dog, mammal) 0.9
//	part_of(wheel, car).   # confidence defaults to 1
//
// Text after '#' or '%' is a comment.
type Fact struct {
	Relation   graph.RelationType
	Subject    string
	Object     string
	Confidence float64
}

// ParseFacts reads facts, one per line. Blank lines and comments are skipped.
func ParseFacts(r io.Reader) ([]Fact, error) {
	var facts []Fact
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}
		f, err := ParseFact(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		facts = append(facts, f)
	}
	return facts, scanner.Err()
}

// LoadFacts reads a facts file.
func LoadFacts(path string) ([]Fact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	facts, err := ParseFacts(f)
	if err != nil {
		return nil, fmt.Errorf("facts %s: %w", path, err)
	}
	return facts, nil
}

func stripComment(line string) string {
	if i := strings.IndexAny(line, "#%"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// ParseFact parses "relation(subject, object) [confidence]".
func ParseFact(line string) (Fact, error) {
	line = strings.TrimSpace(line)
	openParen := strings.Index(line, "(")
	if openParen == -1 {
		return Fact{}, fmt.Errorf("missing '(': %s", line)
	}
	closeParen := strings.LastIndex(line, ")")
	if closeParen < openParen {
		return Fact{}, fmt.Errorf("missing ')': %s", line)
	}

	rel, err := graph.ParseRelation(line[:openParen])
	if err != nil {
		return Fact{}, err
	}
	parts := strings.Split(line[openParen+1:closeParen], ",")
	if len(parts) != 2 {
		return Fact{}, fmt.Errorf("expected 2 arguments, got %d: %s", len(parts), line)
	}
	f := Fact{
		Relation:   rel,
		Subject:    strings.TrimSpace(parts[0]),
		Object:     strings.TrimSpace(parts[1]),
		Confidence: 1.0,
	}
	if f.Subject == "" || f.Object == "" {
		return Fact{}, fmt.Errorf("empty argument: %s", line)
	}

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line[closeParen+1:]), "."))
	if rest != "" {
		c, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return Fact{}, fmt.Errorf("confidence %q: %w", rest, err)
		}
		if c < 0 || c > 1 {
			return Fact{}, fmt.Errorf("confidence %v out of range: %s", c, line)
		}
		f.Confidence = c
	}
	return f, nil
}

// String renders the fact in the form ParseFact accepts.
func (f Fact) String() string {
	return fmt.Sprintf("%s(%s, %s) %s", strings.ToLower(f.Relation.String()), f.Subject, f.Object,
		strconv.FormatFloat(f.Confidence, 'g', -1, 64))
}

// FormatFacts writes facts one per line.
func FormatFacts(w io.Writer, facts []Fact) error {
	bw := bufio.NewWriter(w)
	for _, f := range facts {
		for _, arg := range []string{f.Subject, f.Object} {
			if arg == "" || strings.ContainsAny(arg, "(),#%\n") {
				return fmt.Errorf("label %q cannot be written as a fact", arg)
			}
		}
		if _, err := bw.WriteString(f.String() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FactsFromStore exports edges as facts keyed by node label. Only asserted
// edges are exported unless withInferred is set.
func FactsFromStore(s *graph.Store, withInferred bool) []Fact {
	var out []Fact
	for _, e := range s.Edges() {
		if e.Provenance == graph.Inferred && !withInferred {
			continue
		}
		out = append(out, Fact{
			Relation:   e.Relation,
			Subject:    nodeName(s, e.Source),
			Object:     nodeName(s, e.Target),
			Confidence: e.Confidence,
		})
	}
	return out
}

func nodeName(s *graph.Store, id graph.NodeID) string {
	if n, ok := s.Node(id); ok && n.Label != "" {
		return n.Label
	}
	return fmt.Sprintf("n%d", id)
}

// ApplyFacts asserts facts into s, creating a node for every label not yet
// present. New node ids continue after the largest existing id. Facts are
// checked as a batch first; on error s is left unmodified.
func ApplyFacts(s *graph.Store, facts []Fact) error {
	if err := checkFacts(s, facts); err != nil {
		return err
	}
	next := graph.NodeID(1)
	for _, n := range s.Nodes() {
		next = max(next, n.ID+1)
	}
	resolve := func(label string) (graph.NodeID, error) {
		if n, ok := s.NodeByLabel(label); ok {
			return n.ID, nil
		}
		id := next
		if err := s.AddNode(graph.Node{ID: id, Label: label}); err != nil {
			return 0, err
		}
		next++
		return id, nil
	}
	for _, f := range facts {
		src, err := resolve(f.Subject)
		if err != nil {
			return err
		}
		tgt, err := resolve(f.Object)
		if err != nil {
			return err
		}
		if _, err := s.AddEdge(src, tgt, f.Relation, f.Confidence); err != nil {
			return fmt.Errorf("fact %s: %w", f, err)
		}
	}
	return nil
}

// checkFacts rejects what AddEdge would reject: an unknown relation, a
// confidence outside [0,1], or a triple already asserted in s or earlier in
// the batch.
func checkFacts(s *graph.Store, facts []Fact) error {
	type labelTriple struct {
		subj, obj string
		rel       graph.RelationType
	}
	seen := make(map[labelTriple]bool, len(facts))
	for _, f := range facts {
		var err error
		switch {
		case !f.Relation.Valid():
			err = internalerr.Invalid("add_edge", internalerr.ErrInvalidInput, "relation %s", f.Relation)
		case math.IsNaN(f.Confidence) || f.Confidence < 0 || f.Confidence > 1:
			err = internalerr.Invalid("add_edge", internalerr.ErrConfidenceRange, "%v", f.Confidence)
		case seen[labelTriple{f.Subject, f.Object, f.Relation}]:
			err = internalerr.Invalid("add_edge", internalerr.ErrDuplicate, "repeated in batch")
		default:
			src, okS := s.NodeByLabel(f.Subject)
			tgt, okT := s.NodeByLabel(f.Object)
			if okS && okT {
				if _, dup := s.Lookup(graph.Triple{Source: src.ID, Target: tgt.ID, Relation: f.Relation}, graph.Asserted); dup {
					err = internalerr.Invalid("add_edge", internalerr.ErrDuplicate, "already asserted")
				}
			}
		}
		if err != nil {
			return fmt.Errorf("fact %s: %w", f, err)
		}
		seen[labelTriple{f.Subject, f.Object, f.Relation}] = true
	}
	return nil
}

// BuildGraph loads the fixture in c into s: declared nodes first, then
// edges, then fact lines and the facts file.
func (c *Config) BuildGraph(s *graph.Store) error {
	for _, nc := range c.Graph.Nodes {
		n := graph.Node{ID: graph.NodeID(nc.ID), Label: nc.Label, Type: nc.Type, Attributes: nc.Attributes}
		if err := s.AddNode(n); err != nil {
			return fmt.Errorf("graph.nodes: %w", err)
		}
	}

	facts := make([]Fact, 0, len(c.Graph.Edges)+len(c.Graph.Facts))
	for _, ec := range c.Graph.Edges {
		rel, err := graph.ParseRelation(ec.Relation)
		if err != nil {
			return fmt.Errorf("graph.edges: %w", err)
		}
		conf := 1.0
		if ec.Confidence != nil {
			conf = *ec.Confidence
		}
		facts = append(facts, Fact{Relation: rel, Subject: ec.Source, Object: ec.Target, Confidence: conf})
	}
	for i, line := range c.Graph.Facts {
		f, err := ParseFact(line)
		if err != nil {
			return fmt.Errorf("graph.facts[%d]: %w", i, err)
		}
		facts = append(facts, f)
	}
	if c.Graph.FactsFile != "" {
		fromFile, err := LoadFacts(c.Graph.FactsFile)
		if err != nil {
			return err
		}
		facts = append(facts, fromFile...)
	}
	return ApplyFacts(s, facts)
}
