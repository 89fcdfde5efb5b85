package graph

import (
	"iter"
	"math"
	"slices"
	"time"

	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
)

// Store is the id-indexed arena holding nodes and edges.
//
// Store has no internal locking. A single owner must serialize mutations;
// read-only methods may run concurrently with each other but never with a
// mutation. The reasongraph.Reasoner type enforces this at the boundary.
type Store struct {
	clock func() time.Time

	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge
	next  EdgeID

	out        map[NodeID][]EdgeID
	in         map[NodeID][]EdgeID
	byRelation map[RelationType][]EdgeID
	triples    map[Triple]*slot
}

// slot holds the at-most-one asserted and at-most-one inferred edge of a triple.
type slot struct {
	asserted EdgeID
	inferred EdgeID
}

func (s *slot) empty() bool { return s.asserted == 0 && s.inferred == 0 }

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used for CreatedAt.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// NewStore creates an empty graph store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		clock:      func() time.Time { return time.Now().UTC() },
		nodes:      make(map[NodeID]*Node),
		edges:      make(map[EdgeID]*Edge),
		next:       1,
		out:        make(map[NodeID][]EdgeID),
		in:         make(map[NodeID][]EdgeID),
		byRelation: make(map[RelationType][]EdgeID),
		triples:    make(map[Triple]*slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNode inserts a node. It fails if the id is reserved or already present.
func (s *Store) AddNode(n Node) error {
	if n.ID <= 0 {
		return internalerr.Invalid("add_node", internalerr.ErrInvalidInput, "node id %d must be positive", n.ID)
	}
	if _, ok := s.nodes[n.ID]; ok {
		return internalerr.Invalid("add_node", internalerr.ErrDuplicate, "node id %d", n.ID)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock()
	}
	c := n.clone()
	s.nodes[n.ID] = &c
	return nil
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id NodeID) (Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// HasNode reports whether id exists.
func (s *Store) HasNode(id NodeID) bool {
	_, ok := s.nodes[id]
	return ok
}

// SetLabel replaces a node's label text.
func (s *Store) SetLabel(id NodeID, label string) error {
	n, ok := s.nodes[id]
	if !ok {
		return internalerr.Invalid("set_label", internalerr.ErrUnknownNode, "node %d", id)
	}
	n.Label = label
	return nil
}

// SetAttribute sets a single attribute on a node.
func (s *Store) SetAttribute(id NodeID, key, value string) error {
	n, ok := s.nodes[id]
	if !ok {
		return internalerr.Invalid("set_attribute", internalerr.ErrUnknownNode, "node %d", id)
	}
	if n.Attributes == nil {
		n.Attributes = make(map[string]string)
	}
	n.Attributes[key] = value
	return nil
}

// Nodes returns all nodes ordered by id.
func (s *Store) Nodes() []Node {
	out := make([]Node, 0, len(s.nodes))
	for _, id := range s.nodeIDs() {
		out = append(out, s.nodes[id].clone())
	}
	return out
}

// NodeByLabel returns the lowest-id node whose label matches exactly.
func (s *Store) NodeByLabel(label string) (Node, bool) {
	for _, id := range s.nodeIDs() {
		if s.nodes[id].Label == label {
			return s.nodes[id].clone(), true
		}
	}
	return Node{}, false
}

func (s *Store) nodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges, asserted and inferred.
func (s *Store) EdgeCount() int { return len(s.edges) }

func validConfidence(c float64) bool {
	return !math.IsNaN(c) && c >= 0 && c <= 1
}

func (s *Store) checkEndpoints(op string, src, tgt NodeID, rel RelationType, confidence float64) error {
	if !rel.Valid() {
		return internalerr.Invalid(op, internalerr.ErrInvalidInput, "relation %s", rel)
	}
	if !validConfidence(confidence) {
		return internalerr.Invalid(op, internalerr.ErrConfidenceRange, "%v", confidence)
	}
	if !s.HasNode(src) {
		return internalerr.Invalid(op, internalerr.ErrUnknownNode, "source %d", src)
	}
	if !s.HasNode(tgt) {
		return internalerr.Invalid(op, internalerr.ErrUnknownNode, "target %d", tgt)
	}
	return nil
}

// AddEdge asserts relation(src, tgt) with the given confidence.
func (s *Store) AddEdge(src, tgt NodeID, rel RelationType, confidence float64) (Edge, error) {
	if err := s.checkEndpoints("add_edge", src, tgt, rel, confidence); err != nil {
		return Edge{}, err
	}
	key := Triple{Source: src, Target: tgt, Relation: rel}
	if sl, ok := s.triples[key]; ok && sl.asserted != 0 {
		return Edge{}, internalerr.Invalid("add_edge", internalerr.ErrDuplicate, "%s already asserted as edge %d", key, sl.asserted)
	}
	e := s.insert(Edge{
		Source:     src,
		Target:     tgt,
		Relation:   rel,
		Confidence: confidence,
		Provenance: Asserted,
	})
	return e.clone(), nil
}

// PutInferred records a derived fact. An existing inferred edge of the same
// triple is upgraded in place; otherwise a new inferred edge is created. The
// bool result reports whether a new edge was created.
func (s *Store) PutInferred(src, tgt NodeID, rel RelationType, confidence float64, d Derivation) (Edge, bool, error) {
	if err := s.checkEndpoints("put_inferred", src, tgt, rel, confidence); err != nil {
		return Edge{}, false, err
	}
	if d.RuleID == "" {
		return Edge{}, false, internalerr.Invalid("put_inferred", internalerr.ErrInvalidInput, "missing rule id")
	}
	for _, sup := range d.Supporters {
		se, ok := s.edges[sup]
		if !ok {
			return Edge{}, false, internalerr.Invalid("put_inferred", internalerr.ErrNotFound, "supporter edge %d", sup)
		}
		if se.Depth() >= d.Depth {
			return Edge{}, false, internalerr.Invalid("put_inferred", internalerr.ErrInvalidInput,
				"depth %d not above supporter %d depth %d", d.Depth, sup, se.Depth())
		}
	}

	key := Triple{Source: src, Target: tgt, Relation: rel}
	if sl, ok := s.triples[key]; ok && sl.inferred != 0 {
		existing := s.edges[sl.inferred]
		existing.Confidence = confidence
		existing.Derivation = d.clone()
		return existing.clone(), false, nil
	}
	e := s.insert(Edge{
		Source:     src,
		Target:     tgt,
		Relation:   rel,
		Confidence: confidence,
		Provenance: Inferred,
		Derivation: d.clone(),
	})
	return e.clone(), true, nil
}

func (s *Store) insert(e Edge) *Edge {
	if e.ID == 0 {
		e.ID = s.next
	}
	if e.ID >= s.next {
		s.next = e.ID + 1
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	p := &e
	s.edges[e.ID] = p
	s.out[e.Source] = append(s.out[e.Source], e.ID)
	s.in[e.Target] = append(s.in[e.Target], e.ID)
	s.byRelation[e.Relation] = append(s.byRelation[e.Relation], e.ID)

	key := e.Triple()
	sl, ok := s.triples[key]
	if !ok {
		sl = &slot{}
		s.triples[key] = sl
	}
	if e.Provenance == Inferred {
		sl.inferred = e.ID
	} else {
		sl.asserted = e.ID
	}
	return p
}

// Edge returns a copy of the edge with the given id.
func (s *Store) Edge(id EdgeID) (Edge, bool) {
	e, ok := s.edges[id]
	if !ok {
		return Edge{}, false
	}
	return e.clone(), true
}

// Lookup returns the edge of a triple with the given provenance.
func (s *Store) Lookup(t Triple, p Provenance) (Edge, bool) {
	sl, ok := s.triples[t]
	if !ok {
		return Edge{}, false
	}
	id := sl.asserted
	if p == Inferred {
		id = sl.inferred
	}
	if id == 0 {
		return Edge{}, false
	}
	return s.edges[id].clone(), true
}

// Best returns the highest-confidence edge of a triple regardless of
// provenance. Asserted wins ties.
func (s *Store) Best(src, tgt NodeID, rel RelationType) (Edge, bool) {
	sl, ok := s.triples[Triple{Source: src, Target: tgt, Relation: rel}]
	if !ok {
		return Edge{}, false
	}
	var best *Edge
	for _, id := range []EdgeID{sl.asserted, sl.inferred} {
		if id == 0 {
			continue
		}
		if e := s.edges[id]; best == nil || e.Confidence > best.Confidence {
			best = e
		}
	}
	if best == nil {
		return Edge{}, false
	}
	return best.clone(), true
}

// MaxConfidence returns the highest confidence recorded for a triple.
func (s *Store) MaxConfidence(t Triple) (float64, bool) {
	e, ok := s.Best(t.Source, t.Target, t.Relation)
	if !ok {
		return 0, false
	}
	return e.Confidence, true
}

// Edges returns all edges ordered by id.
func (s *Store) Edges() []Edge {
	ids := make([]EdgeID, 0, len(s.edges))
	for id := range s.edges {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Edge, len(ids))
	for i, id := range ids {
		out[i] = s.edges[id].clone()
	}
	return out
}

// EdgesByRelation yields every edge of one relation in insertion order.
func (s *Store) EdgesByRelation(rel RelationType) iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for _, id := range s.byRelation[rel] {
			if !yield(s.edges[id].clone()) {
				return
			}
		}
	}
}

// RelationCount returns the number of edges of one relation.
func (s *Store) RelationCount(rel RelationType) int { return len(s.byRelation[rel]) }

// Neighbors yields (neighbor, edge) pairs adjacent to id. The sequence is
// lazy and may be ranged over repeatedly. An empty relation filter matches
// every relation.
func (s *Store) Neighbors(id NodeID, dir Direction, relations ...RelationType) iter.Seq2[Node, Edge] {
	match := func(rel RelationType) bool {
		return len(relations) == 0 || slices.Contains(relations, rel)
	}
	return func(yield func(Node, Edge) bool) {
		if dir == Out || dir == Both {
			for _, eid := range s.out[id] {
				e := s.edges[eid]
				if !match(e.Relation) {
					continue
				}
				if !yield(s.nodes[e.Target].clone(), e.clone()) {
					return
				}
			}
		}
		if dir == In || dir == Both {
			for _, eid := range s.in[id] {
				e := s.edges[eid]
				if !match(e.Relation) {
					continue
				}
				// a self-loop was already yielded from the out list
				if dir == Both && e.Source == e.Target {
					continue
				}
				if !yield(s.nodes[e.Source].clone(), e.clone()) {
					return
				}
			}
		}
	}
}

// UpdateConfidence changes the confidence of an existing edge.
func (s *Store) UpdateConfidence(id EdgeID, confidence float64) error {
	e, ok := s.edges[id]
	if !ok {
		return internalerr.Invalid("update_confidence", internalerr.ErrNotFound, "edge %d", id)
	}
	if !validConfidence(confidence) {
		return internalerr.Invalid("update_confidence", internalerr.ErrConfidenceRange, "%v", confidence)
	}
	e.Confidence = confidence
	return nil
}

// RemoveEdge deletes one edge.
func (s *Store) RemoveEdge(id EdgeID) error {
	e, ok := s.edges[id]
	if !ok {
		return internalerr.Invalid("remove_edge", internalerr.ErrNotFound, "edge %d", id)
	}
	s.unlink(e)
	return nil
}

func (s *Store) unlink(e *Edge) {
	delete(s.edges, e.ID)
	s.out[e.Source] = removeID(s.out[e.Source], e.ID)
	s.in[e.Target] = removeID(s.in[e.Target], e.ID)
	s.byRelation[e.Relation] = removeID(s.byRelation[e.Relation], e.ID)
	if len(s.out[e.Source]) == 0 {
		delete(s.out, e.Source)
	}
	if len(s.in[e.Target]) == 0 {
		delete(s.in, e.Target)
	}
	if len(s.byRelation[e.Relation]) == 0 {
		delete(s.byRelation, e.Relation)
	}

	key := e.Triple()
	if sl, ok := s.triples[key]; ok {
		if sl.asserted == e.ID {
			sl.asserted = 0
		}
		if sl.inferred == e.ID {
			sl.inferred = 0
		}
		if sl.empty() {
			delete(s.triples, key)
		}
	}
}

func removeID(ids []EdgeID, id EdgeID) []EdgeID {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

// RemoveDependents deletes every inferred edge that rests on id, directly
// or through other inferred edges, and returns how many were removed. The
// edge id itself is kept.
func (s *Store) RemoveDependents(id EdgeID) int {
	doomed := map[EdgeID]bool{id: true}
	for changed := true; changed; {
		changed = false
		for eid, e := range s.edges {
			if doomed[eid] || e.Derivation == nil {
				continue
			}
			for _, sup := range e.Derivation.Supporters {
				if doomed[sup] {
					doomed[eid] = true
					changed = true
					break
				}
			}
		}
	}
	delete(doomed, id)
	for eid := range doomed {
		s.unlink(s.edges[eid])
	}
	return len(doomed)
}

// RemoveNode deletes a node and every edge touching it. It returns the number
// of edges removed.
func (s *Store) RemoveNode(id NodeID) (int, error) {
	if !s.HasNode(id) {
		return 0, internalerr.Invalid("remove_node", internalerr.ErrUnknownNode, "node %d", id)
	}
	touching := slices.Concat(s.out[id], s.in[id])
	removed := 0
	for _, eid := range touching {
		if e, ok := s.edges[eid]; ok {
			s.unlink(e)
			removed++
		}
	}
	delete(s.nodes, id)
	return removed, nil
}

// RemoveInferred deletes every inferred edge, leaving asserted facts intact.
func (s *Store) RemoveInferred() int {
	removed := 0
	for _, e := range s.Edges() {
		if e.Provenance == Inferred {
			s.unlink(s.edges[e.ID])
			removed++
		}
	}
	return removed
}

// Stats returns counts and a relation histogram.
func (s *Store) Stats() Stats {
	st := Stats{
		Nodes:      len(s.nodes),
		Edges:      len(s.edges),
		ByRelation: make(map[RelationType]int, len(s.byRelation)),
	}
	for rel, ids := range s.byRelation {
		st.ByRelation[rel] = len(ids)
	}
	for _, e := range s.edges {
		if e.Provenance == Inferred {
			st.Inferred++
		} else {
			st.Asserted++
		}
	}
	return st
}
