package graph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/cognicore/reasongraph/pkg/reasongraph/internalerr"
)

// ErrCorrupt marks an index that disagrees with the edge set. It indicates a
// programming defect, not bad input.
var ErrCorrupt = errors.New("graph index corrupt")

// CheckIntegrity verifies that the adjacency, relation and triple indices
// describe exactly the stored edges, and that every inferred edge is deeper
// than each of its supporters still in the store.
func (s *Store) CheckIntegrity() error {
	outCount, inCount, relCount := 0, 0, 0
	for src, ids := range s.out {
		for _, id := range ids {
			e, ok := s.edges[id]
			if !ok || e.Source != src {
				return fmt.Errorf("%w: out[%d] lists edge %d", ErrCorrupt, src, id)
			}
		}
		outCount += len(ids)
	}
	for tgt, ids := range s.in {
		for _, id := range ids {
			e, ok := s.edges[id]
			if !ok || e.Target != tgt {
				return fmt.Errorf("%w: in[%d] lists edge %d", ErrCorrupt, tgt, id)
			}
		}
		inCount += len(ids)
	}
	for rel, ids := range s.byRelation {
		for _, id := range ids {
			e, ok := s.edges[id]
			if !ok || e.Relation != rel {
				return fmt.Errorf("%w: relation %s lists edge %d", ErrCorrupt, rel, id)
			}
		}
		relCount += len(ids)
	}
	n := len(s.edges)
	if outCount != n || inCount != n || relCount != n {
		return fmt.Errorf("%w: %d edges but out=%d in=%d relation=%d", ErrCorrupt, n, outCount, inCount, relCount)
	}

	for id, e := range s.edges {
		if !s.HasNode(e.Source) || !s.HasNode(e.Target) {
			return fmt.Errorf("%w: edge %d references a missing node", ErrCorrupt, id)
		}
		if !validConfidence(e.Confidence) {
			return fmt.Errorf("%w: edge %d confidence %v", ErrCorrupt, id, e.Confidence)
		}
		if e.Provenance == Inferred && (e.Derivation == nil || e.Derivation.RuleID == "") {
			return fmt.Errorf("%w: inferred edge %d has no rule", ErrCorrupt, id)
		}
		if e.Derivation != nil {
			for _, sup := range e.Derivation.Supporters {
				if se, ok := s.edges[sup]; ok && se.Depth() >= e.Depth() {
					return fmt.Errorf("%w: edge %d depth %d not above supporter %d depth %d",
						ErrCorrupt, id, e.Depth(), sup, se.Depth())
				}
			}
		}
		sl, ok := s.triples[e.Triple()]
		if !ok || (sl.asserted != id && sl.inferred != id) {
			return fmt.Errorf("%w: edge %d missing from triple index", ErrCorrupt, id)
		}
	}
	for key, sl := range s.triples {
		for _, id := range []EdgeID{sl.asserted, sl.inferred} {
			if id == 0 {
				continue
			}
			if e, ok := s.edges[id]; !ok || e.Triple() != key {
				return fmt.Errorf("%w: triple %s points at edge %d", ErrCorrupt, key, id)
			}
		}
	}
	return nil
}

// MustCheckIntegrity panics when CheckIntegrity fails.
func (s *Store) MustCheckIntegrity() {
	if err := s.CheckIntegrity(); err != nil {
		panic(err)
	}
}

// Restore loads a snapshot into an empty store, keeping node and edge ids,
// and rejects snapshots that fail CheckIntegrity.
func (s *Store) Restore(nodes []Node, edges []Edge) error {
	if len(s.nodes) > 0 || len(s.edges) > 0 {
		return internalerr.Invalid("restore", internalerr.ErrInvalidInput, "store is not empty")
	}
	for _, n := range nodes {
		if err := s.AddNode(n); err != nil {
			s.reset()
			return err
		}
	}
	sorted := slices.Clone(edges)
	slices.SortFunc(sorted, func(a, b Edge) int { return cmp.Compare(a.ID, b.ID) })
	for _, e := range sorted {
		if err := s.restoreEdge(e); err != nil {
			s.reset()
			return err
		}
	}
	if err := s.CheckIntegrity(); err != nil {
		s.reset()
		return internalerr.Invalid("restore", internalerr.ErrInvalidInput, "%v", err)
	}
	return nil
}

func (s *Store) restoreEdge(e Edge) error {
	if e.ID <= 0 {
		return internalerr.Invalid("restore", internalerr.ErrInvalidInput, "edge id %d", e.ID)
	}
	if _, ok := s.edges[e.ID]; ok {
		return internalerr.Invalid("restore", internalerr.ErrDuplicate, "edge id %d", e.ID)
	}
	if err := s.checkEndpoints("restore", e.Source, e.Target, e.Relation, e.Confidence); err != nil {
		return err
	}
	switch e.Provenance {
	case Asserted:
		e.Derivation = nil
	case Inferred:
		if e.Derivation == nil || e.Derivation.RuleID == "" {
			return internalerr.Invalid("restore", internalerr.ErrInvalidInput, "inferred edge %d without rule", e.ID)
		}
	default:
		return internalerr.Invalid("restore", internalerr.ErrInvalidInput, "edge %d provenance %s", e.ID, e.Provenance)
	}
	if sl, ok := s.triples[e.Triple()]; ok {
		if (e.Provenance == Asserted && sl.asserted != 0) || (e.Provenance == Inferred && sl.inferred != 0) {
			return internalerr.Invalid("restore", internalerr.ErrDuplicate, "%s %s", e.Triple(), e.Provenance)
		}
	}
	s.insert(e.clone())
	return nil
}

func (s *Store) reset() {
	fresh := NewStore(WithClock(s.clock))
	*s = *fresh
}
