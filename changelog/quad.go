// Package changelog derives change records from the quads stored for a
// subject. A change record lists, per caller-visible field, which values a
// mutation adds, removes or replaces.
package changelog

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type Direction string

const (
	DirectionOut Direction = "OUT"
	DirectionIn  Direction = "IN"
)

func ParseDirection(value string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(value))) {
	case DirectionOut, "":
		return DirectionOut, nil
	case DirectionIn:
		return DirectionIn, nil
	default:
		return "", fmt.Errorf("changelog: unknown direction %q", value)
	}
}

// Quad is one fact about a subject. Quads are unique by subject, predicate,
// direction and object within a graph.
type Quad struct {
	Subject   string
	Predicate string
	Direction Direction
	Object    string
	ValueType string
	Language  string
	Graph     string
}

func (q Quad) key() string {
	return strings.Join([]string{q.Graph, q.Subject, q.Predicate, string(q.Direction), q.Object}, "\x00")
}

// QuadStore returns every quad of a subject in natural order.
type QuadStore interface {
	GetQuads(ctx context.Context, subject string) ([]Quad, error)
}

type QuadStoreFunc func(ctx context.Context, subject string) ([]Quad, error)

func (f QuadStoreFunc) GetQuads(ctx context.Context, subject string) ([]Quad, error) {
	return f(ctx, subject)
}

// MemoryQuadStore keeps quads in insertion order.
type MemoryQuadStore struct {
	mu    sync.RWMutex
	quads []Quad
	index map[string]int
}

func NewMemoryQuadStore(quads ...Quad) *MemoryQuadStore {
	store := &MemoryQuadStore{index: map[string]int{}}
	store.Add(quads...)
	return store
}

// Add stores quads, skipping ones already present.
func (s *MemoryQuadStore) Add(quads ...Quad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, quad := range quads {
		if quad.Direction == "" {
			quad.Direction = DirectionOut
		}
		key := quad.key()
		if _, ok := s.index[key]; ok {
			continue
		}
		s.index[key] = len(s.quads)
		s.quads = append(s.quads, quad)
	}
}

// Remove deletes the given quads and reports how many existed.
func (s *MemoryQuadStore) Remove(quads ...Quad) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := map[string]struct{}{}
	for _, quad := range quads {
		if quad.Direction == "" {
			quad.Direction = DirectionOut
		}
		if _, ok := s.index[quad.key()]; ok {
			drop[quad.key()] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0
	}
	kept := s.quads[:0]
	s.index = map[string]int{}
	for _, quad := range s.quads {
		if _, ok := drop[quad.key()]; ok {
			continue
		}
		s.index[quad.key()] = len(kept)
		kept = append(kept, quad)
	}
	s.quads = kept
	return len(drop)
}

func (s *MemoryQuadStore) GetQuads(_ context.Context, subject string) ([]Quad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Quad
	for _, quad := range s.quads {
		if quad.Subject == subject {
			out = append(out, quad)
		}
	}
	return out, nil
}
