package changelog

import (
	"sort"
	"strings"
	"sync"
)

const inversePrefix = "_inverse_"

// FieldResolver maps caller-visible field names to predicates and storage
// value types to caller-visible type tags.
type FieldResolver interface {
	PredicateForField(field string) (predicate string, direction Direction, ok bool)
	FieldForPredicate(predicate string, direction Direction) (field string, ok bool)
	TypeTag(valueType string) string
}

// TypeNameStore names IRIs as <prefix>_<local name> using a prefix table,
// so http://schema.org/name becomes schema_name when schema is bound to
// http://schema.org/. Incoming predicates get an _inverse_ marker.
type TypeNameStore struct {
	mu         sync.RWMutex
	byPrefix   map[string]string
	namespaces []string
	byIRI      map[string]string
}

func NewTypeNameStore(prefixes map[string]string) *TypeNameStore {
	store := &TypeNameStore{byPrefix: map[string]string{}, byIRI: map[string]string{}}
	for prefix, iri := range prefixes {
		store.Bind(prefix, iri)
	}
	return store
}

// DefaultPrefixes covers the vocabularies every dataset uses.
func DefaultPrefixes() map[string]string {
	return map[string]string{
		"rdf":    "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
		"rdfs":   "http://www.w3.org/2000/01/rdf-schema#",
		"xsd":    "http://www.w3.org/2001/XMLSchema#",
		"schema": "http://schema.org/",
		"tim":    "http://timbuctoo.huygens.knaw.nl/v5/vocabulary#",
	}
}

func (s *TypeNameStore) Bind(prefix string, iri string) {
	prefix = strings.TrimSpace(prefix)
	iri = strings.TrimSpace(iri)
	if prefix == "" || iri == "" || strings.Contains(prefix, "_") {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byPrefix[prefix]; ok {
		delete(s.byIRI, old)
	}
	s.byPrefix[prefix] = iri
	s.byIRI[iri] = prefix
	s.namespaces = s.namespaces[:0]
	for namespace := range s.byIRI {
		s.namespaces = append(s.namespaces, namespace)
	}
	// longest namespace first so nested vocabularies win
	sort.Slice(s.namespaces, func(i, j int) bool {
		if len(s.namespaces[i]) != len(s.namespaces[j]) {
			return len(s.namespaces[i]) > len(s.namespaces[j])
		}
		return s.namespaces[i] < s.namespaces[j]
	})
}

// Shorten returns the prefixed name of iri.
func (s *TypeNameStore) Shorten(iri string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, namespace := range s.namespaces {
		if !strings.HasPrefix(iri, namespace) {
			continue
		}
		local := iri[len(namespace):]
		if local == "" {
			continue
		}
		return s.byIRI[namespace] + "_" + local, true
	}
	return "", false
}

// Expand reverses Shorten.
func (s *TypeNameStore) Expand(name string) (string, bool) {
	prefix, local, found := strings.Cut(name, "_")
	if !found || prefix == "" || local == "" {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	namespace, ok := s.byPrefix[prefix]
	if !ok {
		return "", false
	}
	return namespace + local, true
}

func (s *TypeNameStore) PredicateForField(field string) (string, Direction, bool) {
	direction := DirectionOut
	if strings.HasPrefix(field, inversePrefix) {
		direction = DirectionIn
		field = strings.TrimPrefix(field, inversePrefix)
	}
	predicate, ok := s.Expand(field)
	if !ok {
		return "", "", false
	}
	return predicate, direction, true
}

func (s *TypeNameStore) FieldForPredicate(predicate string, direction Direction) (string, bool) {
	name, ok := s.Shorten(predicate)
	if !ok {
		return "", false
	}
	if direction == DirectionIn {
		return inversePrefix + name, true
	}
	return name, true
}

// TypeTag names a value type. Unknown types keep their IRI.
func (s *TypeNameStore) TypeTag(valueType string) string {
	if name, ok := s.Shorten(valueType); ok {
		return name
	}
	return valueType
}

// ValueType reverses TypeTag.
func (s *TypeNameStore) ValueType(tag string) string {
	if iri, ok := s.Expand(tag); ok {
		return iri
	}
	return tag
}
