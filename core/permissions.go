package core

import (
	"context"
	"sort"
	"strings"
	"sync"
)

func ParseCapability(value string) (Capability, bool) {
	switch Capability(strings.ToUpper(strings.TrimSpace(value))) {
	case CapabilityRead:
		return CapabilityRead, true
	case CapabilityWrite:
		return CapabilityWrite, true
	case CapabilityAdmin:
		return CapabilityAdmin, true
	default:
		return "", false
	}
}

// NormalizeCapabilities dedupes and sorts capabilities. WRITE implies READ.
func NormalizeCapabilities(values []Capability) []Capability {
	set := map[Capability]struct{}{}
	for _, value := range values {
		capability, ok := ParseCapability(string(value))
		if !ok {
			continue
		}
		set[capability] = struct{}{}
		if capability == CapabilityWrite {
			set[CapabilityRead] = struct{}{}
		}
	}
	out := make([]Capability, 0, len(set))
	for capability := range set {
		out = append(out, capability)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StaticPermissionSource keeps grants in memory keyed by user and namespace.
type StaticPermissionSource struct {
	mu     sync.RWMutex
	grants map[string]map[string][]Capability
}

func NewStaticPermissionSource() *StaticPermissionSource {
	return &StaticPermissionSource{grants: map[string]map[string][]Capability{}}
}

func (s *StaticPermissionSource) Grant(userID string, namespace string, capabilities ...Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byNamespace, ok := s.grants[userID]
	if !ok {
		byNamespace = map[string][]Capability{}
		s.grants[userID] = byNamespace
	}
	byNamespace[namespace] = NormalizeCapabilities(append(byNamespace[namespace], capabilities...))
}

func (s *StaticPermissionSource) Revoke(userID string, namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[userID], namespace)
}

func (s *StaticPermissionSource) GrantedCapabilities(_ context.Context, user User, namespace string) ([]Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Capability(nil), s.grants[user.ID][namespace]...), nil
}

type PermissionSourceFunc func(ctx context.Context, user User, namespace string) ([]Capability, error)

func (f PermissionSourceFunc) GrantedCapabilities(ctx context.Context, user User, namespace string) ([]Capability, error) {
	return f(ctx, user, namespace)
}
