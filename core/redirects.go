package core

import (
	"context"
	"net/url"
	"sync"
)

type Redirect struct {
	URI    string
	Lookup EntityLookup
}

// MemoryRedirectionService records registrations in call order.
type MemoryRedirectionService struct {
	mu        sync.Mutex
	redirects []Redirect
	failOn    map[string]error
}

func NewMemoryRedirectionService() *MemoryRedirectionService {
	return &MemoryRedirectionService{failOn: map[string]error{}}
}

func (s *MemoryRedirectionService) Add(_ context.Context, uri *url.URL, lookup EntityLookup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failOn[urlString(uri)]; ok {
		return err
	}
	s.redirects = append(s.redirects, Redirect{URI: urlString(uri), Lookup: lookup})
	return nil
}

// FailOn makes Add return err for uri.
func (s *MemoryRedirectionService) FailOn(uri string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[uri] = err
}

func (s *MemoryRedirectionService) Redirects() []Redirect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Redirect(nil), s.redirects...)
}

// Resolve returns the latest lookup registered for uri.
func (s *MemoryRedirectionService) Resolve(uri string) (EntityLookup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.redirects) - 1; i >= 0; i-- {
		if s.redirects[i].URI == uri {
			return s.redirects[i].Lookup, true
		}
	}
	return EntityLookup{}, false
}
