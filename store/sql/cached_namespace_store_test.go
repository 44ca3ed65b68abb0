package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-entitygraph/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubNamespaceSource struct {
	mu         sync.Mutex
	namespaces []core.Namespace
	images     map[string]core.NamespaceImage
	loadCalls  int
	imageCalls int
	loadErr    error
}

func (s *stubNamespaceSource) LoadNamespaces(context.Context) (core.Namespaces, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadCalls++
	if s.loadErr != nil {
		return core.Namespaces{}, s.loadErr
	}
	return core.NewNamespaces(s.namespaces...), nil
}

func (s *stubNamespaceSource) GetNamespaceImage(_ context.Context, name string) (core.NamespaceImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageCalls++
	image, ok := s.images[name]
	if !ok {
		return core.NamespaceImage{}, core.NotFoundError("no image for %q", name)
	}
	return image, nil
}

func (s *stubNamespaceSource) SaveNamespace(_ context.Context, namespace core.Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces = append(s.namespaces, namespace)
	return nil
}

func (s *stubNamespaceSource) SaveImage(_ context.Context, image core.NamespaceImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.images == nil {
		s.images = map[string]core.NamespaceImage{}
	}
	s.images[image.Namespace] = image
	return nil
}

func TestCachedNamespaceStore_LoadMissFetchThenHit(t *testing.T) {
	base := &stubNamespaceSource{namespaces: []core.Namespace{{
		Name:        "ns1",
		Collections: map[string]core.Collection{"persons": {Name: "persons", NamespaceName: "ns1"}},
	}}}
	store, err := NewCachedNamespaceStore(base, newTestNamespaceCacheService(t))
	if err != nil {
		t.Fatalf("new cached namespace store: %v", err)
	}

	for range 2 {
		namespaces, err := store.LoadNamespaces(context.Background())
		if err != nil {
			t.Fatalf("load namespaces: %v", err)
		}
		if _, ok := namespaces.Collection("persons"); !ok {
			t.Fatalf("expected cached persons collection")
		}
	}
	if base.loadCalls != 1 {
		t.Fatalf("expected second load to be a cache hit, base calls=%d", base.loadCalls)
	}
}

func TestCachedNamespaceStore_SaveInvalidates(t *testing.T) {
	base := &stubNamespaceSource{}
	store, err := NewCachedNamespaceStore(base, newTestNamespaceCacheService(t))
	if err != nil {
		t.Fatalf("new cached namespace store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.LoadNamespaces(ctx); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := store.SaveNamespace(ctx, core.Namespace{Name: "ns2"}); err != nil {
		t.Fatalf("save namespace: %v", err)
	}
	namespaces, err := store.LoadNamespaces(ctx)
	if err != nil {
		t.Fatalf("load after save: %v", err)
	}
	if base.loadCalls != 2 {
		t.Fatalf("expected invalidation to force a second base read, got %d", base.loadCalls)
	}
	if _, ok := namespaces.Namespace("ns2"); !ok {
		t.Fatalf("expected refreshed namespaces to include ns2")
	}

	if err := store.SaveImage(ctx, core.NamespaceImage{Namespace: "ns2", MediaType: "image/png", Blob: []byte("v1")}); err != nil {
		t.Fatalf("save image: %v", err)
	}
	if _, err := store.GetNamespaceImage(ctx, "ns2"); err != nil {
		t.Fatalf("get image: %v", err)
	}
	if err := store.SaveImage(ctx, core.NamespaceImage{Namespace: "ns2", MediaType: "image/png", Blob: []byte("v2")}); err != nil {
		t.Fatalf("replace image: %v", err)
	}
	image, err := store.GetNamespaceImage(ctx, "ns2")
	if err != nil {
		t.Fatalf("get replaced image: %v", err)
	}
	if string(image.Blob) != "v2" || base.imageCalls != 2 {
		t.Fatalf("expected refreshed image, got %q after %d base reads", image.Blob, base.imageCalls)
	}
}

func TestCachedNamespaceStore_PropagatesBaseErrors(t *testing.T) {
	boom := errors.New("boom")
	store, err := NewCachedNamespaceStore(&stubNamespaceSource{loadErr: boom}, newTestNamespaceCacheService(t))
	if err != nil {
		t.Fatalf("new cached namespace store: %v", err)
	}
	if _, err := store.LoadNamespaces(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
	if _, err := store.GetNamespaceImage(context.Background(), "missing"); !core.IsNotFound(err) {
		t.Fatalf("expected not found from base, got %v", err)
	}
}

func TestNamespaceCacheKey_Contract(t *testing.T) {
	const expected = "go-entitygraph::namespaces::v1::image::my%20ns%2Fone"
	if key := NamespaceCacheKey("image", " my ns/one "); key != expected {
		t.Fatalf("unexpected cache key: got %q want %q", key, expected)
	}
}

func TestIsUniqueViolation_PlainErrors(t *testing.T) {
	if isUniqueViolation(errors.New("UNIQUE constraint failed")) {
		t.Fatalf("expected plain errors not to be classified as driver violations")
	}
	if err := writeError(errors.New("disk full"), nil, 1, 2); !core.IsIOError(err) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func newTestNamespaceCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
