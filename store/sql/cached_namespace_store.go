package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-entitygraph/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const namespaceCacheKeyPrefix = "go-entitygraph::namespaces::v1"

// NamespaceSource is the read and write surface the cache wraps.
type NamespaceSource interface {
	NamespaceLoader
	SaveNamespace(ctx context.Context, namespace core.Namespace) error
	SaveImage(ctx context.Context, image core.NamespaceImage) error
}

// CachedNamespaceStore serves namespace reads from cache. Writes go through
// to the base store and invalidate the affected keys.
type CachedNamespaceStore struct {
	base  NamespaceSource
	cache repositorycache.CacheService
}

func NewCachedNamespaceStore(base NamespaceSource, cacheService repositorycache.CacheService) (*CachedNamespaceStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base namespace store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: namespace cache service is required")
	}
	return &CachedNamespaceStore{base: base, cache: cacheService}, nil
}

// NamespaceCacheKey returns go-entitygraph::namespaces::v1::<segments>, each
// segment URL-path escaped.
func NamespaceCacheKey(segments ...string) string {
	parts := []string{namespaceCacheKeyPrefix}
	for _, segment := range segments {
		parts = append(parts, url.PathEscape(strings.TrimSpace(segment)))
	}
	return strings.Join(parts, "::")
}

func (s *CachedNamespaceStore) LoadNamespaces(ctx context.Context) (core.Namespaces, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Namespaces{}, fmt.Errorf("sqlstore: cached namespace store is not configured")
	}
	namespaces, err := repositorycache.GetOrFetch(ctx, s.cache, NamespaceCacheKey("all"), func(ctx context.Context) ([]core.Namespace, error) {
		loaded, err := s.base.LoadNamespaces(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]core.Namespace, 0, loaded.Len())
		for _, name := range loaded.Names() {
			namespace, _ := loaded.Namespace(name)
			out = append(out, namespace)
		}
		return out, nil
	})
	if err != nil {
		return core.Namespaces{}, err
	}
	return core.NewNamespaces(namespaces...), nil
}

func (s *CachedNamespaceStore) GetNamespaceImage(ctx context.Context, name string) (core.NamespaceImage, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.NamespaceImage{}, fmt.Errorf("sqlstore: cached namespace store is not configured")
	}
	image, err := repositorycache.GetOrFetch(ctx, s.cache, NamespaceCacheKey("image", name), func(ctx context.Context) (core.NamespaceImage, error) {
		return s.base.GetNamespaceImage(ctx, name)
	})
	if err != nil {
		return core.NamespaceImage{}, err
	}
	image.Blob = append([]byte(nil), image.Blob...)
	return image, nil
}

func (s *CachedNamespaceStore) SaveNamespace(ctx context.Context, namespace core.Namespace) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached namespace store is not configured")
	}
	if err := s.base.SaveNamespace(ctx, namespace); err != nil {
		return err
	}
	return s.cache.Delete(ctx, NamespaceCacheKey("all"))
}

func (s *CachedNamespaceStore) SaveImage(ctx context.Context, image core.NamespaceImage) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached namespace store is not configured")
	}
	if err := s.base.SaveImage(ctx, image); err != nil {
		return err
	}
	return s.cache.Delete(ctx, NamespaceCacheKey("image", image.Namespace))
}
