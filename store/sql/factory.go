package sqlstore

import (
	"fmt"
	"time"

	"github.com/goliatone/go-entitygraph/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db        *bun.DB
	cacheTTL  time.Duration
	projector *QuadProjector

	namespaceStore *NamespaceStore
	namespaces     NamespaceSource
	entityStore    *EntityStore
	quadStore      *QuadStore
	grantStore     *GrantStore
	redirectStore  *RedirectStore
}

type FactoryOption func(*RepositoryFactory)

// WithNamespaceCacheTTL caches namespace reads for ttl. Zero disables the
// cache.
func WithNamespaceCacheTTL(ttl time.Duration) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheTTL = ttl
	}
}

func WithQuadProjector(projector *QuadProjector) FactoryOption {
	return func(f *RepositoryFactory) {
		if projector != nil {
			f.projector = projector
		}
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{cacheTTL: time.Minute}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

// NewRepositoryFactoryFromPersistence accepts a *persistence.Client or any
// value exposing DB() *bun.DB.
func NewRepositoryFactoryFromPersistence(client any, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.entityStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DataStoreFactory() core.DataStoreFactory {
	if f == nil || f.entityStore == nil {
		return nil
	}
	return f.entityStore
}

func (f *RepositoryFactory) PermissionSource() core.PermissionSource {
	if f == nil || f.grantStore == nil {
		return nil
	}
	return f.grantStore
}

func (f *RepositoryFactory) RedirectionService() core.RedirectionService {
	if f == nil || f.redirectStore == nil {
		return nil
	}
	return f.redirectStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

// Namespaces returns the namespace store, cached when a TTL is configured.
func (f *RepositoryFactory) Namespaces() NamespaceSource {
	if f == nil {
		return nil
	}
	return f.namespaces
}

func (f *RepositoryFactory) EntityStore() *EntityStore {
	if f == nil {
		return nil
	}
	return f.entityStore
}

func (f *RepositoryFactory) QuadStore() *QuadStore {
	if f == nil {
		return nil
	}
	return f.quadStore
}

func (f *RepositoryFactory) GrantStore() *GrantStore {
	if f == nil {
		return nil
	}
	return f.grantStore
}

func (f *RepositoryFactory) RedirectStore() *RedirectStore {
	if f == nil {
		return nil
	}
	return f.redirectStore
}

func (f *RepositoryFactory) initStores() error {
	namespaceStore, err := NewNamespaceStore(f.db)
	if err != nil {
		return err
	}
	f.namespaceStore = namespaceStore
	f.namespaces = namespaceStore
	if f.cacheTTL > 0 {
		config := repositorycache.DefaultConfig()
		config.TTL = f.cacheTTL
		cacheService, err := repositorycache.NewCacheService(config)
		if err != nil {
			return fmt.Errorf("sqlstore: namespace cache: %w", err)
		}
		cached, err := NewCachedNamespaceStore(namespaceStore, cacheService)
		if err != nil {
			return err
		}
		f.namespaces = cached
	}

	entityStore, err := NewEntityStore(f.db, f.namespaces, f.projector)
	if err != nil {
		return err
	}
	f.entityStore = entityStore
	quadStore, err := NewQuadStore(f.db)
	if err != nil {
		return err
	}
	f.quadStore = quadStore
	grantStore, err := NewGrantStore(f.db)
	if err != nil {
		return err
	}
	f.grantStore = grantStore
	redirectStore, err := NewRedirectStore(f.db)
	if err != nil {
		return err
	}
	f.redirectStore = redirectStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
