package sqlstore

import (
	"github.com/goliatone/go-entitygraph/changelog"
	"github.com/goliatone/go-entitygraph/core"
)

var (
	_ core.DataStoreFactory       = (*EntityStore)(nil)
	_ core.DataStore              = (*entityTx)(nil)
	_ core.AdminDataStore         = (*entityTx)(nil)
	_ core.PermissionSource       = (*GrantStore)(nil)
	_ core.RedirectionService     = (*RedirectStore)(nil)
	_ changelog.QuadStore         = (*QuadStore)(nil)
	_ NamespaceSource             = (*NamespaceStore)(nil)
	_ NamespaceSource             = (*CachedNamespaceStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
