package entitygraph

import (
	"context"
	"embed"
	"io/fs"

	"github.com/goliatone/go-entitygraph/migrations"
)

// migrationsFS contains the SQL migration tree, including dialect
// alternatives under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the full embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}

// Migrate validates the embedded schema and applies the dialect matching
// driver to client.
func Migrate(ctx context.Context, client migrations.Migrator, driver string, opts ...migrations.Option) (migrations.Registration, error) {
	return migrations.Apply(ctx, client, migrationsFS, driver, opts...)
}
