package migrations_test

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	entitygraph "github.com/goliatone/go-entitygraph"
	"github.com/goliatone/go-entitygraph/migrations"
	_ "github.com/mattn/go-sqlite3"
)

func TestLoadSchemas_EmbeddedTreePairsEveryStep(t *testing.T) {
	schemas, err := migrations.LoadSchemas(entitygraph.GetMigrationsFS())
	if err != nil {
		t.Fatalf("load schemas: %v", err)
	}
	if len(schemas) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(schemas))
	}
	for _, schema := range schemas {
		if len(schema.Steps) == 0 {
			t.Fatalf("expected %s steps, got none", schema.Dialect)
		}
		first := schema.Steps[0]
		if first.Version != "00001_entitygraph_core_schema" {
			t.Fatalf("unexpected first %s version %q", schema.Dialect, first.Version)
		}
		if first.Up != first.Version+".up.sql" || first.Down != first.Version+".down.sql" {
			t.Fatalf("unexpected %s step files %#v", schema.Dialect, first)
		}
	}
	if schemas[0].Dialect != migrations.DialectPostgres || schemas[1].Dialect != migrations.DialectSQLite {
		t.Fatalf("unexpected dialect order %s %s", schemas[0].Dialect, schemas[1].Dialect)
	}
}

func TestLoadSchemas_RejectsUpStepWithoutDown(t *testing.T) {
	tree := validTree()
	delete(tree, "data/sql/migrations/sqlite/00001_core.down.sql")

	_, err := migrations.LoadSchemas(tree)
	if err == nil || !strings.Contains(err.Error(), "has no down step") {
		t.Fatalf("expected unpaired up step to be rejected, got %v", err)
	}
}

func TestLoadSchemas_RejectsSchemaWithoutQuadTable(t *testing.T) {
	tree := validTree()
	tree["data/sql/migrations/00001_core.up.sql"] = &fstest.MapFile{
		Data: []byte(createStatements("entitygraph_quads")),
	}

	_, err := migrations.LoadSchemas(tree)
	if err == nil || !strings.Contains(err.Error(), "create entitygraph_quads") {
		t.Fatalf("expected missing quad table to be reported, got %v", err)
	}
}

func TestLoadSchemas_RejectsDialectVersionDrift(t *testing.T) {
	tree := validTree()
	tree["data/sql/migrations/00002_extra.up.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}
	tree["data/sql/migrations/00002_extra.down.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}

	_, err := migrations.LoadSchemas(tree)
	if err == nil || !strings.Contains(err.Error(), "dialect versions differ") {
		t.Fatalf("expected version drift to be rejected, got %v", err)
	}
}

func TestRegister_SelectsDialectsAndLabel(t *testing.T) {
	var calls []string
	var labels []string
	reg, err := migrations.Register(context.Background(), entitygraph.GetMigrationsFS(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect)
		labels = append(labels, label)
		return nil
	}, migrations.WithDialects(" SQLite "))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != migrations.DialectSQLite {
		t.Fatalf("expected one sqlite registration, got %v", calls)
	}
	if labels[0] != "go-entitygraph" || reg.SourceLabel != "go-entitygraph" {
		t.Fatalf("unexpected source label %q", labels[0])
	}
	if len(reg.Schemas) != 2 {
		t.Fatalf("expected both schemas validated, got %d", len(reg.Schemas))
	}
}

func TestRegister_RejectsMissingRegisterFuncAndUnknownDialect(t *testing.T) {
	tree := entitygraph.GetMigrationsFS()
	if _, err := migrations.Register(context.Background(), tree, nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}
	noop := func(context.Context, string, string, fs.FS) error { return nil }
	if _, err := migrations.Register(context.Background(), tree, noop, migrations.WithDialects("mysql")); err == nil {
		t.Fatalf("expected unknown dialect to fail")
	}
	reg, err := migrations.Register(context.Background(), tree, noop, migrations.WithSourceLabel("custom"))
	if err != nil {
		t.Fatalf("register with custom label: %v", err)
	}
	if reg.SourceLabel != "custom" {
		t.Fatalf("expected custom label, got %q", reg.SourceLabel)
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite3":    migrations.DialectSQLite,
		"sqlite":     migrations.DialectSQLite,
		"postgres":   migrations.DialectPostgres,
		"postgresql": migrations.DialectPostgres,
		"pg":         migrations.DialectPostgres,
	}
	for driver, want := range cases {
		got, err := migrations.DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("driver %q: expected %q, got %q (%v)", driver, want, got, err)
		}
	}
	if _, err := migrations.DialectForDriver("oracle"); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
}

func TestSQLiteCoreSchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-entitygraph-core?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	schemas, err := migrations.LoadSchemas(entitygraph.GetMigrationsFS())
	if err != nil {
		t.Fatalf("load schemas: %v", err)
	}
	sqliteSchema := schemas[1]
	for _, step := range sqliteSchema.Steps {
		if err := execSQLFile(context.Background(), db, sqliteSchema.FS, step.Up); err != nil {
			t.Fatalf("apply %s: %v", step.Up, err)
		}
	}

	for _, tableName := range migrations.Tables {
		var count int
		if err := db.QueryRowContext(
			context.Background(),
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master for %s: %v", tableName, err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	insertRevision := `
		INSERT INTO entitygraph_entity_revisions (
			id, entity_id, rev, collection, created_at_ms, modified_at_ms, is_latest
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(context.Background(), insertRevision, "r1", "e1", 1, "persons", 1, 1, 1); err != nil {
		t.Fatalf("insert first revision: %v", err)
	}
	if _, err := db.ExecContext(context.Background(), insertRevision, "r2", "e1", 2, "persons", 2, 2, 1); err == nil {
		t.Fatalf("expected second latest revision of one entity to be rejected")
	}
	if _, err := db.ExecContext(context.Background(), insertRevision, "r3", "e1", 1, "persons", 3, 3, 0); err == nil {
		t.Fatalf("expected duplicate entity revision to be rejected")
	}

	for i := len(sqliteSchema.Steps) - 1; i >= 0; i-- {
		step := sqliteSchema.Steps[i]
		if err := execSQLFile(context.Background(), db, sqliteSchema.FS, step.Down); err != nil {
			t.Fatalf("apply %s: %v", step.Down, err)
		}
	}
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name LIKE 'entitygraph_%'`,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down migration: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected entitygraph tables to be dropped, %d remain", count)
	}
}

func validTree() fstest.MapFS {
	up := &fstest.MapFile{Data: []byte(createStatements())}
	down := &fstest.MapFile{Data: []byte(dropStatements())}
	return fstest.MapFS{
		"data/sql/migrations/00001_core.up.sql":          up,
		"data/sql/migrations/00001_core.down.sql":        down,
		"data/sql/migrations/sqlite/00001_core.up.sql":   up,
		"data/sql/migrations/sqlite/00001_core.down.sql": down,
	}
}

func createStatements(skip ...string) string {
	var b strings.Builder
	for _, table := range migrations.Tables {
		if containsString(skip, table) {
			continue
		}
		b.WriteString("CREATE TABLE IF NOT EXISTS " + table + " (id TEXT PRIMARY KEY);\n")
	}
	return b.String()
}

func dropStatements() string {
	var b strings.Builder
	for _, table := range migrations.Tables {
		b.WriteString("DROP TABLE IF EXISTS " + table + ";\n")
	}
	return b.String()
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func execSQLFile(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
