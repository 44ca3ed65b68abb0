package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// TreePath is where the schema lives inside the embedded tree. Postgres
	// files sit at the top, sqlite alternatives under sqlite/.
	TreePath = "data/sql/migrations"

	defaultSourceLabel = "go-entitygraph"
)

// Tables is every table the entity graph stores need. Each one has to be
// created by some up step and dropped by some down step of every dialect.
var Tables = []string{
	"entitygraph_namespaces",
	"entitygraph_collections",
	"entitygraph_namespace_images",
	"entitygraph_entity_revisions",
	"entitygraph_relation_revisions",
	"entitygraph_quads",
	"entitygraph_grants",
	"entitygraph_redirects",
}

// Step is one versioned migration: the up file and the down file that
// reverts it.
type Step struct {
	Version string
	Up      string
	Down    string
}

// Schema is the validated migration set of one dialect.
type Schema struct {
	Dialect string
	Path    string
	FS      fs.FS
	Steps   []Step
}

// Versions lists the step versions in apply order.
func (s Schema) Versions() []string {
	out := make([]string, 0, len(s.Steps))
	for _, step := range s.Steps {
		out = append(out, step.Version)
	}
	return out
}

var (
	createTablePattern = regexp.MustCompile(`(?i)create\s+table\s+(?:if\s+not\s+exists\s+)?"?([a-z0-9_]+)"?`)
	dropTablePattern   = regexp.MustCompile(`(?i)drop\s+table\s+(?:if\s+exists\s+)?"?([a-z0-9_]+)"?`)
)

// LoadSchemas reads the postgres and sqlite schemas out of tree and checks
// them: every up step is paired with a down step, the entity graph tables
// are created and dropped, and both dialects carry the same versions.
func LoadSchemas(tree fs.FS) ([]Schema, error) {
	if tree == nil {
		return nil, fmt.Errorf("migrations: migration tree is required")
	}
	base, basePath, err := schemaRoot(tree)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite schema: %w", err)
	}

	schemas := []Schema{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: path.Join(basePath, "sqlite"), FS: sqliteFS},
	}
	for i := range schemas {
		steps, err := pairSteps(schemas[i].FS)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s schema %q: %w", schemas[i].Dialect, schemas[i].Path, err)
		}
		schemas[i].Steps = steps
		if err := checkTables(schemas[i]); err != nil {
			return nil, fmt.Errorf("migrations: %s schema %q: %w", schemas[i].Dialect, schemas[i].Path, err)
		}
	}
	if !slices.Equal(schemas[0].Versions(), schemas[1].Versions()) {
		return nil, fmt.Errorf(
			"migrations: dialect versions differ: postgres %v, sqlite %v",
			schemas[0].Versions(), schemas[1].Versions(),
		)
	}
	return schemas, nil
}

func schemaRoot(tree fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(tree, TreePath); err == nil {
		sub, subErr := fs.Sub(tree, TreePath)
		if subErr != nil {
			return nil, "", fmt.Errorf("migrations: resolve %s: %w", TreePath, subErr)
		}
		return sub, TreePath, nil
	}
	if matches, _ := fs.Glob(tree, "*.up.sql"); len(matches) > 0 {
		return tree, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", TreePath)
}

// pairSteps matches <version>.up.sql with <version>.down.sql in fsys.
func pairSteps(fsys fs.FS) ([]Step, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	ups := map[string]string{}
	downs := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = name
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = name
		}
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	for version := range downs {
		if _, ok := ups[version]; !ok {
			return nil, fmt.Errorf("down step %s has no up step", version)
		}
	}
	steps := make([]Step, 0, len(ups))
	for version, up := range ups {
		down, ok := downs[version]
		if !ok {
			return nil, fmt.Errorf("up step %s has no down step", version)
		}
		steps = append(steps, Step{Version: version, Up: up, Down: down})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

func checkTables(schema Schema) error {
	created := map[string]struct{}{}
	dropped := map[string]struct{}{}
	for _, step := range schema.Steps {
		if err := collectTables(schema.FS, step.Up, createTablePattern, created); err != nil {
			return err
		}
		if err := collectTables(schema.FS, step.Down, dropTablePattern, dropped); err != nil {
			return err
		}
	}
	var missing []string
	for _, table := range Tables {
		if _, ok := created[table]; !ok {
			missing = append(missing, "create "+table)
		}
		if _, ok := dropped[table]; !ok {
			missing = append(missing, "drop "+table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func collectTables(fsys fs.FS, name string, pattern *regexp.Regexp, into map[string]struct{}) error {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	for _, match := range pattern.FindAllStringSubmatch(string(content), -1) {
		into[strings.ToLower(match[1])] = struct{}{}
	}
	return nil
}

// DialectForDriver maps a database/sql driver name onto a schema dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "pg", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Schemas     []Schema
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithDialects limits registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(r *Registration) {
		var next []string
		for _, dialect := range dialects {
			trimmed := strings.ToLower(strings.TrimSpace(dialect))
			if trimmed != "" && !slices.Contains(next, trimmed) {
				next = append(next, trimmed)
			}
		}
		if len(next) > 0 {
			r.Dialects = next
		}
	}
}

// Register validates tree and hands each selected dialect schema to
// registerFn.
func Register(ctx context.Context, tree fs.FS, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: defaultSourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	schemas, err := LoadSchemas(tree)
	if err != nil {
		return reg, err
	}
	reg.Schemas = schemas

	for _, dialect := range reg.Dialects {
		schema, ok := findSchema(schemas, dialect)
		if !ok {
			return reg, fmt.Errorf("migrations: no schema for dialect %q", dialect)
		}
		if err := registerFn(ctx, schema.Dialect, reg.SourceLabel, schema.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", schema.Dialect, schema.Path, err)
		}
	}
	return reg, nil
}

func findSchema(schemas []Schema, dialect string) (Schema, bool) {
	for _, schema := range schemas {
		if schema.Dialect == dialect {
			return schema, true
		}
	}
	return Schema{}, false
}

// Migrator is the part of a go-persistence-bun client that runs SQL
// migrations.
type Migrator interface {
	RegisterSQLMigrations(migrations ...fs.FS) *persistence.Migrations
	Migrate(ctx context.Context) error
}

// Apply registers the schema of driver's dialect on client and migrates it.
func Apply(ctx context.Context, client Migrator, tree fs.FS, driver string, opts ...Option) (Registration, error) {
	if client == nil {
		return Registration{}, fmt.Errorf("migrations: persistence client is required")
	}
	dialect, err := DialectForDriver(driver)
	if err != nil {
		return Registration{}, err
	}
	opts = append(opts, WithDialects(dialect))
	reg, err := Register(ctx, tree, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, opts...)
	if err != nil {
		return reg, err
	}
	if err := client.Migrate(ctx); err != nil {
		return reg, fmt.Errorf("migrations: migrate %s: %w", dialect, err)
	}
	return reg, nil
}
