package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	entitygraph "github.com/goliatone/go-entitygraph"
	"github.com/goliatone/go-entitygraph/changelog"
	"github.com/goliatone/go-entitygraph/core"
	sqlstore "github.com/goliatone/go-entitygraph/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-entitygraph-tests"
}

var (
	writer = core.User{ID: "usr_writer"}
	reader = core.User{ID: "usr_reader"}
	root   = core.User{ID: "usr_root"}
)

var persons = core.Collection{
	Name:           "persons",
	EntityTypeName: "person",
	AbstractType:   "person",
	NamespaceName:  "ns1",
}

var (
	researchGroups  = core.Collection{Name: "research_groups", EntityTypeName: "research_group", NamespaceName: "ns1"}
	researchXGroups = core.Collection{Name: "researchxgroups", EntityTypeName: "researchxgroup", NamespaceName: "ns1"}
)

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"entitygraph_entity_revisions",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "entitygraph_entity_revisions" {
		t.Fatalf("expected entitygraph_entity_revisions table, got %q", tableName)
	}
}

func TestEntityStore_RevisionLifecycleThroughActions(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)

	var id uuid.UUID
	report, err := env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		var createErr error
		id, createErr = actions.CreateEntity(ctx, persons, nil, []core.Property{
			{Name: "name", Type: "string", Value: "Ada Lovelace"},
		}, writer)
		return createErr
	})
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	if report.Failed() {
		t.Fatalf("unexpected task failures: %v", report.Err())
	}

	if _, err := env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		return actions.ReplaceEntity(ctx, persons, core.UpdateEntity{
			ID:         id,
			Rev:        1,
			Properties: []core.Property{{Name: "name", Type: "string", Value: "Ada King"}},
		}, writer)
	}); err != nil {
		t.Fatalf("replace entity: %v", err)
	}

	_, err = env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		return actions.ReplaceEntity(ctx, persons, core.UpdateEntity{ID: id, Rev: 1}, writer)
	})
	if !core.IsConflictingUpdate(err) {
		t.Fatalf("expected stale rev to conflict, got %v", err)
	}

	if _, err := env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		return actions.DeleteEntity(ctx, persons, id, writer)
	}); err != nil {
		t.Fatalf("delete entity: %v", err)
	}

	_, err = env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		latest, getErr := actions.GetEntity(ctx, persons, id, nil)
		if getErr != nil {
			return getErr
		}
		if latest.Rev != 3 || !latest.Deleted {
			return fmt.Errorf("expected deleted rev 3, got rev %d deleted=%v", latest.Rev, latest.Deleted)
		}
		rev := 1
		first, getErr := actions.GetEntity(ctx, persons, id, &rev)
		if getErr != nil {
			return getErr
		}
		if name, ok := first.Property("name"); !ok || name.Value != "Ada Lovelace" {
			return fmt.Errorf("expected rev 1 to keep its name, got %#v", first.Properties)
		}
		if first.Created.UserID != writer.ID {
			return fmt.Errorf("expected creator stamp, got %q", first.Created.UserID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read revisions: %v", err)
	}

	redirects, err := env.factory.RedirectStore().List(ctx, id)
	if err != nil {
		t.Fatalf("list redirects: %v", err)
	}
	if len(redirects) != 3 {
		t.Fatalf("expected one redirect per revision, got %d", len(redirects))
	}
	for index, redirect := range redirects {
		if redirect.Lookup.Rev != index+1 || redirect.Lookup.Collection != persons.Name {
			t.Fatalf("unexpected redirect %d: %#v", index, redirect)
		}
	}
	lookup, err := env.factory.RedirectStore().Resolve(ctx, redirects[1].URI)
	if err != nil {
		t.Fatalf("resolve redirect: %v", err)
	}
	if lookup.TimID != id || lookup.Rev != 2 {
		t.Fatalf("unexpected resolved lookup %#v", lookup)
	}
}

func TestEntityStore_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)

	actions, err := env.actions.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	id, err := actions.CreateEntity(ctx, persons, nil, []core.Property{{Name: "name", Value: "Ghost"}}, writer)
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	if err := actions.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	_, err = env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		_, getErr := actions.GetEntity(ctx, persons, id, nil)
		return getErr
	})
	if !core.IsNotFound(err) {
		t.Fatalf("expected rolled back entity to be missing, got %v", err)
	}
	redirects, err := env.factory.RedirectStore().List(ctx, id)
	if err != nil {
		t.Fatalf("list redirects: %v", err)
	}
	if len(redirects) != 0 {
		t.Fatalf("expected no redirects after rollback, got %d", len(redirects))
	}
}

func TestEntityStore_PermissionDeniedLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)
	id := createSQLPerson(t, env, "Grace Hopper")

	_, err := env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		return actions.DeleteEntity(ctx, persons, id, reader)
	})
	if !core.IsPermissionDenied(err) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	_, err = env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		entity, getErr := actions.GetEntity(ctx, persons, id, nil)
		if getErr != nil {
			return getErr
		}
		if entity.Rev != 1 || entity.Deleted {
			return fmt.Errorf("expected untouched rev 1, got %d deleted=%v", entity.Rev, entity.Deleted)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read after denied delete: %v", err)
	}
}

func TestEntityStore_RelationsCollectionsAndSearch(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)
	ada := createSQLPerson(t, env, "Ada Lovelace")
	charles := createSQLPerson(t, env, "Charles Babbage")
	createSQLPerson(t, env, "Alan Turing")

	var relationID uuid.UUID
	_, err := env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		var relErr error
		relationID, relErr = actions.CreateRelation(ctx, persons, core.CreateRelation{
			SourceID: ada,
			TargetID: charles,
			TypeName: "knows",
		}, writer)
		return relErr
	})
	if err != nil {
		t.Fatalf("create relation: %v", err)
	}

	_, err = env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		_, relErr := actions.CreateRelation(ctx, persons, core.CreateRelation{
			SourceID: ada,
			TargetID: uuid.New(),
			TypeName: "knows",
		}, writer)
		return relErr
	})
	if !core.IsIOError(err) {
		t.Fatalf("expected impossible relation to surface as an io error, got %v", err)
	}

	_, err = env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		entity, getErr := actions.GetEntity(ctx, persons, ada, nil, core.WithRelations(true))
		if getErr != nil {
			return getErr
		}
		if len(entity.Relations) != 1 || entity.Relations[0].ID != relationID {
			return fmt.Errorf("expected one relation, got %#v", entity.Relations)
		}

		stream, getErr := actions.GetCollection(ctx, persons, 1, 2)
		if getErr != nil {
			return getErr
		}
		page, getErr := core.Collect(ctx, stream)
		if getErr != nil {
			return getErr
		}
		if len(page) != 2 || page[0].ID != charles {
			return fmt.Errorf("unexpected page %#v", page)
		}

		results, getErr := actions.QuickSearch(ctx, persons, core.ParseQuickSearch("ada lov"), "", 10)
		if getErr != nil {
			return getErr
		}
		if len(results) != 1 || results[0].ID != ada {
			return fmt.Errorf("unexpected search results %#v", results)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read relations and collections: %v", err)
	}

	_, err = env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		return actions.ReplaceRelation(ctx, persons, core.UpdateRelation{ID: relationID, Rev: 1, Accepted: false}, writer)
	})
	if err != nil {
		t.Fatalf("replace relation: %v", err)
	}
	quads, err := env.factory.QuadStore().GetQuads(ctx, sqlstore.SubjectIRI(ada))
	if err != nil {
		t.Fatalf("get quads: %v", err)
	}
	for _, quad := range quads {
		if quad.Graph == "entitygraph:relations" {
			t.Fatalf("expected rejected relation quads to be removed, got %#v", quad)
		}
	}
}

func TestEntityStore_QuickSearchMatchesWildcardCharactersLiterally(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)
	ada := createSQLPerson(t, env, "ada_lovelace")
	createSQLPerson(t, env, "adaxlovelace")
	createSQLPerson(t, env, "ada%lovelace")

	_, err := env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		results, searchErr := actions.QuickSearch(ctx, persons, core.ParseQuickSearch("ada_lov"), "", 10)
		if searchErr != nil {
			return searchErr
		}
		if len(results) != 1 || results[0].ID != ada {
			return fmt.Errorf("expected 1 result for ada_lov, got %#v", results)
		}

		results, searchErr = actions.QuickSearch(ctx, persons, core.ParseQuickSearch("ada%l"), "", 10)
		if searchErr != nil {
			return searchErr
		}
		if len(results) != 1 || results[0].ID == ada {
			return fmt.Errorf("expected only the percent entry for ada%%l, got %#v", results)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("quick search: %v", err)
	}
}

func TestEntityStore_CollectionTypeNameIsMatchedLiterally(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)

	var groupID uuid.UUID
	_, err := env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		var createErr error
		groupID, createErr = actions.CreateEntity(ctx, researchGroups, nil, []core.Property{{Name: "name", Type: "string", Value: "Analytical Engines"}}, writer)
		if createErr != nil {
			return createErr
		}
		_, createErr = actions.CreateEntity(ctx, researchXGroups, nil, []core.Property{{Name: "name", Type: "string", Value: "Difference Engines"}}, writer)
		return createErr
	})
	if err != nil {
		t.Fatalf("create groups: %v", err)
	}

	_, err = env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		stream, getErr := actions.GetCollection(ctx, researchGroups, 0, 10)
		if getErr != nil {
			return getErr
		}
		page, getErr := core.Collect(ctx, stream)
		if getErr != nil {
			return getErr
		}
		if len(page) != 1 || page[0].ID != groupID {
			return fmt.Errorf("expected only the research_group entity, got %#v", page)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read collection: %v", err)
	}
}

func TestEntityStore_AddPIDAndAdminOperations(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)
	from := createSQLPerson(t, env, "Old Node")
	to := createSQLPerson(t, env, "New Node")
	other := createSQLPerson(t, env, "Other Node")

	_, err := env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		if _, relErr := actions.CreateRelation(ctx, persons, core.CreateRelation{SourceID: from, TargetID: other, TypeName: "knows"}, writer); relErr != nil {
			return relErr
		}
		pid, _ := url.Parse("https://pid.example.org/1")
		return actions.AddPID(ctx, pid, core.EntityLookup{Collection: persons.Name, TimID: from, Rev: 1})
	})
	if err != nil {
		t.Fatalf("seed relation and pid: %v", err)
	}

	_, err = env.actions.RunAdmin(ctx, writer, func(ctx context.Context, admin *core.AdminActions) error {
		_, moveErr := admin.MoveEdges(ctx, from, to)
		return moveErr
	})
	if !core.IsPermissionDenied(err) {
		t.Fatalf("expected admin gate to deny writer, got %v", err)
	}

	places := core.Collection{Name: "places", EntityTypeName: "place", NamespaceName: "ns1"}
	var moved int
	_, err = env.actions.RunAdmin(ctx, root, func(ctx context.Context, admin *core.AdminActions) error {
		if addErr := admin.AddTypeToEntity(ctx, to, places); addErr != nil {
			return addErr
		}
		var moveErr error
		moved, moveErr = admin.MoveEdges(ctx, from, to)
		return moveErr
	})
	if err != nil {
		t.Fatalf("run admin: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected one moved edge, got %d", moved)
	}

	_, err = env.actions.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		source, getErr := actions.GetEntity(ctx, persons, from, nil, core.WithRelations(true))
		if getErr != nil {
			return getErr
		}
		if source.PID != "https://pid.example.org/1" {
			return fmt.Errorf("expected pid to be stored, got %q", source.PID)
		}
		if len(source.Relations) != 0 {
			return fmt.Errorf("expected edges to leave the source, got %d", len(source.Relations))
		}
		target, getErr := actions.GetEntity(ctx, places, to, nil, core.WithRelations(true))
		if getErr != nil {
			return getErr
		}
		if len(target.Relations) != 1 || target.Relations[0].SourceID != to {
			return fmt.Errorf("expected moved edge on target, got %#v", target.Relations)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read after admin: %v", err)
	}
}

func TestQuadStore_FeedsChangeRecords(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)
	id := createSQLPerson(t, env, "Ada Lovelace")

	resolver := changelog.NewTypeNameStore(changelog.DefaultPrefixes())
	record, err := changelog.ComputeChangeRecord(ctx, changelog.NewDeletionChangeLog(sqlstore.SubjectIRI(id)), env.factory.QuadStore(), resolver)
	if err != nil {
		t.Fatalf("compute change record: %v", err)
	}
	if len(record.Additions) != 0 || len(record.Replacements) != 0 {
		t.Fatalf("expected deletion-only record, got %#v", record)
	}
	var sawName bool
	for _, change := range record.Deletions {
		if change.Field == "tim_name" && change.OldValue != nil && change.OldValue.Raw == "Ada Lovelace" {
			sawName = true
		}
	}
	if !sawName {
		t.Fatalf("expected tim_name deletion, got %#v", record.Deletions)
	}
}

func TestNamespaceAndGrantStores(t *testing.T) {
	ctx := context.Background()
	env := newSQLEnv(t)

	namespaces := env.factory.Namespaces()
	loaded, err := namespaces.LoadNamespaces(ctx)
	if err != nil {
		t.Fatalf("load namespaces: %v", err)
	}
	if _, ok := loaded.Collection("persons"); !ok {
		t.Fatalf("expected persons collection")
	}
	if err := namespaces.SaveNamespace(ctx, core.Namespace{
		Name:  "ns2",
		Label: "Second",
		Collections: map[string]core.Collection{
			"persons": {Name: "persons", EntityTypeName: "person"},
		},
	}); !core.IsBadInput(err) {
		t.Fatalf("expected duplicate collection name to be rejected, got %v", err)
	}

	if err := namespaces.SaveImage(ctx, core.NamespaceImage{Namespace: "ns1", MediaType: "image/png", Blob: []byte{1, 2, 3}}); err != nil {
		t.Fatalf("save image: %v", err)
	}
	image, err := namespaces.GetNamespaceImage(ctx, "ns1")
	if err != nil {
		t.Fatalf("get image: %v", err)
	}
	if image.MediaType != "image/png" || len(image.Blob) != 3 {
		t.Fatalf("unexpected image %#v", image)
	}

	grants := env.factory.GrantStore()
	if err := grants.Grant(ctx, reader.ID, "ns1", core.CapabilityWrite); err != nil {
		t.Fatalf("grant: %v", err)
	}
	capabilities, err := grants.GrantedCapabilities(ctx, reader, "ns1")
	if err != nil {
		t.Fatalf("granted capabilities: %v", err)
	}
	if len(capabilities) != 2 {
		t.Fatalf("expected merged READ and WRITE, got %v", capabilities)
	}
	if err := grants.Revoke(ctx, reader.ID, "ns1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	capabilities, err = grants.GrantedCapabilities(ctx, reader, "ns1")
	if err != nil || len(capabilities) != 0 {
		t.Fatalf("expected no capabilities after revoke, got %v %v", capabilities, err)
	}
}

type sqlEnv struct {
	factory *sqlstore.RepositoryFactory
	actions *core.ActionsFactory
	clock   *core.FixedClock
}

func newSQLEnv(t *testing.T) sqlEnv {
	t.Helper()
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	if err := factory.Namespaces().SaveNamespace(ctx, core.Namespace{
		Name:  "ns1",
		Label: "Namespace One",
		Collections: map[string]core.Collection{
			"persons":         persons,
			"places":          {Name: "places", EntityTypeName: "place", NamespaceName: "ns1"},
			"research_groups": researchGroups,
			"researchxgroups": researchXGroups,
		},
	}); err != nil {
		t.Fatalf("save namespace: %v", err)
	}
	if err := factory.Namespaces().SaveNamespace(ctx, core.Namespace{Name: "admin", Label: "Admin"}); err != nil {
		t.Fatalf("save admin namespace: %v", err)
	}
	grants := factory.GrantStore()
	for _, grant := range []struct {
		user         core.User
		namespace    string
		capabilities []core.Capability
	}{
		{writer, "ns1", []core.Capability{core.CapabilityRead, core.CapabilityWrite}},
		{reader, "ns1", []core.Capability{core.CapabilityRead}},
		{root, "ns1", []core.Capability{core.CapabilityWrite}},
		{root, "admin", []core.Capability{core.CapabilityAdmin}},
	} {
		if err := grants.Grant(ctx, grant.user.ID, grant.namespace, grant.capabilities...); err != nil {
			t.Fatalf("grant %s: %v", grant.user.ID, err)
		}
	}

	clock := core.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	actions, err := core.NewActionsFactory(
		core.Config{PersistentURLBase: "https://data.example.org"},
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("new actions factory: %v", err)
	}
	return sqlEnv{factory: factory, actions: actions, clock: clock}
}

func createSQLPerson(t *testing.T, env sqlEnv, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	_, err := env.actions.Run(context.Background(), func(ctx context.Context, actions *core.Actions) error {
		var createErr error
		id, createErr = actions.CreateEntity(ctx, persons, nil, []core.Property{{Name: "name", Type: "string", Value: name}}, writer)
		return createErr
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	env.clock.Advance(time.Millisecond)
	return id
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "entitygraph.db") + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	if _, err := entitygraph.Migrate(context.Background(), client, cfg.driver); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
