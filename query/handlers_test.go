package query

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-entitygraph/changelog"
	"github.com/goliatone/go-entitygraph/core"
	"github.com/google/uuid"
)

var writer = core.User{ID: "writer"}

func newQueryFactory(t *testing.T) (*core.ActionsFactory, *core.MemoryStores) {
	t.Helper()
	stores := core.NewMemoryStores(
		core.Namespace{
			Name:  "ww",
			Label: "Women Writers",
			Collections: map[string]core.Collection{
				"persons":   {Name: "persons", EntityTypeName: "person", NamespaceName: "ww"},
				"keywords":  {Name: "keywords", EntityTypeName: "keyword", AbstractType: core.KeywordAbstractType, NamespaceName: "ww"},
				"relations": {Name: "relations", EntityTypeName: "relation", NamespaceName: "ww", Relation: true},
			},
		},
		core.Namespace{Name: "admin", Label: "Administration"},
	)
	stores.Permissions.Grant("writer", "ww", core.CapabilityRead, core.CapabilityWrite)
	stores.Store.SetNamespaceImage(core.NamespaceImage{Namespace: "ww", MediaType: "image/png", Blob: []byte{0x89, 0x50}})

	factory, err := core.NewActionsFactory(
		core.Config{PersistentURLBase: "https://data.example.org"},
		core.WithRepositoryFactory(stores),
		core.WithClock(core.NewFixedClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))),
	)
	if err != nil {
		t.Fatalf("new actions factory: %v", err)
	}
	return factory, stores
}

func seedPersons(t *testing.T, factory *core.ActionsFactory, names ...string) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(names))
	_, err := factory.Run(context.Background(), func(ctx context.Context, actions *core.Actions) error {
		persons, err := actions.GetCollectionMetadata(ctx, "persons")
		if err != nil {
			return err
		}
		for _, name := range names {
			id, err := actions.CreateEntity(ctx, persons, nil, []core.Property{{Name: "name", Type: "string", Value: name}}, writer)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if len(ids) < 2 {
			return nil
		}
		relations, err := actions.GetCollectionMetadata(ctx, "relations")
		if err != nil {
			return err
		}
		_, err = actions.CreateRelation(ctx, relations, core.CreateRelation{SourceID: ids[0], TargetID: ids[1], TypeName: "isFriendOf"}, writer)
		return err
	})
	if err != nil {
		t.Fatalf("seed persons: %v", err)
	}
	return ids
}

func TestGetEntityQuery_LatestAndHistoricRevision(t *testing.T) {
	factory, _ := newQueryFactory(t)
	ids := seedPersons(t, factory, "Ada", "Charles")
	_, err := factory.Run(context.Background(), func(ctx context.Context, actions *core.Actions) error {
		persons, err := actions.GetCollectionMetadata(ctx, "persons")
		if err != nil {
			return err
		}
		return actions.ReplaceEntity(ctx, persons, core.UpdateEntity{
			ID:         ids[0],
			Rev:        1,
			Properties: []core.Property{{Name: "name", Type: "string", Value: "Ada Lovelace"}},
		}, writer)
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	q := NewGetEntityQuery(factory)
	latest, err := q.Query(context.Background(), GetEntityMessage{Collection: "persons", ID: ids[0]})
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.Rev != 2 || len(latest.Relations) != 1 {
		t.Fatalf("unexpected latest entity %#v", latest)
	}

	rev := 1
	historic, err := q.Query(context.Background(), GetEntityMessage{Collection: "persons", ID: ids[0], Rev: &rev, WithoutRelations: true})
	if err != nil {
		t.Fatalf("get rev 1: %v", err)
	}
	if name, _ := historic.Property("name"); name.Value != "Ada" || len(historic.Relations) != 0 {
		t.Fatalf("unexpected historic entity %#v", historic)
	}

	if _, err := q.Query(context.Background(), GetEntityMessage{Collection: "persons", ID: uuid.New()}); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetCollectionQuery_PagesAndDrains(t *testing.T) {
	factory, _ := newQueryFactory(t)
	seedPersons(t, factory, "Ada", "Charles", "Mary")

	q := NewGetCollectionQuery(factory)
	page, err := q.Query(context.Background(), GetCollectionMessage{Collection: "persons", Start: 1, Rows: 5})
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected two entities after offset 1, got %d", len(page))
	}
	if _, err := q.Query(context.Background(), GetCollectionMessage{Collection: "ships"}); !core.IsInvalidCollection(err) {
		t.Fatalf("expected invalid collection, got %v", err)
	}
}

func TestQuickSearchQuery(t *testing.T) {
	factory, _ := newQueryFactory(t)
	ids := seedPersons(t, factory, "Ada Lovelace", "Charles Babbage")

	results, err := NewQuickSearchQuery(factory).Query(context.Background(), QuickSearchMessage{
		Collection: "persons",
		Query:      "ada lov",
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("quick search: %v", err)
	}
	if len(results) != 1 || results[0].ID != ids[0] {
		t.Fatalf("expected ada only, got %#v", results)
	}
}

func TestNamespaceQueries(t *testing.T) {
	factory, _ := newQueryFactory(t)

	namespaces, err := NewListNamespacesQuery(factory).Query(context.Background(), ListNamespacesMessage{})
	if err != nil {
		t.Fatalf("list namespaces: %v", err)
	}
	if len(namespaces) != 2 || namespaces[0].Name != "admin" || namespaces[1].Name != "ww" {
		t.Fatalf("expected sorted namespaces, got %#v", namespaces)
	}

	image, err := NewGetNamespaceImageQuery(factory).Query(context.Background(), GetNamespaceImageMessage{Namespace: "ww"})
	if err != nil {
		t.Fatalf("namespace image: %v", err)
	}
	if image.MediaType != "image/png" || len(image.Blob) != 2 {
		t.Fatalf("unexpected image %#v", image)
	}
	if _, err := NewGetNamespaceImageQuery(factory).Query(context.Background(), GetNamespaceImageMessage{Namespace: "admin"}); !core.IsNotFound(err) {
		t.Fatalf("expected missing image to be not found, got %v", err)
	}
}

func TestDeletionPreviewQuery(t *testing.T) {
	id := uuid.New()
	subject := "urn:uuid:" + id.String()
	store := changelog.NewMemoryQuadStore(
		changelog.Quad{
			Subject:   subject,
			Predicate: "http://timbuctoo.huygens.knaw.nl/v5/vocabulary#name",
			Direction: changelog.DirectionOut,
			Object:    "Ada",
			ValueType: "http://www.w3.org/2001/XMLSchema#string",
		},
	)
	q := NewDeletionPreviewQuery(store, changelog.NewTypeNameStore(changelog.DefaultPrefixes()), nil)

	record, err := q.Query(context.Background(), DeletionPreviewMessage{EntityID: id})
	if err != nil {
		t.Fatalf("deletion preview: %v", err)
	}
	if len(record.Deletions) != 1 || record.Deletions[0].Field != "tim_name" || record.Deletions[0].OldValue.Raw != "Ada" {
		t.Fatalf("unexpected deletion preview %#v", record)
	}

	empty, err := q.Query(context.Background(), DeletionPreviewMessage{EntityID: uuid.New()})
	if err != nil || !empty.IsEmpty() {
		t.Fatalf("expected empty preview for unknown entity, got %#v %v", empty, err)
	}
}

func TestQueries_NilReaderAndValidation(t *testing.T) {
	var q *GetEntityQuery
	if _, err := q.Query(context.Background(), GetEntityMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
	if _, err := NewDeletionPreviewQuery(nil, nil, nil).Query(context.Background(), DeletionPreviewMessage{EntityID: uuid.New()}); err == nil {
		t.Fatalf("expected dependency error")
	}

	zero := 0
	invalid := []interface{ Validate() error }{
		GetEntityMessage{Collection: "persons"},
		GetEntityMessage{Collection: "persons", ID: uuid.New(), Rev: &zero},
		GetCollectionMessage{Collection: "persons", Start: -1},
		QuickSearchMessage{},
		GetNamespaceImageMessage{},
		DeletionPreviewMessage{},
	}
	for i, msg := range invalid {
		if err := msg.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestGetEntityQuery_AppliesReadOptions(t *testing.T) {
	factory, _ := newQueryFactory(t)
	ids := seedPersons(t, factory, "Ada", "Charles")

	var seen []string
	q := NewGetEntityQuery(factory).WithReadOptions(func(collection string) []core.ReadOption {
		seen = append(seen, collection)
		return []core.ReadOption{core.WithEntityCustomizer(func(_ context.Context, entity *core.ReadEntity) error {
			entity.Extra = map[string]any{"display": "custom"}
			return nil
		})}
	})
	entity, err := q.Query(context.Background(), GetEntityMessage{Collection: "persons", ID: ids[0]})
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if entity.Extra["display"] != "custom" {
		t.Fatalf("expected customizer to run, got %#v", entity.Extra)
	}
	if len(seen) != 1 || seen[0] != "persons" {
		t.Fatalf("expected read options for persons, got %v", seen)
	}
}
