package entitygraph

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/goliatone/go-entitygraph/core"
)

func TestExtensionHooks_RegisterCustomizerPack(t *testing.T) {
	hooks := NewExtensionHooks()
	pack := CustomizerPack{
		Name:   "labels",
		Entity: func(context.Context, *core.ReadEntity) error { return nil },
	}
	if err := hooks.RegisterCustomizerPack(pack); err != nil {
		t.Fatalf("register customizer pack: %v", err)
	}
	if err := hooks.RegisterCustomizerPack(pack); err == nil {
		t.Fatalf("expected duplicate customizer pack registration error")
	}
	if err := hooks.RegisterCustomizerPack(CustomizerPack{Name: " "}); err == nil {
		t.Fatalf("expected missing name error")
	}
	if err := hooks.RegisterCustomizerPack(CustomizerPack{Name: "empty"}); err == nil {
		t.Fatalf("expected pack without customizers to be rejected")
	}
}

func TestExtensionHooks_ReadOptionsComposeInOrder(t *testing.T) {
	hooks := NewExtensionHooks()
	var calls []string
	entity := func(name string) core.EntityCustomizer {
		return func(context.Context, *core.ReadEntity) error {
			calls = append(calls, name)
			return nil
		}
	}
	for _, pack := range []CustomizerPack{
		{Name: "b_persons", Collection: "persons", Entity: entity("b_persons")},
		{Name: "a_persons", Collection: "persons", Entity: entity("a_persons")},
		{Name: "z_global", Entity: entity("z_global")},
		{Name: "places", Collection: "places", Entity: entity("places")},
	} {
		if err := hooks.RegisterCustomizerPack(pack); err != nil {
			t.Fatalf("register %s: %v", pack.Name, err)
		}
	}

	opts := hooks.ReadOptions("persons")
	if len(opts) != 1 {
		t.Fatalf("expected one entity read option, got %d", len(opts))
	}
	var resolved core.ReadOptions
	for _, opt := range opts {
		opt(&resolved)
	}
	if resolved.RelationCustomizer != nil {
		t.Fatalf("expected no relation customizer")
	}
	if err := resolved.EntityCustomizer(context.Background(), &core.ReadEntity{}); err != nil {
		t.Fatalf("customize: %v", err)
	}
	want := []string{"z_global", "a_persons", "b_persons"}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}

	if opts := hooks.ReadOptions("documents"); len(opts) != 1 {
		t.Fatalf("expected global pack to apply to other collections, got %d options", len(opts))
	}
	var nilHooks *ExtensionHooks
	if opts := nilHooks.ReadOptions("persons"); opts != nil {
		t.Fatalf("expected nil hooks to contribute nothing")
	}
}

func TestExtensionHooks_ReadOptionsStopOnError(t *testing.T) {
	hooks := NewExtensionHooks()
	boom := errors.New("boom")
	reached := false
	_ = hooks.RegisterCustomizerPack(CustomizerPack{
		Name:     "a",
		Relation: func(context.Context, *core.RelationRef) error { return boom },
	})
	_ = hooks.RegisterCustomizerPack(CustomizerPack{
		Name: "b",
		Relation: func(context.Context, *core.RelationRef) error {
			reached = true
			return nil
		},
	})

	var resolved core.ReadOptions
	for _, opt := range hooks.ReadOptions("persons") {
		opt(&resolved)
	}
	if err := resolved.RelationCustomizer(context.Background(), &core.RelationRef{}); !errors.Is(err, boom) {
		t.Fatalf("expected first customizer error, got %v", err)
	}
	if reached {
		t.Fatalf("expected chain to stop at first error")
	}
}

func TestExtensionHooks_BuildBundles(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterBundle("b", func(*core.ActionsFactory) (any, error) { return "bundle-b", nil }); err != nil {
		t.Fatalf("register bundle b: %v", err)
	}
	if err := hooks.RegisterBundle("a", func(*core.ActionsFactory) (any, error) { return "bundle-a", nil }); err != nil {
		t.Fatalf("register bundle a: %v", err)
	}
	if err := hooks.RegisterBundle("a", func(*core.ActionsFactory) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate bundle registration error")
	}
	if err := hooks.RegisterBundle("nil", nil); err == nil {
		t.Fatalf("expected nil bundle factory error")
	}
	if names := hooks.BundleNames(); !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Fatalf("expected sorted bundle names, got %v", names)
	}

	if _, err := hooks.BuildBundles(nil); err == nil {
		t.Fatalf("expected missing factory error")
	}
	factory, err := core.NewActionsFactory(core.Config{PersistentURLBase: "https://data.example.org"}, core.WithRepositoryFactory(core.NewMemoryStores()))
	if err != nil {
		t.Fatalf("new actions factory: %v", err)
	}
	bundles, err := hooks.BuildBundles(factory)
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if bundles["a"] != "bundle-a" || bundles["b"] != "bundle-b" {
		t.Fatalf("unexpected bundles %#v", bundles)
	}

	failing := NewExtensionHooks()
	_ = failing.RegisterBundle("broken", func(*core.ActionsFactory) (any, error) { return nil, errors.New("nope") })
	if _, err := failing.BuildBundles(factory); err == nil {
		t.Fatalf("expected bundle build error")
	}
}
