package entitygraph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-entitygraph/core"
)

// CustomizerPack decorates reads of one collection, or of every collection
// when Collection is empty.
type CustomizerPack struct {
	Name       string
	Collection string
	Entity     core.EntityCustomizer
	Relation   core.RelationCustomizer
}

// BundleFactory builds a downstream command/query bundle over the factory.
type BundleFactory func(factory *core.ActionsFactory) (any, error)

// ExtensionHooks lets downstream code attach read customizers and extra
// command/query bundles before the facade is built.
type ExtensionHooks struct {
	mu sync.RWMutex

	customizers map[string]CustomizerPack
	bundles     map[string]BundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		customizers: map[string]CustomizerPack{},
		bundles:     map[string]BundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterCustomizerPack(pack CustomizerPack) error {
	if h == nil {
		return fmt.Errorf("entitygraph: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("entitygraph: customizer pack name is required")
	}
	if pack.Entity == nil && pack.Relation == nil {
		return fmt.Errorf("entitygraph: customizer pack %q has no customizers", name)
	}
	pack.Name = name
	pack.Collection = strings.TrimSpace(pack.Collection)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.customizers[name]; exists {
		return fmt.Errorf("entitygraph: customizer pack %q already registered", name)
	}
	h.customizers[name] = pack
	return nil
}

func (h *ExtensionHooks) RegisterBundle(name string, factory BundleFactory) error {
	if h == nil {
		return fmt.Errorf("entitygraph: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("entitygraph: bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("entitygraph: bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("entitygraph: bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ReadOptions chains every pack matching collection in pack name order.
// Collection-wide packs run before collection specific ones.
func (h *ExtensionHooks) ReadOptions(collection string) []core.ReadOption {
	packs := h.packsFor(strings.TrimSpace(collection))
	if len(packs) == 0 {
		return nil
	}
	var (
		entities  []core.EntityCustomizer
		relations []core.RelationCustomizer
	)
	for _, pack := range packs {
		if pack.Entity != nil {
			entities = append(entities, pack.Entity)
		}
		if pack.Relation != nil {
			relations = append(relations, pack.Relation)
		}
	}
	var opts []core.ReadOption
	if len(entities) > 0 {
		opts = append(opts, core.WithEntityCustomizer(func(ctx context.Context, entity *core.ReadEntity) error {
			for _, customize := range entities {
				if err := customize(ctx, entity); err != nil {
					return err
				}
			}
			return nil
		}))
	}
	if len(relations) > 0 {
		opts = append(opts, core.WithRelationCustomizer(func(ctx context.Context, relation *core.RelationRef) error {
			for _, customize := range relations {
				if err := customize(ctx, relation); err != nil {
					return err
				}
			}
			return nil
		}))
	}
	return opts
}

func (h *ExtensionHooks) packsFor(collection string) []CustomizerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	var global, specific []CustomizerPack
	for _, pack := range h.customizers {
		switch pack.Collection {
		case "":
			global = append(global, pack)
		case collection:
			specific = append(specific, pack)
		}
	}
	byName := func(packs []CustomizerPack) {
		sort.Slice(packs, func(i, j int) bool { return packs[i].Name < packs[j].Name })
	}
	byName(global)
	byName(specific)
	return append(global, specific...)
}

func (h *ExtensionHooks) BuildBundles(factory *core.ActionsFactory) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("entitygraph: actions factory is required")
	}

	names := h.BundleNames()
	h.mu.RLock()
	factories := make(map[string]BundleFactory, len(h.bundles))
	for name, build := range h.bundles {
		factories[name] = build
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](factory)
		if err != nil {
			return nil, fmt.Errorf("entitygraph: build bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
