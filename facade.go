package entitygraph

import (
	"fmt"

	"github.com/goliatone/go-entitygraph/changelog"
	egcommand "github.com/goliatone/go-entitygraph/command"
	"github.com/goliatone/go-entitygraph/core"
	egquery "github.com/goliatone/go-entitygraph/query"
)

type Commands struct {
	CreateEntity    *egcommand.CreateEntityCommand
	ReplaceEntity   *egcommand.ReplaceEntityCommand
	DeleteEntity    *egcommand.DeleteEntityCommand
	CreateRelation  *egcommand.CreateRelationCommand
	ReplaceRelation *egcommand.ReplaceRelationCommand
	AddPID          *egcommand.AddPIDCommand
	AddTypeToEntity *egcommand.AddTypeToEntityCommand
	MoveEdges       *egcommand.MoveEdgesCommand
}

type Queries struct {
	GetEntity         *egquery.GetEntityQuery
	GetCollection     *egquery.GetCollectionQuery
	QuickSearch       *egquery.QuickSearchQuery
	ListNamespaces    *egquery.ListNamespacesQuery
	GetNamespaceImage *egquery.GetNamespaceImageQuery
	// DeletionPreview is nil unless a quad store was supplied.
	DeletionPreview *egquery.DeletionPreviewQuery
}

type Facade struct {
	factory  *core.ActionsFactory
	hooks    *ExtensionHooks
	commands Commands
	queries  Queries
	bundles  map[string]any
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	hooks    *ExtensionHooks
	quads    changelog.QuadStore
	resolver changelog.FieldResolver
	subject  egquery.SubjectFunc
}

func WithExtensionHooks(hooks *ExtensionHooks) FacadeOption {
	return func(options *facadeOptions) {
		options.hooks = hooks
	}
}

// WithDeletionPreview enables the deletion preview query. A nil resolver
// falls back to the default vocabulary prefixes.
func WithDeletionPreview(store changelog.QuadStore, resolver changelog.FieldResolver, subject egquery.SubjectFunc) FacadeOption {
	return func(options *facadeOptions) {
		options.quads = store
		options.resolver = resolver
		options.subject = subject
	}
}

func NewFacade(factory *core.ActionsFactory, opts ...FacadeOption) (*Facade, error) {
	if factory == nil {
		return nil, fmt.Errorf("entitygraph: actions factory is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{factory: factory, hooks: cfg.hooks}
	facade.commands = Commands{
		CreateEntity:    egcommand.NewCreateEntityCommand(factory),
		ReplaceEntity:   egcommand.NewReplaceEntityCommand(factory),
		DeleteEntity:    egcommand.NewDeleteEntityCommand(factory),
		CreateRelation:  egcommand.NewCreateRelationCommand(factory),
		ReplaceRelation: egcommand.NewReplaceRelationCommand(factory),
		AddPID:          egcommand.NewAddPIDCommand(factory),
		AddTypeToEntity: egcommand.NewAddTypeToEntityCommand(factory),
		MoveEdges:       egcommand.NewMoveEdgesCommand(factory),
	}

	getEntity := egquery.NewGetEntityQuery(factory)
	getCollection := egquery.NewGetCollectionQuery(factory)
	if cfg.hooks != nil {
		getEntity = getEntity.WithReadOptions(cfg.hooks.ReadOptions)
		getCollection = getCollection.WithReadOptions(cfg.hooks.ReadOptions)
	}
	facade.queries = Queries{
		GetEntity:         getEntity,
		GetCollection:     getCollection,
		QuickSearch:       egquery.NewQuickSearchQuery(factory),
		ListNamespaces:    egquery.NewListNamespacesQuery(factory),
		GetNamespaceImage: egquery.NewGetNamespaceImageQuery(factory),
	}
	if cfg.quads != nil {
		resolver := cfg.resolver
		if resolver == nil {
			resolver = changelog.NewTypeNameStore(changelog.DefaultPrefixes())
		}
		facade.queries.DeletionPreview = egquery.NewDeletionPreviewQuery(cfg.quads, resolver, cfg.subject)
	}

	bundles, err := cfg.hooks.BuildBundles(factory)
	if err != nil {
		return nil, err
	}
	facade.bundles = bundles

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Factory() *core.ActionsFactory {
	if f == nil {
		return nil
	}
	return f.factory
}

// Bundle returns a downstream bundle built from the extension hooks.
func (f *Facade) Bundle(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	bundle, ok := f.bundles[name]
	return bundle, ok
}
