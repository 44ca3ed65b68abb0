package query

import (
	"context"

	"github.com/goliatone/go-entitygraph/changelog"
	"github.com/goliatone/go-entitygraph/core"
	"github.com/google/uuid"
)

// Reader runs reads inside one storage transaction. *core.ActionsFactory
// implements it.
type Reader interface {
	Run(ctx context.Context, fn func(ctx context.Context, actions *core.Actions) error) (core.TaskReport, error)
}

// ReadOptionsFunc supplies extra read options, such as customizers, for a
// collection.
type ReadOptionsFunc func(collection string) []core.ReadOption

func readOptions(source ReadOptionsFunc, collection string, withoutRelations bool) []core.ReadOption {
	opts := []core.ReadOption{core.WithRelations(!withoutRelations)}
	if source != nil {
		opts = append(opts, source(collection)...)
	}
	return opts
}

type GetEntityQuery struct {
	reader  Reader
	options ReadOptionsFunc
}

func NewGetEntityQuery(reader Reader) *GetEntityQuery {
	return &GetEntityQuery{reader: reader}
}

func (q *GetEntityQuery) WithReadOptions(source ReadOptionsFunc) *GetEntityQuery {
	q.options = source
	return q
}

func (q *GetEntityQuery) Query(ctx context.Context, msg GetEntityMessage) (core.ReadEntity, error) {
	if q == nil || q.reader == nil {
		return core.ReadEntity{}, queryDependencyError("query: entity reader is required")
	}
	var out core.ReadEntity
	_, err := q.reader.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		collection, err := actions.GetCollectionMetadata(ctx, msg.Collection)
		if err != nil {
			return err
		}
		out, err = actions.GetEntity(ctx, collection, msg.ID, msg.Rev, readOptions(q.options, collection.Name, msg.WithoutRelations)...)
		return err
	})
	return out, err
}

type GetCollectionQuery struct {
	reader  Reader
	options ReadOptionsFunc
}

func NewGetCollectionQuery(reader Reader) *GetCollectionQuery {
	return &GetCollectionQuery{reader: reader}
}

func (q *GetCollectionQuery) WithReadOptions(source ReadOptionsFunc) *GetCollectionQuery {
	q.options = source
	return q
}

// Query drains the collection page before the transaction closes.
func (q *GetCollectionQuery) Query(ctx context.Context, msg GetCollectionMessage) ([]core.ReadEntity, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: collection reader is required")
	}
	var out []core.ReadEntity
	_, err := q.reader.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		collection, err := actions.GetCollectionMetadata(ctx, msg.Collection)
		if err != nil {
			return err
		}
		stream, err := actions.GetCollection(ctx, collection, msg.Start, msg.Rows, readOptions(q.options, collection.Name, msg.WithoutRelations)...)
		if err != nil {
			return err
		}
		out, err = core.Collect(ctx, stream)
		return err
	})
	return out, err
}

type QuickSearchQuery struct {
	reader Reader
}

func NewQuickSearchQuery(reader Reader) *QuickSearchQuery {
	return &QuickSearchQuery{reader: reader}
}

func (q *QuickSearchQuery) Query(ctx context.Context, msg QuickSearchMessage) ([]core.QuickSearchResult, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: search reader is required")
	}
	var out []core.QuickSearchResult
	_, err := q.reader.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		collection, err := actions.GetCollectionMetadata(ctx, msg.Collection)
		if err != nil {
			return err
		}
		out, err = actions.QuickSearch(ctx, collection, core.ParseQuickSearch(msg.Query), msg.KeywordType, msg.Limit)
		return err
	})
	return out, err
}

type ListNamespacesQuery struct {
	reader Reader
}

func NewListNamespacesQuery(reader Reader) *ListNamespacesQuery {
	return &ListNamespacesQuery{reader: reader}
}

func (q *ListNamespacesQuery) Query(ctx context.Context, _ ListNamespacesMessage) ([]core.Namespace, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: namespace reader is required")
	}
	var out []core.Namespace
	_, err := q.reader.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		namespaces, err := actions.LoadNamespaces(ctx)
		if err != nil {
			return err
		}
		for _, name := range namespaces.Names() {
			namespace, _ := namespaces.Namespace(name)
			out = append(out, namespace)
		}
		return nil
	})
	return out, err
}

type GetNamespaceImageQuery struct {
	reader Reader
}

func NewGetNamespaceImageQuery(reader Reader) *GetNamespaceImageQuery {
	return &GetNamespaceImageQuery{reader: reader}
}

func (q *GetNamespaceImageQuery) Query(ctx context.Context, msg GetNamespaceImageMessage) (core.NamespaceImage, error) {
	if q == nil || q.reader == nil {
		return core.NamespaceImage{}, queryDependencyError("query: namespace reader is required")
	}
	var out core.NamespaceImage
	_, err := q.reader.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		var err error
		out, err = actions.GetNamespaceImage(ctx, msg.Namespace)
		return err
	})
	return out, err
}

// SubjectFunc maps an entity id to the quad subject it is stored under.
type SubjectFunc func(id uuid.UUID) string

// DeletionPreviewQuery computes the change record deleting an entity would
// produce, from the quads currently stored for it.
type DeletionPreviewQuery struct {
	store    changelog.QuadStore
	resolver changelog.FieldResolver
	subject  SubjectFunc
}

func NewDeletionPreviewQuery(
	store changelog.QuadStore,
	resolver changelog.FieldResolver,
	subject SubjectFunc,
) *DeletionPreviewQuery {
	if subject == nil {
		subject = func(id uuid.UUID) string { return "urn:uuid:" + id.String() }
	}
	return &DeletionPreviewQuery{store: store, resolver: resolver, subject: subject}
}

func (q *DeletionPreviewQuery) Query(ctx context.Context, msg DeletionPreviewMessage) (changelog.ChangeRecord, error) {
	if q == nil || q.store == nil || q.resolver == nil {
		return changelog.ChangeRecord{}, queryDependencyError("query: quad store and field resolver are required")
	}
	return changelog.ComputeChangeRecord(ctx, changelog.NewDeletionChangeLog(q.subject(msg.EntityID)), q.store, q.resolver)
}
