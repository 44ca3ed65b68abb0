package core

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Clock interface {
	Now() time.Time
}

// PermissionSource answers which capabilities a user holds on a namespace.
type PermissionSource interface {
	GrantedCapabilities(ctx context.Context, user User, namespace string) ([]Capability, error)
}

type RedirectionService interface {
	Add(ctx context.Context, uri *url.URL, lookup EntityLookup) error
}

// URLGenerator builds the persistent URL a revision is published under.
type URLGenerator func(collection string, id uuid.UUID, rev int) *url.URL

type EntityCustomizer func(ctx context.Context, entity *ReadEntity) error

type RelationCustomizer func(ctx context.Context, relation *RelationRef) error

// DataStream is a lazy, finite and non-restartable sequence.
type DataStream[T any] interface {
	Next(ctx context.Context) bool
	Value() T
	Err() error
	Close() error
}

// DataStore is one storage transaction. Revision numbers are assigned by the
// store: CreateEntity writes rev 1, ReplaceEntity and DeleteEntity return the
// revision they wrote.
type DataStore interface {
	CreateEntity(ctx context.Context, collection Collection, baseCollection *Collection, in CreateEntity) error
	ReplaceEntity(ctx context.Context, collection Collection, in UpdateEntity) (int, error)
	DeleteEntity(ctx context.Context, collection Collection, id uuid.UUID, modified ChangeStamp) (int, error)
	AcceptRelation(ctx context.Context, collection Collection, in CreateRelation) (uuid.UUID, error)
	ReplaceRelation(ctx context.Context, collection Collection, in UpdateRelation) error

	GetEntity(ctx context.Context, collection Collection, id uuid.UUID, rev *int, withRelations bool) (ReadEntity, error)
	GetCollection(ctx context.Context, collection Collection, start int, rows int, withRelations bool) (DataStream[ReadEntity], error)
	QuickSearch(ctx context.Context, collection Collection, query QuickSearch, limit int) ([]QuickSearchResult, error)
	KeywordQuickSearch(ctx context.Context, collection Collection, keywordType string, query QuickSearch, limit int) ([]QuickSearchResult, error)
	AddPID(ctx context.Context, id uuid.UUID, rev int, pid *url.URL) error

	LoadNamespaces(ctx context.Context) (Namespaces, error)
	GetNamespaceImage(ctx context.Context, name string) (NamespaceImage, error)

	Success(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
}

// AdminDataStore exposes raw graph maintenance. Only AdminActions reaches it.
type AdminDataStore interface {
	AddTypeToEntity(ctx context.Context, id uuid.UUID, typeToAdd Collection) error
	MoveEdges(ctx context.Context, from uuid.UUID, to uuid.UUID) (int, error)
}

type DataStoreFactory interface {
	Open(ctx context.Context) (DataStore, error)
}

type DataStoreFactoryFunc func(ctx context.Context) (DataStore, error)

func (f DataStoreFactoryFunc) Open(ctx context.Context) (DataStore, error) {
	return f(ctx)
}

// TaskRunner drains a committed transaction's tasks. Implementations must
// preserve enqueue order.
type TaskRunner interface {
	Run(ctx context.Context, tasks []Task) TaskReport
}

type StoreProvider interface {
	DataStoreFactory() DataStoreFactory
	PermissionSource() PermissionSource
	RedirectionService() RedirectionService
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}
