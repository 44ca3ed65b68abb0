package entitygraph

import (
	"github.com/goliatone/go-entitygraph/changelog"
	"github.com/goliatone/go-entitygraph/core"
)

type Config = core.Config
type SearchConfig = core.SearchConfig

type Option = core.Option

type ActionsFactory = core.ActionsFactory
type Actions = core.Actions
type AdminActions = core.AdminActions
type FactoryDependencies = core.FactoryDependencies

type User = core.User
type Capability = core.Capability
type ChangeStamp = core.ChangeStamp
type Collection = core.Collection
type Namespace = core.Namespace
type Namespaces = core.Namespaces
type NamespaceImage = core.NamespaceImage
type Property = core.Property
type UpdateEntity = core.UpdateEntity
type CreateRelation = core.CreateRelation
type UpdateRelation = core.UpdateRelation
type RelationRef = core.RelationRef
type ReadEntity = core.ReadEntity
type EntityLookup = core.EntityLookup
type QuickSearch = core.QuickSearch
type QuickSearchResult = core.QuickSearchResult

type ReadOption = core.ReadOption
type EntityCustomizer = core.EntityCustomizer
type RelationCustomizer = core.RelationCustomizer

type Task = core.Task
type TaskReport = core.TaskReport
type TaskRunner = core.TaskRunner

type DataStore = core.DataStore
type DataStoreFactory = core.DataStoreFactory
type PermissionSource = core.PermissionSource
type RedirectionService = core.RedirectionService
type URLGenerator = core.URLGenerator
type MetricsRecorder = core.MetricsRecorder
type Clock = core.Clock

type ChangeRecord = changelog.ChangeRecord
type Change = changelog.Change
type Quad = changelog.Quad

const (
	CapabilityRead  = core.CapabilityRead
	CapabilityWrite = core.CapabilityWrite
	CapabilityAdmin = core.CapabilityAdmin
)

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithPersistenceClient  = core.WithPersistenceClient
	WithRepositoryFactory  = core.WithRepositoryFactory
	WithClock              = core.WithClock
	WithPermissionSource   = core.WithPermissionSource
	WithRedirectionService = core.WithRedirectionService
	WithURLGenerator       = core.WithURLGenerator
	WithDataStoreFactory   = core.WithDataStoreFactory
	WithTaskRunner         = core.WithTaskRunner

	WithRelations          = core.WithRelations
	WithEntityCustomizer   = core.WithEntityCustomizer
	WithRelationCustomizer = core.WithRelationCustomizer
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Setup builds an ActionsFactory. It is the usual entry point for callers
// that bring their own collaborators.
func Setup(cfg Config, opts ...Option) (*ActionsFactory, error) {
	return core.Setup(cfg, opts...)
}
