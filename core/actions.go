package core

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Actions orchestrates mutations and reads against one storage transaction.
// It is not safe for concurrent use; build one per unit of work through
// ActionsFactory.
type Actions struct {
	store        DataStore
	permissions  PermissionSource
	stamps       StampFactory
	urlGenerator URLGenerator
	redirects    RedirectionService
	tasks        *AfterSuccessTaskExecutor
	runner       TaskRunner
	config       Config
	telemetry    telemetry

	mu        sync.Mutex
	state     txState
	closeOnce sync.Once
	closeErr  error
}

type ActionsDependencies struct {
	Store        DataStore
	Permissions  PermissionSource
	Clock        Clock
	URLGenerator URLGenerator
	Redirects    RedirectionService
	Tasks        *AfterSuccessTaskExecutor
	Runner       TaskRunner
	Config       Config
	Logger       Logger
	Metrics      MetricsRecorder
}

func NewActions(deps ActionsDependencies) (*Actions, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("core: data store is required")
	}
	if deps.Permissions == nil {
		return nil, fmt.Errorf("core: permission source is required")
	}
	if deps.URLGenerator == nil {
		return nil, fmt.Errorf("core: url generator is required")
	}
	if deps.Redirects == nil {
		return nil, fmt.Errorf("core: redirection service is required")
	}
	tasks := deps.Tasks
	if tasks == nil {
		tasks = NewAfterSuccessTaskExecutor()
	}
	cfg := deps.Config
	if cfg.Search.DefaultLimit <= 0 || cfg.Search.MaxLimit <= 0 {
		cfg.Search = DefaultConfig().Search
	}
	runner := deps.Runner
	if runner == nil {
		runner = NewSequentialTaskRunner(deps.Logger)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return &Actions{
		store:        deps.Store,
		permissions:  deps.Permissions,
		stamps:       NewStampFactory(deps.Clock),
		urlGenerator: deps.URLGenerator,
		redirects:    deps.Redirects,
		tasks:        tasks,
		runner:       runner,
		config:       cfg,
		telemetry:    telemetry{prefix: cfg.ServiceName, logger: deps.Logger, metrics: metrics},
	}, nil
}

func (a *Actions) CreateEntity(
	ctx context.Context,
	collection Collection,
	baseCollection *Collection,
	properties []Property,
	user User,
) (id uuid.UUID, err error) {
	startedAt := time.Now()
	fields := mutationFields(collection, user)
	defer func() { a.telemetry.observeOperation(ctx, startedAt, "create_entity", err, fields) }()

	if err = a.checkWrite(ctx, collection, user); err != nil {
		return uuid.Nil, err
	}
	id = uuid.New()
	in := CreateEntity{
		ID:         id,
		Properties: cloneProperties(properties),
		Created:    a.stamps.Stamp(user),
	}
	if err = a.store.CreateEntity(ctx, collection, baseCollection, in); err != nil {
		return uuid.Nil, err
	}
	fields["entity_id"] = id.String()
	fields["rev"] = 1
	if err = a.enqueuePersistentURL(collection, id, 1); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (a *Actions) ReplaceEntity(ctx context.Context, collection Collection, update UpdateEntity, user User) (err error) {
	startedAt := time.Now()
	fields := mutationFields(collection, user)
	fields["entity_id"] = update.ID.String()
	defer func() { a.telemetry.observeOperation(ctx, startedAt, "replace_entity", err, fields) }()

	if err = a.checkWrite(ctx, collection, user); err != nil {
		return err
	}
	update.Properties = cloneProperties(update.Properties)
	update.Modified = a.stamps.Stamp(user)
	rev, err := a.store.ReplaceEntity(ctx, collection, update)
	if err != nil {
		return err
	}
	fields["rev"] = rev
	return a.enqueuePersistentURL(collection, update.ID, rev)
}

// DeleteEntity tombstones the entity. The redirect for the tombstone revision
// is still registered under the collection it was deleted from.
func (a *Actions) DeleteEntity(ctx context.Context, collection Collection, id uuid.UUID, user User) (err error) {
	startedAt := time.Now()
	fields := mutationFields(collection, user)
	fields["entity_id"] = id.String()
	defer func() { a.telemetry.observeOperation(ctx, startedAt, "delete_entity", err, fields) }()

	if err = a.checkWrite(ctx, collection, user); err != nil {
		return err
	}
	rev, err := a.store.DeleteEntity(ctx, collection, id, a.stamps.Stamp(user))
	if err != nil {
		return err
	}
	fields["rev"] = rev
	return a.enqueuePersistentURL(collection, id, rev)
}

func (a *Actions) CreateRelation(ctx context.Context, collection Collection, relation CreateRelation, user User) (id uuid.UUID, err error) {
	startedAt := time.Now()
	fields := mutationFields(collection, user)
	defer func() { a.telemetry.observeOperation(ctx, startedAt, "create_relation", err, fields) }()

	if err = a.checkWrite(ctx, collection, user); err != nil {
		return uuid.Nil, err
	}
	relation.Created = a.stamps.Stamp(user)
	id, err = a.store.AcceptRelation(ctx, collection, relation)
	if err != nil {
		if IsRelationNotPossible(err) {
			return uuid.Nil, IOError(err, "core: relation could not be created")
		}
		return uuid.Nil, err
	}
	fields["relation_id"] = id.String()
	return id, nil
}

func (a *Actions) ReplaceRelation(ctx context.Context, collection Collection, relation UpdateRelation, user User) (err error) {
	startedAt := time.Now()
	fields := mutationFields(collection, user)
	fields["relation_id"] = relation.ID.String()
	defer func() { a.telemetry.observeOperation(ctx, startedAt, "replace_relation", err, fields) }()

	if err = a.checkWrite(ctx, collection, user); err != nil {
		return err
	}
	relation.Modified = a.stamps.Stamp(user)
	return a.store.ReplaceRelation(ctx, collection, relation)
}

type ReadOptions struct {
	WithRelations      bool
	EntityCustomizer   EntityCustomizer
	RelationCustomizer RelationCustomizer
}

type ReadOption func(*ReadOptions)

func WithEntityCustomizer(customizer EntityCustomizer) ReadOption {
	return func(o *ReadOptions) {
		o.EntityCustomizer = customizer
	}
}

func WithRelationCustomizer(customizer RelationCustomizer) ReadOption {
	return func(o *ReadOptions) {
		o.RelationCustomizer = customizer
	}
}

func WithRelations(include bool) ReadOption {
	return func(o *ReadOptions) {
		o.WithRelations = include
	}
}

func resolveReadOptions(defaults ReadOptions, opts []ReadOption) ReadOptions {
	out := defaults
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// GetEntity reads the latest revision, or rev when given. Relations are
// included unless WithRelations(false) is passed.
func (a *Actions) GetEntity(ctx context.Context, collection Collection, id uuid.UUID, rev *int, opts ...ReadOption) (ReadEntity, error) {
	if err := a.ensureOpen(); err != nil {
		return ReadEntity{}, err
	}
	options := resolveReadOptions(ReadOptions{WithRelations: true}, opts)
	entity, err := a.store.GetEntity(ctx, collection, id, rev, options.WithRelations)
	if err != nil {
		return ReadEntity{}, err
	}
	if err := customize(ctx, &entity, options); err != nil {
		return ReadEntity{}, err
	}
	return entity, nil
}

// GetCollection streams rows entities starting at start. The stream must be
// closed by the caller.
func (a *Actions) GetCollection(ctx context.Context, collection Collection, start int, rows int, opts ...ReadOption) (DataStream[ReadEntity], error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	if start < 0 || rows < 0 {
		return nil, BadInputError("core: start and rows must be >= 0")
	}
	options := resolveReadOptions(ReadOptions{}, opts)
	stream, err := a.store.GetCollection(ctx, collection, start, rows, options.WithRelations)
	if err != nil {
		return nil, err
	}
	if options.EntityCustomizer == nil && options.RelationCustomizer == nil {
		return stream, nil
	}
	return &customizedStream{inner: stream, options: options}, nil
}

func (a *Actions) QuickSearch(
	ctx context.Context,
	collection Collection,
	query QuickSearch,
	keywordType string,
	limit int,
) ([]QuickSearchResult, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}
	limit = a.config.SearchLimit(limit)
	if collection.IsKeywordCollection() {
		return a.store.KeywordQuickSearch(ctx, collection, strings.TrimSpace(keywordType), query, limit)
	}
	return a.store.QuickSearch(ctx, collection, query, limit)
}

// AddPID attaches a persistent identifier to the revision lookup points at.
func (a *Actions) AddPID(ctx context.Context, pid *url.URL, lookup EntityLookup) (err error) {
	startedAt := time.Now()
	fields := map[string]any{"collection": lookup.Collection, "entity_id": lookup.TimID.String(), "rev": lookup.Rev}
	defer func() { a.telemetry.observeOperation(ctx, startedAt, "add_pid", err, fields) }()

	if err = a.ensureOpen(); err != nil {
		return err
	}
	if pid == nil {
		return BadInputError("core: pid uri is required")
	}
	if err = lookup.Validate(); err != nil {
		return BadInputError("%s", err.Error())
	}
	return a.store.AddPID(ctx, lookup.TimID, lookup.Rev, pid)
}

func (a *Actions) LoadNamespaces(ctx context.Context) (Namespaces, error) {
	if err := a.ensureOpen(); err != nil {
		return Namespaces{}, err
	}
	return a.store.LoadNamespaces(ctx)
}

func (a *Actions) GetCollectionMetadata(ctx context.Context, name string) (Collection, error) {
	namespaces, err := a.LoadNamespaces(ctx)
	if err != nil {
		return Collection{}, err
	}
	collection, ok := namespaces.Collection(name)
	if !ok {
		return Collection{}, InvalidCollectionError(name)
	}
	return collection, nil
}

func (a *Actions) GetNamespace(ctx context.Context, name string) (Namespace, error) {
	namespaces, err := a.LoadNamespaces(ctx)
	if err != nil {
		return Namespace{}, err
	}
	namespace, ok := namespaces.Namespace(name)
	if !ok {
		return Namespace{}, NotFoundError("namespace %q not found", name)
	}
	return namespace, nil
}

func (a *Actions) GetNamespaceImage(ctx context.Context, name string) (NamespaceImage, error) {
	if err := a.ensureOpen(); err != nil {
		return NamespaceImage{}, err
	}
	return a.store.GetNamespaceImage(ctx, name)
}

func (a *Actions) checkWrite(ctx context.Context, collection Collection, user User) error {
	return a.checkCapability(ctx, collection.NamespaceName, user, CapabilityWrite)
}

func (a *Actions) checkCapability(ctx context.Context, namespace string, user User, required Capability) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	if strings.TrimSpace(user.ID) == "" {
		return PermissionDeniedError(user, namespace, required)
	}
	granted, err := a.permissions.GrantedCapabilities(ctx, user, namespace)
	if err != nil {
		return err
	}
	if !slices.Contains(granted, required) {
		return PermissionDeniedError(user, namespace, required)
	}
	return nil
}

func (a *Actions) enqueuePersistentURL(collection Collection, id uuid.UUID, rev int) error {
	lookup := EntityLookup{Collection: collection.Name, TimID: id, Rev: rev}
	return a.tasks.AddTask(NewAddPersistentURLTask(a.redirects, a.urlGenerator(collection.Name, id, rev), lookup))
}

// PendingTasks returns the tasks that will run if the transaction succeeds.
func (a *Actions) PendingTasks() []Task {
	return a.tasks.Pending()
}

func mutationFields(collection Collection, user User) map[string]any {
	return map[string]any{
		"collection": collection.Name,
		"namespace":  collection.NamespaceName,
		"user_id":    user.ID,
	}
}

func cloneProperties(properties []Property) []Property {
	if len(properties) == 0 {
		return nil
	}
	return append([]Property(nil), properties...)
}

func customize(ctx context.Context, entity *ReadEntity, options ReadOptions) error {
	if options.RelationCustomizer != nil {
		for i := range entity.Relations {
			if err := options.RelationCustomizer(ctx, &entity.Relations[i]); err != nil {
				return err
			}
		}
	}
	if options.EntityCustomizer != nil {
		if err := options.EntityCustomizer(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

type customizedStream struct {
	inner   DataStream[ReadEntity]
	options ReadOptions
	current ReadEntity
	err     error
}

func (s *customizedStream) Next(ctx context.Context) bool {
	if s.err != nil || !s.inner.Next(ctx) {
		return false
	}
	entity := s.inner.Value()
	if err := customize(ctx, &entity, s.options); err != nil {
		s.err = err
		return false
	}
	s.current = entity
	return true
}

func (s *customizedStream) Value() ReadEntity {
	return s.current
}

func (s *customizedStream) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.inner.Err()
}

func (s *customizedStream) Close() error {
	return s.inner.Close()
}
