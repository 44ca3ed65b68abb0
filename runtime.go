package entitygraph

import (
	"context"
	"fmt"
	"time"

	gojob "github.com/goliatone/go-entitygraph/adapters/gojob"
	gologger "github.com/goliatone/go-entitygraph/adapters/gologger"
	egprometheus "github.com/goliatone/go-entitygraph/adapters/prometheus"
	"github.com/goliatone/go-entitygraph/core"
	"github.com/goliatone/go-entitygraph/migrations"
	sqlstore "github.com/goliatone/go-entitygraph/store/sql"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
)

// Runtime is the SQL backed composition: stores, actions factory, facade and
// the optional persistent URL worker.
type Runtime struct {
	Stores  *sqlstore.RepositoryFactory
	Factory *core.ActionsFactory
	Facade  *Facade
	Metrics *egprometheus.Recorder
	// Worker is nil unless a queue was configured.
	Worker *gojob.Worker
	Logger glog.Logger
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	provider   glog.LoggerProvider
	logger     glog.Logger
	registerer prometheus.Registerer
	metrics    bool
	enqueuer   queue.Enqueuer
	dequeuer   queue.Dequeuer
	retry      gojob.RetryPolicy
	cacheTTL   *time.Duration
	hooks      *ExtensionHooks
	factory    []core.Option
	migrate    string
}

func WithRuntimeLogger(provider glog.LoggerProvider, logger glog.Logger) RuntimeOption {
	return func(o *runtimeOptions) {
		o.provider = provider
		o.logger = logger
	}
}

// WithRuntimeMetrics records telemetry into registerer. A nil registerer uses
// the prometheus default registry.
func WithRuntimeMetrics(registerer prometheus.Registerer) RuntimeOption {
	return func(o *runtimeOptions) {
		o.metrics = true
		o.registerer = registerer
	}
}

// WithRuntimeQueue moves persistent URL registration out of the commit path.
// dequeuer may be nil when another process drains the queue.
func WithRuntimeQueue(enqueuer queue.Enqueuer, dequeuer queue.Dequeuer, retry gojob.RetryPolicy) RuntimeOption {
	return func(o *runtimeOptions) {
		o.enqueuer = enqueuer
		o.dequeuer = dequeuer
		o.retry = retry
	}
}

func WithRuntimeNamespaceCacheTTL(ttl time.Duration) RuntimeOption {
	return func(o *runtimeOptions) {
		o.cacheTTL = &ttl
	}
}

func WithRuntimeExtensionHooks(hooks *ExtensionHooks) RuntimeOption {
	return func(o *runtimeOptions) {
		o.hooks = hooks
	}
}

// WithRuntimeMigrations applies the embedded schema for driver before the
// stores are built. The client must be a go-persistence-bun client.
func WithRuntimeMigrations(driver string) RuntimeOption {
	return func(o *runtimeOptions) {
		o.migrate = driver
	}
}

// WithRuntimeFactoryOptions appends options to the actions factory. They run
// after the runtime's own options.
func WithRuntimeFactoryOptions(opts ...core.Option) RuntimeOption {
	return func(o *runtimeOptions) {
		o.factory = append(o.factory, opts...)
	}
}

// NewSQLRuntime builds a runtime over a persistence client or bun db. The
// schema must already be applied unless WithRuntimeMigrations is set.
func NewSQLRuntime(cfg Config, client any, opts ...RuntimeOption) (*Runtime, error) {
	if client == nil {
		return nil, fmt.Errorf("entitygraph: persistence client is required")
	}
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	_, logger := gologger.Resolve("runtime", options.provider, options.logger)

	if options.migrate != "" {
		migrator, ok := client.(migrations.Migrator)
		if !ok {
			return nil, fmt.Errorf("entitygraph: client %T cannot run migrations", client)
		}
		reg, err := Migrate(context.Background(), migrator, options.migrate)
		if err != nil {
			return nil, err
		}
		logger.Info("entitygraph schema migrated", "dialects", reg.Dialects)
	}

	var storeOpts []sqlstore.FactoryOption
	if options.cacheTTL != nil {
		storeOpts = append(storeOpts, sqlstore.WithNamespaceCacheTTL(*options.cacheTTL))
	}
	stores, err := sqlstore.NewRepositoryFactoryFromPersistence(client, storeOpts...)
	if err != nil {
		return nil, err
	}

	factoryOpts := []core.Option{
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(stores),
	}
	if options.logger != nil {
		factoryOpts = append(factoryOpts, core.WithLogger(options.logger))
	}
	if options.provider != nil {
		factoryOpts = append(factoryOpts, core.WithLoggerProvider(options.provider))
	}

	runtime := &Runtime{Stores: stores, Logger: logger}
	if options.metrics {
		runtime.Metrics = egprometheus.NewRecorder(options.registerer)
		factoryOpts = append(factoryOpts, core.WithMetricsRecorder(runtime.Metrics))
	}
	if options.enqueuer != nil {
		workerLogger, _, _ := gologger.ResolveForWorker("worker", options.provider, options.logger)
		factoryOpts = append(factoryOpts, core.WithTaskRunner(gojob.NewQueueTaskRunner(options.enqueuer, nil, workerLogger)))
		if options.dequeuer != nil {
			runtime.Worker = gojob.NewWorker(
				options.dequeuer,
				gojob.NewPersistentURLHandler(stores.RedirectionService()),
				options.retry,
				gojob.NewLoggingHook(workerLogger),
			)
		}
	}
	factoryOpts = append(factoryOpts, options.factory...)

	factory, err := core.NewActionsFactory(cfg, factoryOpts...)
	if err != nil {
		return nil, err
	}
	runtime.Factory = factory

	facade, err := NewFacade(
		factory,
		WithExtensionHooks(options.hooks),
		WithDeletionPreview(stores.QuadStore(), nil, sqlstore.SubjectIRI),
	)
	if err != nil {
		return nil, err
	}
	runtime.Facade = facade

	logger.Info("entitygraph runtime ready", "queued_pids", options.enqueuer != nil, "metrics", options.metrics)
	return runtime, nil
}
