package core

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// ActionsFactory builds one Actions per storage transaction. It is safe for
// concurrent use.
type ActionsFactory struct {
	config         Config
	logger         Logger
	loggerProvider LoggerProvider
	metrics        MetricsRecorder
	errorMapper    ErrorMapper
	clock          Clock
	permissions    PermissionSource
	redirects      RedirectionService
	urlGenerator   URLGenerator
	storeFactory   DataStoreFactory
	taskRunner     TaskRunner
}

type FactoryDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorMapper      ErrorMapper
	Clock            Clock
	PermissionSource PermissionSource
	Redirects        RedirectionService
	URLGenerator     URLGenerator
	DataStoreFactory DataStoreFactory
	TaskRunner       TaskRunner
}

func NewActionsFactory(cfg Config, opts ...Option) (*ActionsFactory, error) {
	builder := defaultFactoryBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("entitygraph", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("entitygraph"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = SystemClock{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil {
		stores, buildErr := resolveStoreProvider(builder.repositoryFactory, builder.persistenceClient)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		if stores != nil {
			if builder.storeFactory == nil {
				builder.storeFactory = stores.DataStoreFactory()
			}
			if builder.permissions == nil {
				builder.permissions = stores.PermissionSource()
			}
			if builder.redirects == nil {
				builder.redirects = stores.RedirectionService()
			}
		}
	}

	if builder.urlGenerator == nil && strings.TrimSpace(finalConfig.PersistentURLBase) != "" {
		generator, genErr := NewTemplateURLGenerator(finalConfig.PersistentURLBase)
		if genErr != nil {
			return nil, mapBuildError(builder.errorMapper, genErr)
		}
		builder.urlGenerator = generator
	}
	if builder.taskRunner == nil {
		builder.taskRunner = NewSequentialTaskRunner(logger)
	}

	switch {
	case builder.storeFactory == nil:
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: data store factory is required"))
	case builder.permissions == nil:
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: permission source is required"))
	case builder.redirects == nil:
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: redirection service is required"))
	case builder.urlGenerator == nil:
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: url generator or persistent_url_base is required"))
	}

	return &ActionsFactory{
		config:         finalConfig,
		logger:         logger,
		loggerProvider: provider,
		metrics:        builder.metricsRecorder,
		errorMapper:    builder.errorMapper,
		clock:          builder.clock,
		permissions:    builder.permissions,
		redirects:      builder.redirects,
		urlGenerator:   builder.urlGenerator,
		storeFactory:   builder.storeFactory,
		taskRunner:     builder.taskRunner,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*ActionsFactory, error) {
	return NewActionsFactory(cfg, opts...)
}

func resolveStoreProvider(factory any, persistenceClient any) (StoreProvider, error) {
	switch typed := factory.(type) {
	case RepositoryStoreFactory:
		return typed.BuildStores(persistenceClient)
	case StoreProvider:
		return typed, nil
	default:
		return nil, fmt.Errorf("core: unsupported repository factory type %T", factory)
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (f *ActionsFactory) Config() Config {
	if f == nil {
		return Config{}
	}
	return f.config
}

func (f *ActionsFactory) Dependencies() FactoryDependencies {
	if f == nil {
		return FactoryDependencies{}
	}
	return FactoryDependencies{
		Logger:           f.logger,
		LoggerProvider:   f.loggerProvider,
		MetricsRecorder:  f.metrics,
		ErrorMapper:      f.errorMapper,
		Clock:            f.clock,
		PermissionSource: f.permissions,
		Redirects:        f.redirects,
		URLGenerator:     f.urlGenerator,
		DataStoreFactory: f.storeFactory,
		TaskRunner:       f.taskRunner,
	}
}

// Begin opens a storage transaction and returns the Actions bound to it. The
// caller must call Close, normally deferred right after Begin.
func (f *ActionsFactory) Begin(ctx context.Context) (*Actions, error) {
	if f == nil {
		return nil, fmt.Errorf("core: actions factory is nil")
	}
	store, err := f.storeFactory.Open(ctx)
	if err != nil {
		return nil, mapBuildError(f.errorMapper, err)
	}
	actions, err := NewActions(ActionsDependencies{
		Store:        store,
		Permissions:  f.permissions,
		Clock:        f.clock,
		URLGenerator: f.urlGenerator,
		Redirects:    f.redirects,
		Runner:       f.taskRunner,
		Config:       f.config,
		Logger:       f.logger,
		Metrics:      f.metrics,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return actions, nil
}

// Run executes fn inside one transaction. The transaction commits only when
// fn returns nil; any error or panic rolls it back and drops queued tasks.
func (f *ActionsFactory) Run(ctx context.Context, fn func(ctx context.Context, actions *Actions) error) (TaskReport, error) {
	if fn == nil {
		return TaskReport{}, fmt.Errorf("core: run function is required")
	}
	actions, err := f.Begin(ctx)
	if err != nil {
		return TaskReport{}, err
	}
	defer f.closeActions(ctx, actions)

	if err := fn(ctx, actions); err != nil {
		return TaskReport{}, mapBuildError(f.errorMapper, err)
	}
	report, err := actions.Success(ctx)
	if err != nil {
		return report, mapBuildError(f.errorMapper, err)
	}
	return report, nil
}

func (f *ActionsFactory) closeActions(ctx context.Context, actions *Actions) {
	if err := actions.Close(ctx); err != nil {
		telemetry{logger: f.logger}.logWithLevel(ctx, "error", "close transaction failed", map[string]any{
			"error": err.Error(),
		})
	}
}
