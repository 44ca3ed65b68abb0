package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type factoryBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	persistenceClient any
	repositoryFactory any
	clock             Clock
	permissions       PermissionSource
	redirects         RedirectionService
	urlGenerator      URLGenerator
	storeFactory      DataStoreFactory
	taskRunner        TaskRunner
}

type Option func(*factoryBuilder)

func WithLogger(logger Logger) Option {
	return func(b *factoryBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *factoryBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *factoryBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *factoryBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *factoryBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *factoryBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *factoryBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory accepts a RepositoryStoreFactory or a StoreProvider.
// Explicit With* collaborators win over the ones it provides.
func WithRepositoryFactory(factory any) Option {
	return func(b *factoryBuilder) {
		b.repositoryFactory = factory
	}
}

func WithClock(clock Clock) Option {
	return func(b *factoryBuilder) {
		b.clock = clock
	}
}

func WithPermissionSource(source PermissionSource) Option {
	return func(b *factoryBuilder) {
		b.permissions = source
	}
}

func WithRedirectionService(service RedirectionService) Option {
	return func(b *factoryBuilder) {
		b.redirects = service
	}
}

func WithURLGenerator(generator URLGenerator) Option {
	return func(b *factoryBuilder) {
		b.urlGenerator = generator
	}
}

func WithDataStoreFactory(factory DataStoreFactory) Option {
	return func(b *factoryBuilder) {
		b.storeFactory = factory
	}
}

func WithTaskRunner(runner TaskRunner) Option {
	return func(b *factoryBuilder) {
		b.taskRunner = runner
	}
}

func defaultFactoryBuilder(runtime Config) factoryBuilder {
	loggerProvider, logger := glog.Resolve("entitygraph", nil, nil)
	return factoryBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           SystemClock{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return MapError(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded config < runtime config.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.AdminNamespace) != "" {
		layer["admin_namespace"] = cfg.AdminNamespace
	}
	if includeZero || strings.TrimSpace(cfg.PersistentURLBase) != "" {
		layer["persistent_url_base"] = cfg.PersistentURLBase
	}

	search := map[string]any{}
	if includeZero || cfg.Search.DefaultLimit > 0 {
		search["default_limit"] = cfg.Search.DefaultLimit
	}
	if includeZero || cfg.Search.MaxLimit > 0 {
		search["max_limit"] = cfg.Search.MaxLimit
	}
	if len(search) > 0 {
		layer["search"] = search
	}
	return layer
}
