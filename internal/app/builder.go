package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/stacklok/thv-confd/internal/api"
	"github.com/stacklok/thv-confd/internal/command"
	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/registry"
	"github.com/stacklok/thv-confd/internal/render"
	"github.com/stacklok/thv-confd/internal/sources"
	"github.com/stacklok/thv-confd/internal/status"
	pkgsync "github.com/stacklok/thv-confd/internal/sync"
	"github.com/stacklok/thv-confd/internal/sync/coordinator"
	"github.com/stacklok/thv-confd/internal/sync/writer"
	"github.com/stacklok/thv-confd/internal/telemetry"
	"github.com/stacklok/thv-confd/internal/watch"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// ConfdAppOptions is a function that configures the confd app builder
type ConfdAppOptions func(*confdAppConfig) error

// confdAppConfig supports dependency injection for testing while providing
// production defaults
type confdAppConfig struct {
	config *config.Config

	// Optional component overrides
	sourceFactory sources.Factory
	fs            afero.Fs
	runner        command.Runner
	telemetry     *telemetry.Telemetry

	// Status server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...ConfdAppOptions) (*confdAppConfig, error) {
	cfg := &confdAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.fs == nil {
		cfg.fs = afero.NewOsFs()
	}
	if cfg.runner == nil {
		cfg.runner = command.NewRunner()
	}
	if cfg.address == "" {
		if err := WithStatusAddress(cfg.config.GetStatusAddress())(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) ConfdAppOptions {
	return func(cfg *confdAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithSourceFactory allows injecting a custom source factory (for testing)
func WithSourceFactory(f sources.Factory) ConfdAppOptions {
	return func(cfg *confdAppConfig) error {
		cfg.sourceFactory = f
		return nil
	}
}

// WithFs sets the filesystem templates, schemas and data files are read from and
// destinations are written to
func WithFs(fs afero.Fs) ConfdAppOptions {
	return func(cfg *confdAppConfig) error {
		cfg.fs = fs
		return nil
	}
}

// WithRunner sets the runner for check, reload and command source commands
func WithRunner(r command.Runner) ConfdAppOptions {
	return func(cfg *confdAppConfig) error {
		cfg.runner = r
		return nil
	}
}

// WithTelemetry sets already initialized telemetry. The app does not shut it down.
func WithTelemetry(t *telemetry.Telemetry) ConfdAppOptions {
	return func(cfg *confdAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithStatusAddress sets the status server address
func WithStatusAddress(addr string) ConfdAppOptions {
	return func(cfg *confdAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares adds HTTP middlewares to the status server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ConfdAppOptions {
	return func(cfg *confdAppConfig) error {
		cfg.middlewares = append(cfg.middlewares, mw...)
		return nil
	}
}

// NewConfdApp builds every component of the daemon from its configuration
func NewConfdApp(ctx context.Context, opts ...ConfdAppOptions) (*ConfdApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	ownsTelemetry := false
	if cfg.telemetry == nil {
		cfg.telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.config.Telemetry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		ownsTelemetry = true
	}

	reg, err := BuildRegistry(cfg.config,
		WithFactoryOverride(cfg.sourceFactory),
		WithRegistryFs(cfg.fs),
		WithRegistryRunner(cfg.runner),
	)
	if err != nil {
		if ownsTelemetry {
			_ = cfg.telemetry.Shutdown(ctx)
		}
		return nil, err
	}

	components, err := buildSyncComponents(cfg, reg)
	if err != nil {
		_ = reg.Close()
		if ownsTelemetry {
			_ = cfg.telemetry.Shutdown(ctx)
		}
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	var httpServer *http.Server
	if cfg.config.StatusEnabled() {
		httpServer, err = buildHTTPServer(cfg, components.Status)
		if err != nil {
			_ = reg.Close()
			if ownsTelemetry {
				_ = cfg.telemetry.Shutdown(ctx)
			}
			return nil, fmt.Errorf("failed to build HTTP server: %w", err)
		}
	}

	return &ConfdApp{
		config:        cfg.config,
		components:    components,
		httpServer:    httpServer,
		ownsTelemetry: ownsTelemetry,
	}, nil
}

// RegistryOption configures BuildRegistry
type RegistryOption func(*registryConfig)

type registryConfig struct {
	factory sources.Factory
	fs      afero.Fs
	runner  command.Runner
}

// WithFactoryOverride replaces the default source factory. A nil factory is ignored.
func WithFactoryOverride(f sources.Factory) RegistryOption {
	return func(c *registryConfig) {
		if f != nil {
			c.factory = f
		}
	}
}

// WithRegistryFs sets the filesystem file sources and schemas are read from
func WithRegistryFs(fs afero.Fs) RegistryOption {
	return func(c *registryConfig) {
		c.fs = fs
	}
}

// WithRegistryRunner sets the runner command sources execute with
func WithRegistryRunner(r command.Runner) RegistryOption {
	return func(c *registryConfig) {
		c.runner = r
	}
}

// BuildRegistry constructs every plugin defined by cfg
func BuildRegistry(cfg *config.Config, opts ...RegistryOption) (*registry.Registry, error) {
	rc := &registryConfig{}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.fs == nil {
		rc.fs = afero.NewOsFs()
	}
	if rc.factory == nil {
		factoryOpts := []sources.FactoryOption{sources.WithFs(rc.fs)}
		if rc.runner != nil {
			factoryOpts = append(factoryOpts, sources.WithRunner(rc.runner))
		}
		rc.factory = sources.NewFactory(factoryOpts...)
	}

	reg, err := registry.Build(cfg, rc.factory, registry.WithFs(rc.fs))
	if err != nil {
		return nil, fmt.Errorf("failed to build plugins: %w", err)
	}
	slog.Info("Plugins loaded", "count", reg.Len(), "plugins", reg.Names())
	return reg, nil
}

// buildSyncComponents builds the tasks, the coordinator and the template watcher
func buildSyncComponents(b *confdAppConfig, reg *registry.Registry) (*AppComponents, error) {
	slog.Info("Initializing sync components")

	meterProvider := b.telemetry.MeterProvider()
	tickMetrics, err := telemetry.NewTickMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create tick metrics: %w", err)
	}
	pluginMetrics, err := telemetry.NewPluginMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin metrics: %w", err)
	}

	loader := render.NewLoader(b.fs, b.config.GetTemplateDir())
	store := status.NewStore()

	var watcher *watch.Watcher
	if b.config.WatchTemplates {
		watcher = watch.New()
	}

	tasks := make([]*pkgsync.Task, 0, reg.Len())
	for _, p := range reg.Plugins() {
		opts := []pkgsync.TaskOption{
			pkgsync.WithLoader(loader),
			pkgsync.WithWriter(writer.NewWriter(b.fs)),
			pkgsync.WithRunner(b.runner),
			pkgsync.WithStatusStore(store),
			pkgsync.WithTickMetrics(tickMetrics),
			pkgsync.WithTracer(b.telemetry.Tracer(pkgsync.TracerName)),
			pkgsync.WithDefaultInterval(b.config.GetDefaultInterval()),
			pkgsync.WithTickTimeout(b.config.GetTickTimeout()),
		}
		if watcher != nil && p.Spec() != nil {
			opts = append(opts, pkgsync.WithWake(watcher.Subscribe(loader.Path(p.Spec().TemplateSource))))
		}

		task, err := pkgsync.NewTask(p, opts...)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	coord := coordinator.New(tasks,
		coordinator.WithStatusStore(store),
		coordinator.WithPluginMetrics(pluginMetrics),
	)
	slog.Info("Sync components initialized successfully", "tasks", len(tasks), "watch_templates", watcher != nil)

	return &AppComponents{
		Registry:    reg,
		Tasks:       tasks,
		Coordinator: coord,
		Status:      store,
		Watcher:     watcher,
		Telemetry:   b.telemetry,
	}, nil
}

// buildHTTPServer builds the status server with router and middleware
func buildHTTPServer(b *confdAppConfig, store status.Store) (*http.Server, error) {
	slog.Info("Initializing status server")

	metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	middlewares := append([]func(http.Handler) http.Handler{
		metricsMiddleware,
		telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
	}, b.middlewares...)

	router := api.NewServer(store,
		api.WithMiddlewares(middlewares...),
		api.WithMetricsHandler(b.telemetry.MetricsHandler()),
		api.WithRequestTimeout(b.requestTimeout),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("Status server configured", "address", b.address)
	return server, nil
}
