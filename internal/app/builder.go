package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/NovaUNL/Supernova-sub000/internal/api"
	"github.com/NovaUNL/Supernova-sub000/internal/app/storage"
	"github.com/NovaUNL/Supernova-sub000/internal/config"
	"github.com/NovaUNL/Supernova-sub000/internal/httpclient"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/coordinator"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/orchestrator"
	"github.com/NovaUNL/Supernova-sub000/internal/telemetry"
	"github.com/NovaUNL/Supernova-sub000/internal/upstream"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// SyncAppOptions is a function that configures the sync app builder
type SyncAppOptions func(*syncAppConfig) error

// syncAppConfig collects what NewSyncApp assembles.
// It supports dependency injection for testing while providing sensible defaults for production
type syncAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	storageFactory storage.Factory
	source         upstream.Source
	coordinator    coordinator.Coordinator

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	telemetry *telemetry.Telemetry
	logger    *slog.Logger
	now       func() time.Time
}

func baseConfig(opts ...SyncAppOptions) (*syncAppConfig, error) {
	cfg := &syncAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		logger:         slog.Default(),
		now:            time.Now,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetListen()
	}

	return cfg, nil
}

// NewSyncApp assembles storage, the upstream client, the orchestrator, the coordinator
// and the daemon HTTP server from the configuration
func NewSyncApp(
	ctx context.Context,
	opts ...SyncAppOptions,
) (*SyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	// Single decision point for postgres vs memory
	if cfg.storageFactory == nil {
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	// Ensure cleanup happens on error
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded {
			cfg.storageFactory.Cleanup()
		}
	}()

	components, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	// Cleanup is now handled by the app, not in defer
	cleanupNeeded = false

	var once sync.Once
	cancelFunc := func() {
		once.Do(func() {
			cancel()
			cfg.storageFactory.Cleanup()
		})
	}

	return &SyncApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address, overriding the configured listen address
func WithAddress(addr string) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
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

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithSource allows injecting a custom upstream source (for testing)
func WithSource(s upstream.Source) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.source = s
		return nil
	}
}

// WithCoordinator allows injecting a custom coordinator (for testing)
func WithCoordinator(c coordinator.Coordinator) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.coordinator = c
		return nil
	}
}

// WithTelemetry wires tracing, sync metrics, HTTP metrics and the scrape endpoint
func WithTelemetry(t *telemetry.Telemetry) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithLogger sets the base logger of the orchestrator and coordinator
func WithLogger(logger *slog.Logger) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithClock replaces time.Now (for testing)
func WithClock(now func() time.Time) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.now = now
		return nil
	}
}

// buildSyncComponents builds the store, the source, the orchestrator and the coordinator
func buildSyncComponents(
	ctx context.Context,
	b *syncAppConfig,
) (*AppComponents, error) {
	slog.Info("Initializing sync components")

	st, err := b.storageFactory.CreateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	statuses, err := b.storageFactory.CreateStatusPersistence(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create status persistence: %w", err)
	}

	components := &AppComponents{Store: st, Statuses: statuses}
	if b.coordinator != nil {
		components.Coordinator = b.coordinator
		return components, nil
	}

	if b.source == nil {
		var upstreamOpts []upstream.Option
		upstreamOpts = append(upstreamOpts, upstream.WithLogger(b.logger))
		if b.telemetry != nil {
			upstreamOpts = append(upstreamOpts, upstream.WithTracer(b.telemetry.Tracer(telemetry.UpstreamTracerName)))
		}
		hc := httpclient.NewDefaultClient(b.config.Upstream.GetTimeout())
		b.source = upstream.NewClient(hc, b.config.Upstream.URL, upstreamOpts...)
		slog.Info("Upstream client configured", "url", b.config.Upstream.URL)
	}

	orchCfg, calendar := buildOrchestratorConfig(&b.config.Sync, b.now())
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(b.logger),
		orchestrator.WithClock(b.now),
	}
	if calendar {
		orchOpts = append(orchOpts, orchestrator.WithCalendar())
	}
	if b.telemetry != nil {
		orchOpts = append(orchOpts, orchestrator.WithTracer(b.telemetry.Tracer(telemetry.SyncTracerName)))
	}
	components.Orchestrator = orchestrator.New(b.source, st, orchCfg, orchOpts...)

	coordOpts := []coordinator.Option{
		coordinator.WithLogger(b.logger),
		coordinator.WithClock(b.now),
	}
	if b.telemetry != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		if syncMetrics != nil {
			coordOpts = append(coordOpts, coordinator.WithSyncMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}
	}

	schedule := buildSchedule(b.config.Sync.Schedule)
	components.Coordinator = coordinator.New(components.Orchestrator, statuses, schedule, coordOpts...)

	slog.Info("Sync components initialized successfully",
		"year", orchCfg.Year,
		"period", orchCfg.Period,
		"calendar", calendar,
		"concurrency", orchCfg.Concurrency,
	)
	return components, nil
}

// buildOrchestratorConfig overlays the sync section on the defaults. calendar is true
// when no year is pinned, so the orchestrator follows the clock.
func buildOrchestratorConfig(sc *config.SyncConfig, now time.Time) (cfg orchestrator.Config, calendar bool) {
	cfg = orchestrator.DefaultConfig(now)
	calendar = true
	if sc.Year != 0 {
		cfg.Year, cfg.Period = sc.Year, sc.Period
		calendar = false
	}
	if sc.RecentYearMargin > 0 {
		cfg.RecentYearMargin = sc.RecentYearMargin
	}
	if sc.Concurrency > 0 {
		cfg.Concurrency = sc.Concurrency
	}

	fast, slow, cooldown := sc.Durations()
	if fast > 0 {
		cfg.FastStaleness = fast
	}
	if slow > 0 {
		cfg.SlowStaleness = slow
	}
	if sc.RetryCooldown != "" {
		cfg.RetryCooldown = cooldown
	}
	return cfg, calendar
}

// buildSchedule overlays the configured intervals on the default schedule
func buildSchedule(sc config.ScheduleConfig) coordinator.Schedule {
	schedule := coordinator.DefaultSchedule()
	intervals := sc.Intervals()
	if v := intervals["fast"]; v.Set {
		schedule.Fast = v.Duration
	}
	if v := intervals["slow"]; v.Set {
		schedule.Slow = v.Duration
	}
	if v := intervals["full"]; v.Set {
		schedule.Full = v.Duration
	}
	if v := intervals["failureBackoff"]; v.Set {
		schedule.FailureBackoff = v.Duration
	}
	return schedule
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *syncAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	serverOpts := []api.ServerOption{
		api.WithReadinessChecker(b.storageFactory),
	}
	if components.Orchestrator != nil {
		serverOpts = append(serverOpts, api.WithStateReporter(components.Orchestrator))
	}

	if b.telemetry != nil {
		// Metrics and tracing wrap everything else so rejected requests are measured too
		instrument, err := b.telemetry.HTTPMiddleware()
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP instrumentation: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{instrument}, b.middlewares...)

		if h := b.telemetry.MetricsHandler(); h != nil {
			serverOpts = append(serverOpts, api.WithMetricsHandler(h))
			slog.Info("Prometheus metrics endpoint enabled", "path", "/metrics")
		}
	}

	serverOpts = append(serverOpts, api.WithMiddlewares(b.middlewares...))
	router := api.NewServer(components.Statuses, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
