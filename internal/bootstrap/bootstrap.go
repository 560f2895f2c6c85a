package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/edital-watch/internal/config"
	"github.com/kirillkom/edital-watch/internal/core/domain"
	"github.com/kirillkom/edital-watch/internal/core/ports"
	"github.com/kirillkom/edital-watch/internal/core/usecase"
	"github.com/kirillkom/edital-watch/internal/infrastructure/api"
	"github.com/kirillkom/edital-watch/internal/infrastructure/jobfile"
	"github.com/kirillkom/edital-watch/internal/infrastructure/queue/nats"
	"github.com/kirillkom/edital-watch/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/edital-watch/internal/infrastructure/resilience"
	"github.com/kirillkom/edital-watch/internal/infrastructure/sse"
	"github.com/kirillkom/edital-watch/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/edital-watch/internal/infrastructure/tokens"
	"github.com/kirillkom/edital-watch/internal/infrastructure/visibility"
	"github.com/kirillkom/edital-watch/internal/observability/metrics"
)

// App wires the API-facing side shared by the CLI and the worker. Building it
// does no network I/O.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Service string

	Registry     *prometheus.Registry
	WatchMetrics *metrics.WatchMetrics

	Client          *api.Client
	Stream          *sse.Client
	AnalysisFetcher ports.StatusFetcher
	CatsFetcher     ports.StatusFetcher
	Tokens          ports.TokenProvider
	Visibility      *visibility.Signal
	CurrentJob      *jobfile.Store
	CatsSyncJob     *jobfile.Store

	AnalysisUC *usecase.AnalyzeEditalUseCase
	CatsUC     *usecase.CatsSyncUseCase

	closeFns []func()
}

func New(cfg config.Config, logger *slog.Logger, service string) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := metrics.NewRegistry()
	watchMetrics := metrics.NewWatchMetrics(registry, service)
	transportMetrics := metrics.NewTransportMetrics(registry, service)

	tokenProvider := newTokenProvider(cfg.API)

	executor := resilience.NewExecutor(
		resilienceConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithObserver(watchMetrics),
	)
	client, err := api.New(api.Options{
		BaseURL:           cfg.API.Base,
		Paths:             apiPaths(cfg.API),
		Timeout:           cfg.HTTP.Timeout,
		Tokens:            tokenProvider,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
		Executor:          executor,
		Transport:         transportMetrics.RoundTripper(nil),
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}

	stream := sse.New(cfg.API.Base, client.Paths().AnalysisStream, sse.WithLogger(logger))
	analysisFetcher := api.NewAnalysisStatusFetcher(client)
	catsFetcher := api.NewCatsSyncStatusFetcher(client)

	storage, err := localfs.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init report storage: %w", err)
	}
	current := jobfile.NewStore(cfg.Watch.CurrentJobFile)
	catsJobFile := cfg.Watch.CatsSyncJobFile
	if catsJobFile == "" {
		catsJobFile = filepath.Join(filepath.Dir(cfg.Watch.CurrentJobFile), "cats-sync-job")
	}
	catsPending := jobfile.NewStore(catsJobFile)

	app := &App{
		Config:          cfg,
		Logger:          logger,
		Service:         service,
		Registry:        registry,
		WatchMetrics:    watchMetrics,
		Client:          client,
		Stream:          stream,
		AnalysisFetcher: analysisFetcher,
		CatsFetcher:     catsFetcher,
		Tokens:          tokenProvider,
		Visibility:      visibility.New(true),
		CurrentJob:      current,
		CatsSyncJob:     catsPending,
	}

	app.AnalysisUC = usecase.NewAnalyzeEditalUseCase(
		api.NewAnalysisService(client),
		stream,
		analysisFetcher,
		current,
		storage,
		app.WatchOptions(domain.JobKindAnalysis),
	)
	app.CatsUC = usecase.NewCatsSyncUseCase(
		api.NewCatsService(client),
		catsFetcher,
		catsPending,
		app.WatchOptions(domain.JobKindCatsSync),
	)
	return app, nil
}

// WatchOptions returns the configured options for a job kind.
func (a *App) WatchOptions(kind domain.JobKind) usecase.WatchOptions {
	opts := usecase.WatchOptions{
		PollInterval:  a.Config.Watch.PollInterval,
		TrySSE:        usecase.BoolPtr(a.Config.Watch.TrySSE),
		MaxWait:       a.Config.Watch.MaxWait,
		TokenProvider: a.Tokens,
		Visibility:    a.Visibility,
		Logger:        a.Logger,
		Metrics:       a.WatchMetrics,
	}
	if kind == domain.JobKindCatsSync {
		opts.TrySSE = usecase.BoolPtr(false)
		opts.MaxWait = a.Config.Watch.CatsSyncMaxWait
	}
	return opts
}

// JobStore returns the file holding the job to resume for kind.
func (a *App) JobStore(kind domain.JobKind) *jobfile.Store {
	if kind == domain.JobKindCatsSync {
		return a.CatsSyncJob
	}
	return a.CurrentJob
}

// NewWatcher builds a watcher for kind with the configured options.
func (a *App) NewWatcher(kind domain.JobKind) (*usecase.JobWatcher, error) {
	return a.NewWatcherWith(kind, a.WatchOptions(kind))
}

func (a *App) NewWatcherWith(kind domain.JobKind, opts usecase.WatchOptions) (*usecase.JobWatcher, error) {
	if kind == domain.JobKindCatsSync {
		return usecase.NewJobWatcher(nil, a.CatsFetcher, opts)
	}
	return usecase.NewJobWatcher(a.Stream, a.AnalysisFetcher, opts)
}

// ConnectBus opens the NATS status bus. The caller owns the returned bus.
func (a *App) ConnectBus(queueGroup string) (*nats.StatusBus, error) {
	executor := resilience.NewExecutor(
		resilience.DefaultConfig(),
		resilience.WithLogger(a.Logger),
		resilience.WithObserver(a.WatchMetrics),
	)
	bus, err := nats.NewWithOptions(a.Config.NATS.URL, a.Config.NATS.Subject, nats.Options{
		QueueGroup:         queueGroup,
		ResilienceExecutor: executor,
		Logger:             a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init status bus: %w", err)
	}
	return bus, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

// Worker adds the persistent tracking side to App.
type Worker struct {
	*App

	Store         *postgres.TrackedJobRepository
	Bus           *nats.StatusBus
	Tracker       *usecase.JobTracker
	WorkerMetrics *metrics.WorkerMetrics
}

func NewWorker(ctx context.Context, cfg config.Config, logger *slog.Logger, service string) (*Worker, error) {
	app, err := New(cfg, logger, service)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := OpenTrackedStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closeFns = append(app.closeFns, closeStore)

	bus, err := app.ConnectBus("")
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closeFns = append(app.closeFns, bus.Close)

	workerMetrics := metrics.NewWorkerMetrics(app.Registry, service)
	tracker := usecase.NewJobTracker(store, workerMetrics.InstrumentPublisher(bus), app.NewWatcher, logger)
	app.closeFns = append(app.closeFns, tracker.Close)

	return &Worker{
		App:           app,
		Store:         store,
		Bus:           bus,
		Tracker:       tracker,
		WorkerMetrics: workerMetrics,
	}, nil
}

// OpenTrackedStore connects to Postgres and makes sure the schema exists.
func OpenTrackedStore(ctx context.Context, cfg config.Config) (*postgres.TrackedJobRepository, func(), error) {
	db, err := postgres.OpenDB(cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return postgres.NewTrackedJobRepository(db), func() { _ = db.Close() }, nil
}

func newTokenProvider(cfg config.APIConfig) ports.TokenProvider {
	providers := tokens.First{tokens.Static(cfg.Token)}
	if cfg.TokenFile != "" {
		providers = append(providers, tokens.NewFile(cfg.TokenFile, 0))
	}
	return providers
}

func apiPaths(cfg config.APIConfig) api.Paths {
	return api.Paths{
		AnalysisStart:  cfg.AnalysisStartPath,
		AnalysisStatus: cfg.AnalysisStatusPath,
		AnalysisStream: cfg.AnalysisStreamPath,
		AnalysisResult: cfg.AnalysisResultPath,
		CatsSyncStart:  cfg.CatsSyncStartPath,
		CatsSyncStatus: cfg.CatsSyncStatusPath,
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := api.DefaultResilienceConfig()
	out.Retry = resilience.RetryPolicy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		Multiplier:     cfg.Retry.Multiplier,
	}
	out.Breaker = resilience.BreakerPolicy{
		Enabled:          cfg.Breaker.Enabled,
		MinRequests:      cfg.Breaker.MinRequests,
		FailureRatio:     cfg.Breaker.FailureRatio,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	}
	return out
}
