// Package server builds the distiller's dependency graph and runs it.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-signal-distiller/internal/api"
	catalogfile "github.com/JakeFAU/lead-signal-distiller/internal/catalog/file"
	"github.com/JakeFAU/lead-signal-distiller/internal/clock/system"
	"github.com/JakeFAU/lead-signal-distiller/internal/config"
	"github.com/JakeFAU/lead-signal-distiller/internal/distill"
	"github.com/JakeFAU/lead-signal-distiller/internal/hash/sha256"
	"github.com/JakeFAU/lead-signal-distiller/internal/id/uuid"
	"github.com/JakeFAU/lead-signal-distiller/internal/ingest"
	"github.com/JakeFAU/lead-signal-distiller/internal/logging"
	"github.com/JakeFAU/lead-signal-distiller/internal/metrics"
	"github.com/JakeFAU/lead-signal-distiller/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/lead-signal-distiller/internal/publisher/pubsub"
	"github.com/JakeFAU/lead-signal-distiller/internal/service"
	domain "github.com/JakeFAU/lead-signal-distiller/internal/signal"
	"github.com/JakeFAU/lead-signal-distiller/internal/storage"
	gcsstorage "github.com/JakeFAU/lead-signal-distiller/internal/storage/gcs"
	memorystorage "github.com/JakeFAU/lead-signal-distiller/internal/storage/memory"
	pgstore "github.com/JakeFAU/lead-signal-distiller/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/lead-signal-distiller/internal/storage/sqlite"
	"github.com/JakeFAU/lead-signal-distiller/internal/telemetry"
	"github.com/JakeFAU/lead-signal-distiller/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  *system.Clock

	service     *service.Service
	limiter     *ratelimit.Limiter
	janitor     *worker.Janitor
	apiServer   *api.Server
	catalogFile *catalogfile.Provider
	consumer    *ingest.Consumer

	signals  *storage.SignalStore
	raw      domain.RawStore
	pgPool   *pgxpool.Pool
	sqliteDB *sql.DB

	pubsubClient     *pubsub.Client
	pubsubPublisher  *pubsub.Publisher
	pubsubSubscriber *pubsub.Subscriber

	tracerShutdown func(context.Context) error
	closeOnce      sync.Once
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Only non-sensitive fields; the DSN may carry credentials.
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("signals_driver", cfg.Storage.SignalsDriver),
		zap.String("raw_driver", cfg.Storage.RawDriver),
		zap.String("catalog_source", cfg.Catalog.Source),
	)
	return &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
	}, nil
}

// Service returns the orchestration service.
func (a *App) Service() *service.Service { return a.service }

// Handler returns the ops HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Info("janitor started", zap.Strings("tasks", a.janitor.Tasks()))
		a.janitor.Run(ctx)
	}()

	if a.catalogFile != nil && a.cfg.Catalog.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.catalogFile.Watch(ctx); err != nil {
				a.logger.Error("catalog watch stopped", zap.Error(err))
			}
		}()
	}

	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.logger.Info("ingest consumer started", zap.String("subscription", a.cfg.Ingest.Subscription))
			if err := a.consumer.Run(ctx, a.pubsubSubscriber); err != nil {
				a.logger.Error("ingest consumer stopped", zap.Error(err))
				stop()
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()

	return a.Close(shutdownCtx)
}

// Purge runs a single raw scrape purge.
func (a *App) Purge(ctx context.Context) (int, error) {
	n, err := a.service.PurgeRawScrapes(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge raw scrapes: %w", err)
	}
	metrics.ObserveRawPurged(n)
	a.logger.Info("raw scrapes purged", zap.Int("removed", n))
	return n, nil
}

// Close gracefully shuts down the application. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeInfrastructure()
		a.closeObservability(ctx)
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.raw != nil {
		if err := a.raw.Close(); err != nil {
			a.logger.Warn("raw store close failed", zap.Error(err))
		}
	}
	if a.signals != nil {
		if err := a.signals.Close(); err != nil {
			a.logger.Warn("signal store close failed", zap.Error(err))
		}
	}
	// Both are idempotent; the signal store may already have closed them.
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.sqliteDB != nil {
		if err := a.sqliteDB.Close(); err != nil {
			a.logger.Warn("sqlite close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger creates the application's dependencies using logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	tp, err := telemetry.InitTracerProvider(ctx, a.cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown

	a.logger.Info("building application dependencies")
	if err := a.setupDatabases(ctx); err != nil {
		return err
	}
	repo, err := a.setupSignalRepository()
	if err != nil {
		return err
	}
	a.signals = storage.NewSignalStore(repo,
		storage.WithRetryPolicy(storage.RetryPolicy{
			MaxAttempts: a.cfg.Service.AppendMaxAttempts,
			Initial:     a.cfg.Service.AppendBackoffInitial,
			Max:         a.cfg.Service.AppendBackoffMax,
		}),
		storage.WithLogger(a.logger),
	)
	if a.raw, err = a.setupRawStore(ctx); err != nil {
		return err
	}
	catalogs, err := a.setupCatalogs()
	if err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	a.limiter = ratelimit.New(ratelimit.Config{
		Limit:           a.cfg.RateLimit.Limit,
		Window:          a.cfg.RateLimit.Window,
		CleanupInterval: a.cfg.RateLimit.CleanupInterval,
	})
	ids := uuid.New()
	engine := distill.NewEngine(ids, distill.WithScorer(distill.NewWeightedScorer(categoryWeights(a.cfg))))

	a.service, err = service.New(service.Config{
		StoreTimeout:           a.cfg.Service.StoreTimeout,
		RawRetention:           a.cfg.RawRetention(),
		ReductionTargetPercent: a.cfg.Service.ReductionTargetPercent,
		TopSignals:             a.cfg.Service.TopSignals,
		CacheTTL:               a.cfg.Cache.TTL,
		Topic:                  a.cfg.PubSub.TopicName,
	}, service.Deps{
		Engine:    engine,
		Catalogs:  catalogs,
		Signals:   a.signals,
		Raw:       a.raw,
		Limiter:   a.limiter,
		Publisher: publisher,
		Clock:     a.clock,
		IDs:       ids,
		Hasher:    sha256.New(),
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("service init failed: %w", err)
	}
	if a.catalogFile != nil {
		a.catalogFile.OnReload(a.service.InvalidateCatalogs)
	}

	a.janitor = worker.New(a.logger,
		worker.PurgeTask(a.service, a.cfg.Purge.Interval),
		worker.SweepTask(a.service.Caches(), a.cfg.Cache.SweepInterval),
		worker.CleanupTask(a.limiter, a.cfg.RateLimit.CleanupInterval),
	)
	a.apiServer = api.NewServer(a.service, a.logger)

	if a.cfg.Ingest.Subscription != "" {
		a.pubsubSubscriber = a.pubsubClient.Subscriber(a.cfg.Ingest.Subscription)
		a.pubsubSubscriber.ReceiveSettings.MaxOutstandingMessages = a.cfg.Ingest.MaxOutstanding
		a.consumer = ingest.New(a.service, a.logger)
	}
	return nil
}

func (a *App) setupDatabases(ctx context.Context) error {
	if a.cfg.UsesPostgres() {
		pool, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		a.pgPool = pool
		if err := pgstore.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("postgres schema failed: %w", err)
		}
		a.logger.Info("postgres pool initialized", zap.Int32("max_conns", a.cfg.DB.MaxConns))
	}
	if a.cfg.UsesDriver(config.DriverSQLite) {
		db, err := sqlitestore.Open(ctx, a.cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		a.sqliteDB = db
		a.logger.Info("sqlite database opened", zap.String("path", a.cfg.Storage.SQLitePath))
	}
	return nil
}

func (a *App) setupSignalRepository() (domain.SignalRepository, error) {
	switch a.cfg.Storage.SignalsDriver {
	case config.DriverPostgres:
		repo, err := pgstore.NewSignalRepository(a.pgPool)
		if err != nil {
			return nil, fmt.Errorf("postgres signal repository init failed: %w", err)
		}
		return repo, nil
	case config.DriverSQLite:
		repo, err := sqlitestore.NewSignalRepository(a.sqliteDB)
		if err != nil {
			return nil, fmt.Errorf("sqlite signal repository init failed: %w", err)
		}
		return repo, nil
	default:
		a.logger.Warn("using in-memory signal store; signals will not survive a restart")
		return memorystorage.NewSignalRepository(), nil
	}
}

func (a *App) setupRawStore(ctx context.Context) (domain.RawStore, error) {
	switch a.cfg.Storage.RawDriver {
	case config.DriverPostgres:
		raw, err := pgstore.NewRawStore(a.pgPool, false, a.clock.Now)
		if err != nil {
			return nil, fmt.Errorf("postgres raw store init failed: %w", err)
		}
		return raw, nil
	case config.DriverSQLite:
		raw, err := sqlitestore.NewRawStore(a.sqliteDB, false, a.clock.Now)
		if err != nil {
			return nil, fmt.Errorf("sqlite raw store init failed: %w", err)
		}
		return raw, nil
	case config.DriverGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		raw, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		}, a.clock.Now)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs raw store init failed: %w", err)
		}
		a.logger.Debug("GCS raw store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return raw, nil
	default:
		return memorystorage.NewRawStore(a.clock.Now), nil
	}
}

func (a *App) setupCatalogs() (domain.CatalogProvider, error) {
	if a.cfg.Catalog.Source == config.CatalogSourcePostgres {
		catalogs, err := pgstore.NewCatalogStore(a.pgPool)
		if err != nil {
			return nil, fmt.Errorf("postgres catalog init failed: %w", err)
		}
		return catalogs, nil
	}
	provider, err := catalogfile.New(a.cfg.Catalog.Path, a.logger)
	if err != nil {
		return nil, fmt.Errorf("catalog file init failed: %w", err)
	}
	a.catalogFile = provider
	a.logger.Info("catalog file loaded",
		zap.String("path", a.cfg.Catalog.Path),
		zap.Int("catalogs", provider.Len()),
		zap.Bool("watch", a.cfg.Catalog.Watch),
	)
	return provider, nil
}

// setupPublisher returns a nil publisher when Pub/Sub is not configured.
func (a *App) setupPublisher(ctx context.Context) (domain.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, signal events are not published")
		return nil, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("no Pub/Sub topic configured, signal events are not published")
		return nil, nil
	}
	a.pubsubPublisher = a.pubsubClient.Publisher(a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(a.pubsubPublisher), nil
}

// categoryWeights overlays configured weights on the defaults.
func categoryWeights(cfg *config.Config) map[domain.Category]float64 {
	weights := make(map[domain.Category]float64, len(distill.DefaultCategoryWeights))
	for category, w := range distill.DefaultCategoryWeights {
		weights[category] = w
	}
	for category, w := range cfg.Scoring.CategoryWeights {
		weights[domain.Category(category)] = w
	}
	return weights
}
