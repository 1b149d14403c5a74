// Package service is the orchestration façade of the distiller. It ties the
// rate limiter, distillation engine, signal and raw stores, caches and event
// publisher together behind ProcessAndStore, BatchProcess and the read API
// offered to the lead-scoring consumer.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-signal-distiller/internal/cache"
	"github.com/JakeFAU/lead-signal-distiller/internal/distill"
	"github.com/JakeFAU/lead-signal-distiller/internal/logging"
	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
	"github.com/JakeFAU/lead-signal-distiller/internal/storage"
)

// Defaults applied when Config fields are unset.
const (
	DefaultStoreTimeout           = 5 * time.Second
	DefaultRawRetention           = 7 * 24 * time.Hour
	DefaultReductionTargetPercent = 99.0
	DefaultTopSignals             = 5
)

const (
	signalsEntity = "signals"
	catalogEntity = "catalog"
)

// Config controls Service behavior.
type Config struct {
	StoreTimeout           time.Duration
	RawRetention           time.Duration
	ReductionTargetPercent float64
	TopSignals             int
	CacheTTL               time.Duration
	Topic                  string
}

func (c Config) withDefaults() Config {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.RawRetention <= 0 {
		c.RawRetention = DefaultRawRetention
	}
	if c.ReductionTargetPercent <= 0 {
		c.ReductionTargetPercent = DefaultReductionTargetPercent
	}
	if c.TopSignals <= 0 {
		c.TopSignals = DefaultTopSignals
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = cache.DefaultTTL
	}
	return c
}

// RateLimiter admits or rejects write operations per organization.
type RateLimiter interface {
	CheckAndIncrement(organizationID string) error
}

// Deps are the collaborators of a Service. Publisher and Logger are optional.
type Deps struct {
	Engine    *distill.Engine
	Catalogs  signal.CatalogProvider
	Signals   *storage.SignalStore
	Raw       signal.RawStore
	Limiter   RateLimiter
	Publisher signal.Publisher
	Clock     signal.Clock
	IDs       signal.IDGenerator
	Hasher    signal.Hasher
	Logger    *zap.Logger
}

// Service orchestrates scrape processing and signal reads.
type Service struct {
	cfg       Config
	engine    *distill.Engine
	scorer    signal.Scorer
	catalogs  signal.CatalogProvider
	signals   *storage.SignalStore
	raw       signal.RawStore
	limiter   RateLimiter
	publisher signal.Publisher
	clock     signal.Clock
	ids       signal.IDGenerator
	hasher    signal.Hasher
	logger    *zap.Logger
	tracer    trace.Tracer

	signalCache  *cache.Cache[[]signal.ExtractedSignal]
	catalogCache *cache.Cache[signal.CatalogEntry]
	caches       *cache.Group
}

// New validates deps and builds a Service with its own caches.
func New(cfg Config, deps Deps) (*Service, error) {
	var missing []string
	if deps.Engine == nil {
		missing = append(missing, "engine")
	}
	if deps.Catalogs == nil {
		missing = append(missing, "catalogs")
	}
	if deps.Signals == nil {
		missing = append(missing, "signal store")
	}
	if deps.Raw == nil {
		missing = append(missing, "raw store")
	}
	if deps.Limiter == nil {
		missing = append(missing, "rate limiter")
	}
	if deps.Clock == nil {
		missing = append(missing, "clock")
	}
	if deps.IDs == nil {
		missing = append(missing, "id generator")
	}
	if deps.Hasher == nil {
		missing = append(missing, "hasher")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("service: missing dependencies: %v", missing)
	}

	cfg = cfg.withDefaults()
	signalCache := cache.New[[]signal.ExtractedSignal]("signals", cfg.CacheTTL, deps.Clock.Now)
	catalogCache := cache.New[signal.CatalogEntry]("catalogs", cfg.CacheTTL, deps.Clock.Now)

	return &Service{
		cfg:          cfg,
		engine:       deps.Engine,
		scorer:       deps.Engine.Scorer(),
		catalogs:     deps.Catalogs,
		signals:      deps.Signals,
		raw:          deps.Raw,
		limiter:      deps.Limiter,
		publisher:    deps.Publisher,
		clock:        deps.Clock,
		ids:          deps.IDs,
		hasher:       deps.Hasher,
		logger:       logging.Named(deps.Logger, "service"),
		tracer:       otel.Tracer("github.com/JakeFAU/lead-signal-distiller/internal/service"),
		signalCache:  signalCache,
		catalogCache: catalogCache,
		caches:       cache.NewGroup(signalCache, catalogCache),
	}, nil
}

// Caches exposes the cache group for sweeping and stats.
func (s *Service) Caches() *cache.Group { return s.caches }

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// storeCall runs fn under the store timeout. A deadline hit by that timeout
// is reported as StoreUnavailable.
func (s *Service) storeCall(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &signal.StoreUnavailableError{Op: op, Err: fmt.Errorf("timed out after %s: %w", s.cfg.StoreTimeout, err)}
	}
	return signal.Unavailable(op, err)
}

func signalsKey(organizationID, recordID string) string {
	return cache.Key(signalsEntity, organizationID, recordID)
}

func catalogKey(organizationID, industryID string) string {
	return cache.Key(catalogEntity, organizationID, industryID)
}

func (s *Service) catalogEntry(ctx context.Context, organizationID, industryID string) (signal.CatalogEntry, error) {
	return s.catalogCache.GetOrLoad(ctx, catalogKey(organizationID, industryID),
		func(ctx context.Context) (signal.CatalogEntry, error) {
			var entry signal.CatalogEntry
			err := s.storeCall(ctx, "get catalog", func(ctx context.Context) error {
				var err error
				entry, err = s.catalogs.GetCatalogEntry(ctx, organizationID, industryID)
				return err
			})
			return entry, err
		})
}

// InvalidateCatalogs drops every cached catalog so the next read hits the provider.
func (s *Service) InvalidateCatalogs() {
	s.catalogCache.Clear()
	s.logger.Info("catalog cache invalidated")
}

// PurgeRawScrapes deletes raw scrapes expired at the current time.
func (s *Service) PurgeRawScrapes(ctx context.Context) (int, error) {
	var n int
	err := s.storeCall(ctx, "purge raw scrapes", func(ctx context.Context) error {
		var err error
		n, err = s.raw.PurgeExpired(ctx, s.clock.Now())
		return err
	})
	return n, err
}
