// Package config loads and validates distiller configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverGCS      = "gcs"
)

// Catalog sources.
const (
	CatalogSourceFile     = "file"
	CatalogSourcePostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Service   ServiceConfig   `mapstructure:"service"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Purge     PurgeConfig     `mapstructure:"purge"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServiceConfig tunes the orchestration service.
type ServiceConfig struct {
	StoreTimeout           time.Duration `mapstructure:"store_timeout"`
	RawScrapeRetentionDays int           `mapstructure:"raw_scrape_retention_days"`
	AppendMaxAttempts      int           `mapstructure:"append_max_attempts"`
	AppendBackoffInitial   time.Duration `mapstructure:"append_backoff_initial"`
	AppendBackoffMax       time.Duration `mapstructure:"append_backoff_max"`
	ReductionTargetPercent float64       `mapstructure:"reduction_target_percent"`
	TopSignals             int           `mapstructure:"top_signals"`
}

// CacheConfig controls the in-process TTL caches.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RateLimitConfig controls the per-organization write limiter.
type RateLimitConfig struct {
	Limit           int           `mapstructure:"limit"`
	Window          time.Duration `mapstructure:"window"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// StorageConfig selects the signal and raw store backends.
type StorageConfig struct {
	SignalsDriver string `mapstructure:"signals_driver"`
	RawDriver     string `mapstructure:"raw_driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	Prefix        string `mapstructure:"prefix"`
}

// DBConfig controls access to the Postgres database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// CatalogConfig selects where signal catalogs are read from.
type CatalogConfig struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
	Watch  bool   `mapstructure:"watch"`
}

// PubSubConfig holds metadata for signal-appended notifications. An empty
// project keeps events in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// IngestConfig names the subscription scrapes arrive on. An empty
// subscription disables ingestion.
type IngestConfig struct {
	Subscription   string `mapstructure:"subscription"`
	MaxOutstanding int    `mapstructure:"max_outstanding"`
}

// PurgeConfig schedules the raw scrape purge.
type PurgeConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// TelemetryConfig names the service in traces.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// ScoringConfig overrides per-category lead score weights.
type ScoringConfig struct {
	CategoryWeights map[string]float64 `mapstructure:"category_weights"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DISTILLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("service.store_timeout", 5*time.Second)
	v.SetDefault("service.raw_scrape_retention_days", 7)
	v.SetDefault("service.append_max_attempts", 3)
	v.SetDefault("service.append_backoff_initial", 20*time.Millisecond)
	v.SetDefault("service.append_backoff_max", 250*time.Millisecond)
	v.SetDefault("service.reduction_target_percent", 99.0)
	v.SetDefault("service.top_signals", 5)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.sweep_interval", time.Minute)
	v.SetDefault("rate_limit.limit", 100)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.cleanup_interval", 5*time.Minute)
	v.SetDefault("storage.signals_driver", DriverMemory)
	v.SetDefault("storage.raw_driver", DriverMemory)
	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("catalog.source", CatalogSourceFile)
	v.SetDefault("catalog.path", "catalog.yaml")
	v.SetDefault("catalog.watch", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "signals-appended")
	v.SetDefault("ingest.subscription", "")
	v.SetDefault("ingest.max_outstanding", 10)
	v.SetDefault("purge.interval", time.Hour)
	v.SetDefault("telemetry.service_name", "lead-signal-distiller")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	positive := func(key string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s must be > 0", key))
		}
	}
	positive("server.port", c.Server.Port > 0)
	positive("service.store_timeout", c.Service.StoreTimeout > 0)
	positive("service.raw_scrape_retention_days", c.Service.RawScrapeRetentionDays > 0)
	positive("service.append_max_attempts", c.Service.AppendMaxAttempts > 0)
	positive("service.top_signals", c.Service.TopSignals > 0)
	positive("cache.ttl", c.Cache.TTL > 0)
	positive("rate_limit.limit", c.RateLimit.Limit > 0)
	positive("rate_limit.window", c.RateLimit.Window > 0)

	switch c.Storage.SignalsDriver {
	case DriverMemory, DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.signals_driver %q is not one of memory, postgres, sqlite", c.Storage.SignalsDriver))
	}
	switch c.Storage.RawDriver {
	case DriverMemory, DriverPostgres, DriverSQLite:
	case DriverGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket must be set for the gcs raw driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.raw_driver %q is not one of memory, postgres, sqlite, gcs", c.Storage.RawDriver))
	}
	if c.UsesDriver(DriverSQLite) && c.Storage.SQLitePath == "" {
		errs = append(errs, errors.New("storage.sqlite_path must be set for the sqlite driver"))
	}

	switch c.Catalog.Source {
	case CatalogSourceFile:
		if c.Catalog.Path == "" {
			errs = append(errs, errors.New("catalog.path must be set for the file catalog"))
		}
	case CatalogSourcePostgres:
	default:
		errs = append(errs, fmt.Errorf("catalog.source %q is not one of file, postgres", c.Catalog.Source))
	}
	if c.Ingest.Subscription != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id must be set when ingest.subscription is set"))
	}
	if c.UsesPostgres() && c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn must be set when postgres is used"))
	}
	for category, w := range c.Scoring.CategoryWeights {
		if w < 0 {
			errs = append(errs, fmt.Errorf("scoring.category_weights.%s must be >= 0", category))
		}
	}
	return errors.Join(errs...)
}

// UsesDriver reports whether either store runs on driver.
func (c Config) UsesDriver(driver string) bool {
	return c.Storage.SignalsDriver == driver || c.Storage.RawDriver == driver
}

// UsesPostgres reports whether any component needs the Postgres pool.
func (c Config) UsesPostgres() bool {
	return c.UsesDriver(DriverPostgres) || c.Catalog.Source == CatalogSourcePostgres
}

// RawRetention converts the configured retention into a duration.
func (c Config) RawRetention() time.Duration {
	return time.Duration(c.Service.RawScrapeRetentionDays) * 24 * time.Hour
}
