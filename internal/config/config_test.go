package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, 5*time.Second, cfg.Service.StoreTimeout)
	require.Equal(t, 7*24*time.Hour, cfg.RawRetention())
	require.Equal(t, 3, cfg.Service.AppendMaxAttempts)
	require.InDelta(t, 99.0, cfg.Service.ReductionTargetPercent, 1e-9)
	require.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	require.Equal(t, 100, cfg.RateLimit.Limit)
	require.Equal(t, time.Minute, cfg.RateLimit.Window)
	require.Equal(t, DriverMemory, cfg.Storage.SignalsDriver)
	require.Equal(t, DriverMemory, cfg.Storage.RawDriver)
	require.Equal(t, CatalogSourceFile, cfg.Catalog.Source)
	require.Equal(t, "catalog.yaml", cfg.Catalog.Path)
	require.Equal(t, time.Hour, cfg.Purge.Interval)
	require.Empty(t, cfg.Ingest.Subscription)
	require.Equal(t, 10, cfg.Ingest.MaxOutstanding)
	require.Equal(t, "lead-signal-distiller", cfg.Telemetry.ServiceName)
	require.False(t, cfg.UsesPostgres())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
service:
  store_timeout: 2s
  raw_scrape_retention_days: 3
  append_backoff_initial: 5ms
rate_limit:
  limit: 10
  window: 30s
storage:
  signals_driver: postgres
  raw_driver: gcs
  gcs_bucket: scrapes
  prefix: raw-html
db:
  dsn: postgres://localhost/distiller
  max_conns: 4
catalog:
  source: postgres
pubsub:
  project_id: acme
  topic_name: leads
scoring:
  category_weights:
    hiring: 1.5
    press: 0.2
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, 2*time.Second, cfg.Service.StoreTimeout)
	require.Equal(t, 72*time.Hour, cfg.RawRetention())
	require.Equal(t, 5*time.Millisecond, cfg.Service.AppendBackoffInitial)
	require.Equal(t, 10, cfg.RateLimit.Limit)
	require.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	require.Equal(t, DriverGCS, cfg.Storage.RawDriver)
	require.Equal(t, "scrapes", cfg.Storage.GCSBucket)
	require.Equal(t, int32(4), cfg.DB.MaxConns)
	require.True(t, cfg.UsesPostgres())
	require.Equal(t, "leads", cfg.PubSub.TopicName)
	require.Equal(t, map[string]float64{"hiring": 1.5, "press": 0.2}, cfg.Scoring.CategoryWeights)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid retention", func(c *Config) { c.Service.RawScrapeRetentionDays = 0 }, "service.raw_scrape_retention_days"},
		{"invalid cache ttl", func(c *Config) { c.Cache.TTL = -time.Second }, "cache.ttl"},
		{"invalid limit", func(c *Config) { c.RateLimit.Limit = 0 }, "rate_limit.limit"},
		{"unknown signals driver", func(c *Config) { c.Storage.SignalsDriver = "redis" }, "storage.signals_driver"},
		{"gcs signals driver", func(c *Config) { c.Storage.SignalsDriver = DriverGCS }, "storage.signals_driver"},
		{"gcs without bucket", func(c *Config) { c.Storage.RawDriver = DriverGCS }, "storage.gcs_bucket"},
		{"sqlite without path", func(c *Config) { c.Storage.SignalsDriver = DriverSQLite }, "storage.sqlite_path"},
		{"postgres without dsn", func(c *Config) { c.Storage.RawDriver = DriverPostgres }, "db.dsn"},
		{"file catalog without path", func(c *Config) { c.Catalog.Path = "" }, "catalog.path"},
		{"ingest without project", func(c *Config) { c.Ingest.Subscription = "scrapes" }, "pubsub.project_id"},
		{"unknown catalog source", func(c *Config) { c.Catalog.Source = "s3" }, "catalog.source"},
		{"negative weight", func(c *Config) {
			c.Scoring.CategoryWeights = map[string]float64{"hiring": -1}
		}, "scoring.category_weights.hiring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), "got %v", err)
		})
	}
}
