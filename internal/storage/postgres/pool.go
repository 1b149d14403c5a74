// Package postgres provides Postgres-backed signal, raw scrape and catalog stores.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of *pgxpool.Pool the stores use.
type Pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Connect opens a pool using cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// Schema creates the tables used by the stores.
const Schema = `
CREATE TABLE IF NOT EXISTS record_signals (
	organization_id TEXT NOT NULL,
	record_id       TEXT NOT NULL,
	signals         JSONB NOT NULL DEFAULT '[]'::jsonb,
	version         BIGINT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (organization_id, record_id)
);

CREATE TABLE IF NOT EXISTS raw_scrapes (
	organization_id TEXT NOT NULL,
	id              TEXT NOT NULL,
	record_id       TEXT NOT NULL,
	url             TEXT NOT NULL,
	raw_html        TEXT NOT NULL,
	cleaned_content TEXT NOT NULL,
	metadata        JSONB NOT NULL,
	content_hash    TEXT NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (organization_id, id)
);
CREATE INDEX IF NOT EXISTS raw_scrapes_expires_at_idx ON raw_scrapes (expires_at);

CREATE TABLE IF NOT EXISTS signal_catalogs (
	organization_id    TEXT NOT NULL,
	industry_id        TEXT NOT NULL,
	high_value_signals JSONB NOT NULL DEFAULT '[]'::jsonb,
	scraping_strategy  JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (organization_id, industry_id)
);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, pool Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
