// Package sqlite provides single-node signal and raw scrape stores on an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS record_signals (
	organization_id TEXT NOT NULL,
	record_id       TEXT NOT NULL,
	signals         TEXT NOT NULL,
	version         INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL,
	PRIMARY KEY (organization_id, record_id)
);

CREATE TABLE IF NOT EXISTS raw_scrapes (
	organization_id TEXT NOT NULL,
	id              TEXT NOT NULL,
	record_id       TEXT NOT NULL,
	url             TEXT NOT NULL,
	raw_html        TEXT NOT NULL,
	cleaned_content TEXT NOT NULL,
	metadata        TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	expires_at      INTEGER NOT NULL,
	PRIMARY KEY (organization_id, id)
);
CREATE INDEX IF NOT EXISTS raw_scrapes_expires_at_idx ON raw_scrapes (expires_at);
`

// pragmas are applied to every pooled connection through the DSN.
const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"

// Open opens the database at path, applies pragmas and creates the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("storage.sqlite_path is required")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := "file:" + path + "?" + pragmas
	if path == MemoryPath {
		dsn = MemoryPath
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return db, nil
}
