package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// RawStore keeps raw scrapes in SQLite; expiry is stored as unix nanoseconds.
type RawStore struct {
	db    *sql.DB
	now   func() time.Time
	owned bool
}

// NewRawStore builds a raw store over db. Pass owned=false when db is shared
// with a SignalRepository.
func NewRawStore(db *sql.DB, owned bool, now func() time.Time) (*RawStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if now == nil {
		now = time.Now
	}
	return &RawStore{db: db, now: now, owned: owned}, nil
}

// WriteRawScrape inserts record. Rewriting an existing ID is a no-op.
func (s *RawStore) WriteRawScrape(ctx context.Context, record signal.RawScrapeRecord) error {
	if record.ID == "" || record.OrganizationID == "" {
		return fmt.Errorf("write raw scrape: %w: id and organization_id are required", signal.ErrInvalidInput)
	}
	meta, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO raw_scrapes (
	organization_id, id, record_id, url, raw_html, cleaned_content, metadata, content_hash, expires_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (organization_id, id) DO NOTHING`,
		record.OrganizationID,
		record.ID,
		record.RecordID,
		record.URL,
		record.RawHTML,
		record.CleanedContent,
		string(meta),
		record.ContentHash,
		record.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert raw scrape: %w", err)
	}
	return nil
}

// GetRawScrape returns a live record or signal.ErrNotFound.
func (s *RawStore) GetRawScrape(ctx context.Context, organizationID, id string) (signal.RawScrapeRecord, error) {
	rec := signal.RawScrapeRecord{ID: id, OrganizationID: organizationID}
	var (
		meta      string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT record_id, url, raw_html, cleaned_content, metadata, content_hash, expires_at
FROM raw_scrapes
WHERE organization_id = ? AND id = ? AND expires_at > ?`,
		organizationID, id, s.now().UnixNano(),
	).Scan(&rec.RecordID, &rec.URL, &rec.RawHTML, &rec.CleanedContent, &meta, &rec.ContentHash, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return signal.RawScrapeRecord{}, signal.ErrNotFound
	}
	if err != nil {
		return signal.RawScrapeRecord{}, fmt.Errorf("select raw scrape: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return signal.RawScrapeRecord{}, fmt.Errorf("decode metadata: %w", err)
	}
	rec.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return rec, nil
}

// PurgeExpired deletes rows expired at now.
func (s *RawStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM raw_scrapes WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge raw scrapes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Ping checks the database.
func (s *RawStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database if this store owns it.
func (s *RawStore) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
