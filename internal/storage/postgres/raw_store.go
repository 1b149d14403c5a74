package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

const (
	insertRawQuery = `
INSERT INTO raw_scrapes (
	organization_id,
	id,
	record_id,
	url,
	raw_html,
	cleaned_content,
	metadata,
	content_hash,
	expires_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (organization_id, id) DO NOTHING`

	selectRawQuery = `
SELECT record_id, url, raw_html, cleaned_content, metadata, content_hash, expires_at
FROM raw_scrapes
WHERE organization_id = $1 AND id = $2 AND expires_at > $3`

	purgeRawQuery = `DELETE FROM raw_scrapes WHERE expires_at <= $1`
)

// RawStore keeps raw scrapes in a table swept by PurgeExpired.
type RawStore struct {
	pool Pool
	now  func() time.Time
	// owned reports whether Close releases the pool.
	owned bool
}

// NewRawStore builds a raw store over pool. When the pool is shared with a
// SignalRepository pass owned=false so only one of them closes it.
func NewRawStore(pool Pool, owned bool, now func() time.Time) (*RawStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if now == nil {
		now = time.Now
	}
	return &RawStore{pool: pool, now: now, owned: owned}, nil
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
	args := []any{
		record.OrganizationID,
		record.ID,
		record.RecordID,
		record.URL,
		record.RawHTML,
		record.CleanedContent,
		meta,
		record.ContentHash,
		record.ExpiresAt,
	}
	if _, err := s.pool.Exec(ctx, insertRawQuery, args...); err != nil {
		return fmt.Errorf("insert raw scrape: %w", err)
	}
	return nil
}

// GetRawScrape returns a live record or signal.ErrNotFound.
func (s *RawStore) GetRawScrape(ctx context.Context, organizationID, id string) (signal.RawScrapeRecord, error) {
	rec := signal.RawScrapeRecord{ID: id, OrganizationID: organizationID}
	var meta []byte
	err := s.pool.QueryRow(ctx, selectRawQuery, organizationID, id, s.now()).Scan(
		&rec.RecordID,
		&rec.URL,
		&rec.RawHTML,
		&rec.CleanedContent,
		&meta,
		&rec.ContentHash,
		&rec.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return signal.RawScrapeRecord{}, signal.ErrNotFound
	}
	if err != nil {
		return signal.RawScrapeRecord{}, fmt.Errorf("select raw scrape: %w", err)
	}
	if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
		return signal.RawScrapeRecord{}, fmt.Errorf("decode metadata: %w", err)
	}
	return rec, nil
}

// PurgeExpired deletes rows expired at now.
func (s *RawStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, purgeRawQuery, now)
	if err != nil {
		return 0, fmt.Errorf("purge raw scrapes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks connectivity.
func (s *RawStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool if this store owns it.
func (s *RawStore) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}
