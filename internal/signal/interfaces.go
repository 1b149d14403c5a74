package signal

import (
	"context"
	"time"
)

// CatalogProvider reads signal catalogs. The distiller never writes catalogs.
type CatalogProvider interface {
	GetCatalogEntry(ctx context.Context, organizationID, industryID string) (CatalogEntry, error)
}

// SignalRepository is the versioned persistence contract for durable signals.
// CompareAndSwap must fail with ErrVersionConflict when the stored version differs
// from expectedVersion.
type SignalRepository interface {
	Load(ctx context.Context, organizationID, recordID string) (SignalSet, error)
	CompareAndSwap(ctx context.Context, organizationID, recordID string, expectedVersion int64, signals []ExtractedSignal) error
	Delete(ctx context.Context, organizationID, recordID string) error
	Ping(ctx context.Context) error
	Close() error
}

// RawStore holds ephemeral raw scrapes until they expire.
type RawStore interface {
	WriteRawScrape(ctx context.Context, record RawScrapeRecord) error
	GetRawScrape(ctx context.Context, organizationID, id string) (RawScrapeRecord, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Publisher pushes signal events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Scorer turns a record's signals into a 0-100 lead score.
type Scorer interface {
	Score(signals []ExtractedSignal) int
}

// Hasher fingerprints scrape content. Distinct part lists must hash differently.
type Hasher interface {
	HashContent(parts ...string) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces identifiers for raw records and deterministic signal IDs.
type IDGenerator interface {
	NewID() (string, error)
	SignalID(parts ...string) string
}
