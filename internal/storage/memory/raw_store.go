package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// RawStore keeps raw scrapes in memory until they expire.
type RawStore struct {
	mu      sync.RWMutex
	records map[recordKey]signal.RawScrapeRecord
	now     func() time.Time
}

// NewRawStore creates a RawStore. now may be nil to use the wall clock.
func NewRawStore(now func() time.Time) *RawStore {
	if now == nil {
		now = time.Now
	}
	return &RawStore{
		records: make(map[recordKey]signal.RawScrapeRecord),
		now:     now,
	}
}

// WriteRawScrape stores record keyed by organization and ID.
func (s *RawStore) WriteRawScrape(_ context.Context, record signal.RawScrapeRecord) error {
	if record.ID == "" || record.OrganizationID == "" {
		return fmt.Errorf("write raw scrape: %w: id and organization_id are required", signal.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{record.OrganizationID, record.ID}] = record
	return nil
}

// GetRawScrape returns a live record or signal.ErrNotFound.
func (s *RawStore) GetRawScrape(_ context.Context, organizationID, id string) (signal.RawScrapeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey{organizationID, id}]
	if !ok || rec.Expired(s.now()) {
		return signal.RawScrapeRecord{}, signal.ErrNotFound
	}
	return rec, nil
}

// PurgeExpired deletes every record expired at now.
func (s *RawStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, expired or not.
func (s *RawStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ping always succeeds.
func (s *RawStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *RawStore) Close() error { return nil }
