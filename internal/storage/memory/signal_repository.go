// Package memory provides in-process signal and raw scrape stores for
// development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

type recordKey struct {
	org    string
	record string
}

type versionedSignals struct {
	signals []signal.ExtractedSignal
	version int64
}

// SignalRepository is a versioned in-memory signal store.
type SignalRepository struct {
	mu      sync.RWMutex
	records map[recordKey]versionedSignals
}

// NewSignalRepository constructs a SignalRepository.
func NewSignalRepository() *SignalRepository {
	return &SignalRepository{records: make(map[recordKey]versionedSignals)}
}

// Load returns a copy of the record's signals and its version (0 when absent).
func (r *SignalRepository) Load(_ context.Context, organizationID, recordID string) (signal.SignalSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[recordKey{organizationID, recordID}]
	if !ok {
		return signal.SignalSet{}, nil
	}
	out := make([]signal.ExtractedSignal, len(rec.signals))
	copy(out, rec.signals)
	return signal.SignalSet{Signals: out, Version: rec.version}, nil
}

// CompareAndSwap replaces the record's signals if its version equals expectedVersion.
func (r *SignalRepository) CompareAndSwap(
	_ context.Context,
	organizationID, recordID string,
	expectedVersion int64,
	signals []signal.ExtractedSignal,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recordKey{organizationID, recordID}
	if r.records[key].version != expectedVersion {
		return signal.ErrVersionConflict
	}
	stored := make([]signal.ExtractedSignal, len(signals))
	copy(stored, signals)
	r.records[key] = versionedSignals{signals: stored, version: expectedVersion + 1}
	return nil
}

// Delete empties the record and bumps its version, so a swap based on a
// pre-delete Load fails.
func (r *SignalRepository) Delete(_ context.Context, organizationID, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recordKey{organizationID, recordID}
	rec, ok := r.records[key]
	if !ok {
		return nil
	}
	r.records[key] = versionedSignals{version: rec.version + 1}
	return nil
}

// Ping always succeeds.
func (r *SignalRepository) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *SignalRepository) Close() error { return nil }
