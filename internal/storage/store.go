// Package storage implements the durable signal tier on top of a versioned
// SignalRepository. Backends live in the memory, postgres, sqlite and gcs
// subpackages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-signal-distiller/internal/logging"
	"github.com/JakeFAU/lead-signal-distiller/internal/metrics"
	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// SignalStore appends signals with an optimistic read-modify-write loop.
type SignalStore struct {
	repo   signal.SignalRepository
	policy RetryPolicy
	logger *zap.Logger
}

// Option customizes a SignalStore.
type Option func(*SignalStore)

// WithRetryPolicy overrides the append retry budget.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *SignalStore) { s.policy = p.normalized() }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SignalStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSignalStore wraps repo.
func NewSignalStore(repo signal.SignalRepository, opts ...Option) *SignalStore {
	s := &SignalStore{
		repo:   repo,
		policy: DefaultRetryPolicy(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("signal_store")
	return s
}

// AppendResult reports the outcome of an append.
type AppendResult struct {
	Signals  []signal.ExtractedSignal
	Added    int
	Version  int64
	Attempts int
}

// AppendSignals adds incoming to the record's signal list. Signals whose ID is
// already stored are skipped, so replays are no-ops. A version conflict
// reloads and retries; when the budget is spent a *signal.StoreConflictError
// is returned and nothing is dropped silently.
func (s *SignalStore) AppendSignals(
	ctx context.Context,
	organizationID, recordID string,
	incoming []signal.ExtractedSignal,
) (AppendResult, error) {
	start := time.Now()
	res, err := s.appendSignals(ctx, organizationID, recordID, incoming)
	metrics.ObserveStoreCall("append_signals", err, time.Since(start))
	return res, err
}

func (s *SignalStore) appendSignals(
	ctx context.Context,
	organizationID, recordID string,
	incoming []signal.ExtractedSignal,
) (AppendResult, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.repo.Load(ctx, organizationID, recordID)
		if err != nil {
			return AppendResult{}, signal.Unavailable("load signals", err)
		}

		merged, added := merge(current.Signals, incoming)
		if added == 0 {
			return AppendResult{Signals: current.Signals, Version: current.Version, Attempts: attempt}, nil
		}

		err = s.repo.CompareAndSwap(ctx, organizationID, recordID, current.Version, merged)
		if err == nil {
			return AppendResult{Signals: merged, Added: added, Version: current.Version + 1, Attempts: attempt}, nil
		}
		if !errors.Is(err, signal.ErrVersionConflict) {
			return AppendResult{}, signal.Unavailable("append signals", err)
		}

		exhausted := attempt >= s.policy.MaxAttempts
		metrics.ObserveAppendConflict(exhausted)
		s.logger.Debug("append version conflict",
			logging.Organization(organizationID),
			logging.Record(recordID),
			zap.Int("attempt", attempt),
			zap.Bool("exhausted", exhausted),
		)
		if exhausted {
			return AppendResult{}, &signal.StoreConflictError{
				OrganizationID: organizationID,
				RecordID:       recordID,
				Attempts:       attempt,
			}
		}
		if err := sleep(ctx, s.policy.Backoff(attempt)); err != nil {
			return AppendResult{}, signal.Unavailable("append signals", fmt.Errorf("backoff: %w", err))
		}
	}
}

// GetSignals returns the record's signals; an unknown record yields an empty list.
func (s *SignalStore) GetSignals(ctx context.Context, organizationID, recordID string) ([]signal.ExtractedSignal, error) {
	start := time.Now()
	set, err := s.repo.Load(ctx, organizationID, recordID)
	metrics.ObserveStoreCall("get_signals", err, time.Since(start))
	if err != nil {
		return nil, signal.Unavailable("get signals", err)
	}
	if set.Signals == nil {
		return []signal.ExtractedSignal{}, nil
	}
	return set.Signals, nil
}

// QueryByPlatform returns the record's signals observed on platform.
func (s *SignalStore) QueryByPlatform(
	ctx context.Context,
	organizationID, recordID, platform string,
) ([]signal.ExtractedSignal, error) {
	all, err := s.GetSignals(ctx, organizationID, recordID)
	if err != nil {
		return nil, err
	}
	return FilterByPlatform(all, platform), nil
}

// DeleteSignals removes every signal of the record. Deleting an unknown record is not an error.
func (s *SignalStore) DeleteSignals(ctx context.Context, organizationID, recordID string) error {
	start := time.Now()
	err := s.repo.Delete(ctx, organizationID, recordID)
	metrics.ObserveStoreCall("delete_signals", err, time.Since(start))
	if err != nil && !errors.Is(err, signal.ErrNotFound) {
		return signal.Unavailable("delete signals", err)
	}
	return nil
}

// Ping checks the repository.
func (s *SignalStore) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return signal.Unavailable("ping signal store", err)
	}
	return nil
}

// Close releases the repository.
func (s *SignalStore) Close() error {
	if err := s.repo.Close(); err != nil {
		return fmt.Errorf("close signal repository: %w", err)
	}
	return nil
}

// FilterByPlatform keeps signals whose source platform equals platform.
func FilterByPlatform(signals []signal.ExtractedSignal, platform string) []signal.ExtractedSignal {
	out := make([]signal.ExtractedSignal, 0, len(signals))
	for _, sig := range signals {
		if sig.SourcePlatform == platform {
			out = append(out, sig)
		}
	}
	return out
}

// merge appends the incoming signals not already present by ID, preserving order.
func merge(current, incoming []signal.ExtractedSignal) ([]signal.ExtractedSignal, int) {
	seen := make(map[string]struct{}, len(current)+len(incoming))
	for _, sig := range current {
		seen[sig.ID] = struct{}{}
	}
	merged := make([]signal.ExtractedSignal, 0, len(current)+len(incoming))
	merged = append(merged, current...)
	added := 0
	for _, sig := range incoming {
		if _, ok := seen[sig.ID]; ok {
			continue
		}
		seen[sig.ID] = struct{}{}
		merged = append(merged, sig)
		added++
	}
	return merged, added
}
