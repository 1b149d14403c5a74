package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/JakeFAU/lead-signal-distiller/internal/logging"
	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
	"github.com/JakeFAU/lead-signal-distiller/internal/storage"
)

// Analytics aggregates a record's current signals.
type Analytics struct {
	OrganizationID    string                   `json:"organization_id"`
	RecordID          string                   `json:"record_id"`
	TotalSignals      int                      `json:"total_signals"`
	AverageConfidence float64                  `json:"average_confidence"`
	SignalsByPlatform map[string]int           `json:"signals_by_platform"`
	SignalsByCategory map[signal.Category]int  `json:"signals_by_category"`
	TopSignals        []signal.ExtractedSignal `json:"top_signals"`
	LeadScore         int                      `json:"lead_score"`
}

// GetSignals returns the record's durable signals through the read-through
// cache. An unknown record has no signals. The returned slice is the
// caller's to modify.
func (s *Service) GetSignals(ctx context.Context, organizationID, recordID string) ([]signal.ExtractedSignal, error) {
	sigs, err := s.signalCache.GetOrLoad(ctx, signalsKey(organizationID, recordID),
		func(ctx context.Context) ([]signal.ExtractedSignal, error) {
			var sigs []signal.ExtractedSignal
			err := s.storeCall(ctx, "get signals", func(ctx context.Context) error {
				var err error
				sigs, err = s.signals.GetSignals(ctx, organizationID, recordID)
				return err
			})
			return sigs, err
		})
	if err != nil {
		return nil, fmt.Errorf("get signals: %w", err)
	}
	out := make([]signal.ExtractedSignal, len(sigs))
	copy(out, sigs)
	return out, nil
}

// QueryByPlatform returns the record's signals observed on platform.
func (s *Service) QueryByPlatform(
	ctx context.Context,
	organizationID, recordID, platform string,
) ([]signal.ExtractedSignal, error) {
	sigs, err := s.GetSignals(ctx, organizationID, recordID)
	if err != nil {
		return nil, err
	}
	return storage.FilterByPlatform(sigs, platform), nil
}

// GetLeadScore scores the record's current signals.
func (s *Service) GetLeadScore(ctx context.Context, organizationID, recordID string) (int, error) {
	sigs, err := s.GetSignals(ctx, organizationID, recordID)
	if err != nil {
		return 0, err
	}
	return s.scorer.Score(sigs), nil
}

// GetAnalytics aggregates the record's current signals.
func (s *Service) GetAnalytics(ctx context.Context, organizationID, recordID string) (Analytics, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetAnalytics")
	defer span.End()

	sigs, err := s.GetSignals(ctx, organizationID, recordID)
	if err != nil {
		span.RecordError(err)
		return Analytics{}, err
	}
	a := Analytics{
		OrganizationID:    organizationID,
		RecordID:          recordID,
		TotalSignals:      len(sigs),
		SignalsByPlatform: make(map[string]int),
		SignalsByCategory: make(map[signal.Category]int),
		TopSignals:        topSignals(sigs, s.cfg.TopSignals),
		LeadScore:         s.scorer.Score(sigs),
	}
	total := 0
	for _, sig := range sigs {
		total += sig.Confidence
		a.SignalsByPlatform[sig.SourcePlatform]++
		a.SignalsByCategory[sig.Category]++
	}
	if len(sigs) > 0 {
		a.AverageConfidence = float64(total) / float64(len(sigs))
	}
	return a, nil
}

// topSignals orders by confidence, then recency, then label, and keeps n.
func topSignals(sigs []signal.ExtractedSignal, n int) []signal.ExtractedSignal {
	sorted := make([]signal.ExtractedSignal, len(sigs))
	copy(sorted, sigs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.DetectedAt.Equal(b.DetectedAt) {
			return a.DetectedAt.After(b.DetectedAt)
		}
		return a.Label < b.Label
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// DeleteSignals removes every signal of a record. It is an administrative
// write and counts against the organization's rate limit.
func (s *Service) DeleteSignals(ctx context.Context, organizationID, recordID string) error {
	if err := s.limiter.CheckAndIncrement(organizationID); err != nil {
		return fmt.Errorf("delete signals: %w", err)
	}
	err := s.storeCall(ctx, "delete signals", func(ctx context.Context) error {
		return s.signals.DeleteSignals(ctx, organizationID, recordID)
	})
	s.signalCache.Invalidate(signalsKey(organizationID, recordID))
	if err != nil {
		return fmt.Errorf("delete signals: %w", err)
	}
	s.logger.Info("signals deleted",
		logging.Organization(organizationID),
		logging.Record(recordID),
	)
	return nil
}

// GetRawScrape returns an unexpired raw scrape or signal.ErrNotFound.
func (s *Service) GetRawScrape(ctx context.Context, organizationID, id string) (signal.RawScrapeRecord, error) {
	var rec signal.RawScrapeRecord
	err := s.storeCall(ctx, "get raw scrape", func(ctx context.Context) error {
		var err error
		rec, err = s.raw.GetRawScrape(ctx, organizationID, id)
		return err
	})
	if err != nil {
		return signal.RawScrapeRecord{}, fmt.Errorf("get raw scrape: %w", err)
	}
	if rec.Expired(s.clock.Now()) {
		return signal.RawScrapeRecord{}, signal.ErrNotFound
	}
	return rec, nil
}
