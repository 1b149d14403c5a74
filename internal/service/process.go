package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-signal-distiller/internal/logging"
	"github.com/JakeFAU/lead-signal-distiller/internal/metrics"
	"github.com/JakeFAU/lead-signal-distiller/internal/publisher"
	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
	"github.com/JakeFAU/lead-signal-distiller/internal/storage"
)

// Stage is the furthest point a scrape reached in processing.
type Stage string

// Processing stages.
const (
	StageReceived         Stage = "received"
	StageAccepted         Stage = "accepted"
	StageRejected         Stage = "rejected"
	StageDistilled        Stage = "distilled"
	StageSignalsPersisted Stage = "signals_persisted"
	StageFailed           Stage = "failed"
	StageComplete         Stage = "complete"
)

// Result reports what ProcessAndStore did.
type Result struct {
	OrganizationID   string                   `json:"organization_id"`
	RecordID         string                   `json:"record_id"`
	Stage            Stage                    `json:"stage"`
	Signals          []signal.ExtractedSignal `json:"signals"`
	NewSignals       int                      `json:"new_signals"`
	RecordSignals    int                      `json:"record_signals"`
	LeadScore        int                      `json:"lead_score"`
	LeadScoreDelta   int                      `json:"lead_score_delta"`
	StorageReduction signal.StorageReduction  `json:"storage_reduction"`
	AppendAttempts   int                      `json:"append_attempts,omitempty"`
	RawRecordID      string                   `json:"raw_record_id,omitempty"`
	RawWriteError    string                   `json:"raw_write_error,omitempty"`
	PublishError     string                   `json:"publish_error,omitempty"`
	Warnings         []string                 `json:"warnings,omitempty"`
}

// ProcessAndStore runs one scrape through the pipeline:
// rate limit, distill, append signals, write the raw scrape, invalidate caches.
//
// The raw write and event publish are best effort; their failures are
// reported in the Result and never undo persisted signals. On error the
// returned Result still carries the stage reached.
func (s *Service) ProcessAndStore(ctx context.Context, in signal.ScrapeInput) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "service.ProcessAndStore")
	defer span.End()
	span.SetAttributes(
		attribute.String("organization_id", in.OrganizationID),
		attribute.String("record_id", in.RecordID),
		attribute.String("industry_id", in.IndustryID),
	)

	res, err := s.processAndStore(ctx, in)
	span.SetAttributes(attribute.String("stage", string(res.Stage)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, signal.Kind(err))
		metrics.ObserveScrape(signal.Kind(err))
		return res, err
	}
	metrics.ObserveScrape("ok")
	return res, nil
}

func (s *Service) processAndStore(ctx context.Context, in signal.ScrapeInput) (Result, error) {
	res := Result{OrganizationID: in.OrganizationID, RecordID: in.RecordID, Stage: StageReceived}
	logger := s.logger.With(
		logging.Organization(in.OrganizationID),
		logging.Record(in.RecordID),
		logging.Industry(in.IndustryID),
	)

	if err := in.Validate(); err != nil {
		res.Stage = StageRejected
		return res, fmt.Errorf("process scrape: %w", err)
	}
	if err := s.limiter.CheckAndIncrement(in.OrganizationID); err != nil {
		res.Stage = StageRejected
		logger.Info("scrape rejected", logging.Stage(string(res.Stage)), zap.Error(err))
		return res, fmt.Errorf("process scrape: %w", err)
	}
	res.Stage = StageAccepted

	entry, err := s.catalogEntry(ctx, in.OrganizationID, in.IndustryID)
	if err != nil {
		res.Stage = StageFailed
		return res, fmt.Errorf("process scrape: %w", err)
	}

	out, err := s.engine.Distill(entry, in)
	if err != nil {
		res.Stage = StageFailed
		return res, fmt.Errorf("process scrape: %w", err)
	}
	res.Stage = StageDistilled
	res.Signals = out.Signals
	res.StorageReduction = out.Reduction
	res.Warnings = out.Warnings
	for _, w := range out.Warnings {
		logger.Warn("distillation warning", zap.String("warning", w))
	}
	for _, sig := range out.Signals {
		metrics.ObserveSignal(string(sig.Category))
	}
	metrics.ObserveReduction(out.Reduction.RawBytes, out.Reduction.SignalBytes, out.Reduction.ReductionPercent)
	if len(out.Signals) > 0 && out.Reduction.ReductionPercent < s.cfg.ReductionTargetPercent {
		logger.Warn("storage reduction below target",
			zap.Float64("reduction_percent", out.Reduction.ReductionPercent),
			zap.Float64("target_percent", s.cfg.ReductionTargetPercent),
		)
	}

	var current []signal.ExtractedSignal
	if len(out.Signals) > 0 {
		appended, err := s.appendSignals(ctx, in.OrganizationID, in.RecordID, out.Signals)
		if err != nil {
			res.Stage = StageFailed
			logger.Error("append signals failed", logging.Stage(string(res.Stage)), zap.Error(err))
			return res, fmt.Errorf("process scrape: %w", err)
		}
		current = appended.Signals
		res.NewSignals = appended.Added
		res.AppendAttempts = appended.Attempts
		previous := appended.Signals[:len(appended.Signals)-appended.Added]
		res.LeadScore = s.scorer.Score(current)
		res.LeadScoreDelta = res.LeadScore - s.scorer.Score(previous)
	}
	res.Stage = StageSignalsPersisted

	s.writeRaw(ctx, in, &res, logger)

	if len(out.Signals) == 0 {
		// Nothing was written; the score is the record's standing score.
		current, err = s.GetSignals(ctx, in.OrganizationID, in.RecordID)
		if err != nil {
			res.Stage = StageFailed
			return res, fmt.Errorf("process scrape: read lead score: %w", err)
		}
		res.LeadScore = s.scorer.Score(current)
	}
	res.RecordSignals = len(current)

	if res.NewSignals > 0 {
		s.publishAppended(ctx, in, current, &res, logger)
	}

	res.Stage = StageComplete
	logger.Info("scrape processed",
		logging.Stage(string(res.Stage)),
		zap.Int("signals", len(res.Signals)),
		zap.Int("new_signals", res.NewSignals),
		zap.Int("lead_score", res.LeadScore),
		zap.Float64("reduction_percent", res.StorageReduction.ReductionPercent),
	)
	return res, nil
}

// appendSignals persists signals and invalidates the record's cache entry
// before returning, so no later read can observe the pre-append list.
func (s *Service) appendSignals(
	ctx context.Context,
	organizationID, recordID string,
	sigs []signal.ExtractedSignal,
) (storage.AppendResult, error) {
	ctx, span := s.tracer.Start(ctx, "store.AppendSignals")
	defer span.End()

	var appended storage.AppendResult
	err := s.storeCall(ctx, "append signals", func(ctx context.Context) error {
		var err error
		appended, err = s.signals.AppendSignals(ctx, organizationID, recordID, sigs)
		return err
	})
	// Invalidate even on failure: a timed-out write may still have landed.
	s.signalCache.Invalidate(signalsKey(organizationID, recordID))
	if err != nil {
		span.RecordError(err)
		return storage.AppendResult{}, err
	}
	span.SetAttributes(attribute.Int("attempts", appended.Attempts), attribute.Int("added", appended.Added))
	return appended, nil
}

func (s *Service) writeRaw(ctx context.Context, in signal.ScrapeInput, res *Result, logger *zap.Logger) {
	rec, err := s.rawRecord(in)
	if err == nil {
		err = s.storeCall(ctx, "write raw scrape", func(ctx context.Context) error {
			return s.raw.WriteRawScrape(ctx, rec)
		})
	}
	metrics.ObserveRawWrite(err)
	if err != nil {
		res.RawWriteError = err.Error()
		logger.Warn("raw scrape write failed", zap.Error(err))
		return
	}
	res.RawRecordID = rec.ID
}

func (s *Service) rawRecord(in signal.ScrapeInput) (signal.RawScrapeRecord, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return signal.RawScrapeRecord{}, fmt.Errorf("raw record id: %w", err)
	}
	sum := s.hasher.HashContent(in.RawHTML, in.CleanedContent)
	meta := in.Metadata
	if meta.Platform == "" {
		meta.Platform = in.SourcePlatform()
	}
	return signal.RawScrapeRecord{
		ID:             id,
		RecordID:       in.RecordID,
		OrganizationID: in.OrganizationID,
		URL:            in.URL,
		RawHTML:        in.RawHTML,
		CleanedContent: in.CleanedContent,
		Metadata:       meta,
		ContentHash:    sum,
		ExpiresAt:      in.Metadata.FetchedAt.Add(s.cfg.RawRetention),
	}, nil
}

func (s *Service) publishAppended(
	ctx context.Context,
	in signal.ScrapeInput,
	current []signal.ExtractedSignal,
	res *Result,
	logger *zap.Logger,
) {
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	ids := make([]string, 0, res.NewSignals)
	for _, sig := range current[len(current)-res.NewSignals:] {
		ids = append(ids, sig.ID)
	}
	event := publisher.SignalsAppended{
		OrganizationID: in.OrganizationID,
		RecordID:       in.RecordID,
		SignalIDs:      ids,
		TotalSignals:   len(current),
		LeadScore:      res.LeadScore,
		OccurredAt:     s.clock.Now(),
	}
	pubCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if _, err := s.publisher.Publish(pubCtx, s.cfg.Topic, event); err != nil {
		res.PublishError = err.Error()
		logger.Warn("publish signals appended failed", zap.Error(err))
	}
}
