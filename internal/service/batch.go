package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-signal-distiller/internal/logging"
	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// BatchResult is the outcome of one batch item, at the item's input index.
type BatchResult struct {
	Index     int    `json:"index"`
	RecordID  string `json:"record_id"`
	Result    Result `json:"result"`
	Err       error  `json:"-"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OK reports whether the item succeeded.
func (r BatchResult) OK() bool { return r.Err == nil }

// BatchProcess runs inputs sequentially. A failing or panicking item is
// recorded and the batch continues. When ctx is canceled the remaining items
// are marked canceled without being attempted; work already persisted stays.
// The result has one entry per input, in input order.
func (s *Service) BatchProcess(ctx context.Context, inputs []signal.ScrapeInput) []BatchResult {
	ctx, span := s.tracer.Start(ctx, "service.BatchProcess")
	defer span.End()
	span.SetAttributes(attribute.Int("items", len(inputs)))

	results := make([]BatchResult, len(inputs))
	failed := 0
	for i, in := range inputs {
		results[i] = BatchResult{Index: i, RecordID: in.RecordID}
		if err := ctx.Err(); err != nil {
			results[i].setErr(fmt.Errorf("batch item %d not processed: %w", i, err))
			failed++
			continue
		}
		res, err := s.processItem(ctx, in)
		results[i].Result = res
		if err != nil {
			results[i].setErr(err)
			failed++
		}
	}

	span.SetAttributes(attribute.Int("failed", failed))
	s.logger.Info("batch processed", zap.Int("items", len(inputs)), zap.Int("failed", failed))
	return results
}

func (r *BatchResult) setErr(err error) {
	r.Err = err
	r.ErrorKind = signal.Kind(err)
	r.Error = err.Error()
}

func (s *Service) processItem(ctx context.Context, in signal.ScrapeInput) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("batch item panicked",
				logging.Organization(in.OrganizationID),
				logging.Record(in.RecordID),
				zap.Any("panic", p),
			)
			res.Stage = StageFailed
			err = fmt.Errorf("batch item panicked: %v", p)
		}
	}()
	return s.ProcessAndStore(ctx, in)
}
