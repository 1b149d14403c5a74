// Package ingest feeds scrapes delivered on a Pub/Sub subscription into the
// orchestration service.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-signal-distiller/internal/logging"
	"github.com/JakeFAU/lead-signal-distiller/internal/service"
	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// Processor runs one scrape through the pipeline.
type Processor interface {
	ProcessAndStore(ctx context.Context, in signal.ScrapeInput) (service.Result, error)
}

// Receiver delivers messages until ctx is done. *pubsub.Subscriber implements it.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Decision tells the subscription what to do with a message.
type Decision int

// Decisions.
const (
	// Ack removes the message from the subscription.
	Ack Decision = iota
	// Nack redelivers the message later.
	Nack
)

// Consumer decodes ScrapeInput messages and processes them.
type Consumer struct {
	proc   Processor
	logger *zap.Logger
}

// New constructs a Consumer. logger may be nil.
func New(proc Processor, logger *zap.Logger) *Consumer {
	return &Consumer{proc: proc, logger: logging.Named(logger, "ingest")}
}

// Run receives from r until ctx is done.
func (c *Consumer) Run(ctx context.Context, r Receiver) error {
	err := r.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if c.Handle(ctx, m.ID, m.Data, m.Attributes) == Ack {
			m.Ack()
			return
		}
		m.Nack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive scrapes: %w", err)
	}
	return nil
}

// Handle processes one message body. Undecodable messages and permanent
// failures are acked so they are not redelivered forever; retryable
// failures are nacked.
func (c *Consumer) Handle(ctx context.Context, id string, data []byte, attrs map[string]string) Decision {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(attrs))
	logger := c.logger.With(zap.String("message_id", id))

	var in signal.ScrapeInput
	if err := json.Unmarshal(data, &in); err != nil {
		logger.Warn("dropping undecodable scrape", zap.Error(err))
		return Ack
	}
	logger = logger.With(logging.Organization(in.OrganizationID), logging.Record(in.RecordID))

	res, err := c.proc.ProcessAndStore(ctx, in)
	switch {
	case err == nil:
		logger.Debug("scrape processed",
			logging.Stage(string(res.Stage)),
			zap.Int("new_signals", res.NewSignals),
		)
		return Ack
	case signal.Retryable(err):
		logger.Warn("scrape will be redelivered",
			zap.String("kind", signal.Kind(err)),
			zap.Error(err),
		)
		return Nack
	default:
		logger.Error("dropping scrape",
			logging.Stage(string(res.Stage)),
			zap.String("kind", signal.Kind(err)),
			zap.Error(err),
		)
		return Ack
	}
}
