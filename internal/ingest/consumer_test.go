package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lead-signal-distiller/internal/service"
	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

type fakeProcessor struct {
	err  error
	seen []signal.ScrapeInput
}

func (f *fakeProcessor) ProcessAndStore(_ context.Context, in signal.ScrapeInput) (service.Result, error) {
	f.seen = append(f.seen, in)
	if f.err != nil {
		return service.Result{Stage: service.StageFailed}, f.err
	}
	return service.Result{Stage: service.StageComplete, NewSignals: 1}, nil
}

const scrapeJSON = `{"organization_id":"org-1","industry_id":"hvac","record_id":"rec-1",` +
	`"url":"https://acme.example","cleaned_content":"We are hiring",` +
	`"metadata":{"title":"Acme","platform":"website","fetched_at":"2026-03-01T12:00:00Z"},"platform":"website"}`

func TestConsumer_Handle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		err  error
		want Decision
		seen int
	}{
		{name: "processed", data: scrapeJSON, want: Ack, seen: 1},
		{name: "undecodable", data: "{not json", want: Ack, seen: 0},
		{
			name: "rate limited is redelivered",
			data: scrapeJSON,
			err:  &signal.RateLimitError{OrganizationID: "org-1", Limit: 1, RetryAfter: time.Second},
			want: Nack,
			seen: 1,
		},
		{
			name: "store unavailable is redelivered",
			data: scrapeJSON,
			err:  signal.Unavailable("append signals", errors.New("connection refused")),
			want: Nack,
			seen: 1,
		},
		{
			name: "catalog not found is dropped",
			data: scrapeJSON,
			err:  &signal.CatalogNotFoundError{OrganizationID: "org-1", IndustryID: "hvac"},
			want: Ack,
			seen: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			proc := &fakeProcessor{err: tt.err}
			got := New(proc, nil).Handle(context.Background(), "m-1", []byte(tt.data), nil)
			require.Equal(t, tt.want, got)
			require.Len(t, proc.seen, tt.seen)
		})
	}
}

func TestConsumer_HandleDecodesInput(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{}
	New(proc, nil).Handle(context.Background(), "m-1", []byte(scrapeJSON), map[string]string{"source": "crawler"})
	require.Len(t, proc.seen, 1)
	in := proc.seen[0]
	require.Equal(t, "org-1", in.OrganizationID)
	require.Equal(t, "hvac", in.IndustryID)
	require.Equal(t, "We are hiring", in.CleanedContent)
	require.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), in.Metadata.FetchedAt)
}

type fakeReceiver struct {
	err error
}

func (f fakeReceiver) Receive(ctx context.Context, _ func(context.Context, *pubsub.Message)) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestConsumer_Run(t *testing.T) {
	t.Parallel()

	c := New(&fakeProcessor{}, nil)
	boom := errors.New("subscription deleted")
	require.ErrorIs(t, c.Run(context.Background(), fakeReceiver{err: boom}), boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx, fakeReceiver{}))
}
