package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

func TestClockNowIsUTCMicroseconds(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.Zero(t, got.Nanosecond()%int(time.Microsecond))
	require.True(t, got.After(before) && got.Before(after), "got %v outside [%v, %v]", got, before, after)
}

func TestClockDrivesRawExpiry(t *testing.T) {
	t.Parallel()

	clk := New()
	fetched := clk.Now()
	rec := signal.RawScrapeRecord{ExpiresAt: fetched.Add(7 * 24 * time.Hour)}
	require.False(t, rec.Expired(clk.Now()))

	stale := signal.RawScrapeRecord{ExpiresAt: fetched}
	require.True(t, stale.Expired(clk.Now()))
}
