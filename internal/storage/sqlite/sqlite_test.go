package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSignalRepository_VersionedWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := NewSignalRepository(openMemory(t))
	require.NoError(t, err)

	set, err := repo.Load(ctx, "org", "rec")
	require.NoError(t, err)
	require.Zero(t, set.Version)

	sigs := []signal.ExtractedSignal{{
		ID:         "a",
		Label:      "hiring_signal",
		Category:   signal.CategoryHiring,
		Confidence: 80,
		DetectedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, repo.CompareAndSwap(ctx, "org", "rec", 0, sigs))
	require.ErrorIs(t, repo.CompareAndSwap(ctx, "org", "rec", 0, sigs), signal.ErrVersionConflict)

	set, err = repo.Load(ctx, "org", "rec")
	require.NoError(t, err)
	require.Equal(t, int64(1), set.Version)
	require.Equal(t, sigs, set.Signals)

	sigs = append(sigs, signal.ExtractedSignal{ID: "b", Label: "funding_signal"})
	require.NoError(t, repo.CompareAndSwap(ctx, "org", "rec", 1, sigs))
	require.ErrorIs(t, repo.CompareAndSwap(ctx, "org", "rec", 1, sigs), signal.ErrVersionConflict)

	require.NoError(t, repo.Delete(ctx, "org", "rec"))
	set, err = repo.Load(ctx, "org", "rec")
	require.NoError(t, err)
	require.Equal(t, int64(3), set.Version)
	require.Empty(t, set.Signals)
	require.ErrorIs(t, repo.CompareAndSwap(ctx, "org", "rec", 2, sigs), signal.ErrVersionConflict)
	require.NoError(t, repo.CompareAndSwap(ctx, "org", "rec", 3, sigs[:1]))
	require.NoError(t, repo.Ping(ctx))
}

func TestRawStore_ExpiryAndPurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store, err := NewRawStore(openMemory(t), false, func() time.Time { return now })
	require.NoError(t, err)

	live := signal.RawScrapeRecord{
		ID:             "live",
		RecordID:       "rec",
		OrganizationID: "org",
		URL:            "https://acme.example",
		CleanedContent: "hello",
		Metadata:       signal.ScrapeMetadata{Title: "Acme", Platform: "website", FetchedAt: now},
		ContentHash:    "h",
		ExpiresAt:      now.Add(time.Hour),
	}
	dead := live
	dead.ID = "dead"
	dead.ExpiresAt = now.Add(-time.Second)

	require.NoError(t, store.WriteRawScrape(ctx, live))
	require.NoError(t, store.WriteRawScrape(ctx, dead))

	got, err := store.GetRawScrape(ctx, "org", "live")
	require.NoError(t, err)
	require.Equal(t, live, got)

	_, err = store.GetRawScrape(ctx, "org", "dead")
	require.ErrorIs(t, err, signal.ErrNotFound)

	n, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	require.Zero(t, n)
}
