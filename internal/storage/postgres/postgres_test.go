package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func testSignals() []signal.ExtractedSignal {
	return []signal.ExtractedSignal{{
		ID:             "sig-1",
		RecordID:       "rec-1",
		OrganizationID: "org-1",
		Label:          "hiring_signal",
		Category:       signal.CategoryHiring,
		Confidence:     80,
		SourcePlatform: "website",
		SourceURL:      "https://acme.example/careers",
		DetectedAt:     time.Unix(1700000000, 0).UTC(),
		Excerpt:        "We are hiring",
	}}
}

func TestSignalRepository_LoadMissingRowIsVersionZero(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	repo, err := NewSignalRepository(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT signals, version").
		WithArgs("org-1", "rec-1").
		WillReturnError(pgx.ErrNoRows)

	set, err := repo.Load(context.Background(), "org-1", "rec-1")
	require.NoError(t, err)
	require.Zero(t, set.Version)
	require.Empty(t, set.Signals)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSignalRepository_LoadDecodesJSONB(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	repo, err := NewSignalRepository(mock)
	require.NoError(t, err)

	payload, err := json.Marshal(testSignals())
	require.NoError(t, err)
	mock.ExpectQuery("SELECT signals, version").
		WithArgs("org-1", "rec-1").
		WillReturnRows(pgxmock.NewRows([]string{"signals", "version"}).AddRow(payload, int64(4)))

	set, err := repo.Load(context.Background(), "org-1", "rec-1")
	require.NoError(t, err)
	require.Equal(t, int64(4), set.Version)
	require.Equal(t, testSignals(), set.Signals)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSignalRepository_CompareAndSwap(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	repo, err := NewSignalRepository(mock)
	require.NoError(t, err)

	payload, err := json.Marshal(testSignals())
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO record_signals").
		WithArgs("org-1", "rec-1", payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO record_signals").
		WithArgs("org-1", "rec-1", payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("UPDATE record_signals").
		WithArgs("org-1", "rec-1", payload, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE record_signals").
		WithArgs("org-1", "rec-1", payload, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ctx := context.Background()
	require.NoError(t, repo.CompareAndSwap(ctx, "org-1", "rec-1", 0, testSignals()))
	require.ErrorIs(t, repo.CompareAndSwap(ctx, "org-1", "rec-1", 0, testSignals()), signal.ErrVersionConflict)
	require.NoError(t, repo.CompareAndSwap(ctx, "org-1", "rec-1", 1, testSignals()))
	require.ErrorIs(t, repo.CompareAndSwap(ctx, "org-1", "rec-1", 1, testSignals()), signal.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSignalRepository_ExecErrorIsNotAConflict(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	repo, err := NewSignalRepository(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE record_signals").
		WithArgs("org-1", "rec-1", pgxmock.AnyArg(), int64(2)).
		WillReturnError(errors.New("connection refused"))

	err = repo.CompareAndSwap(context.Background(), "org-1", "rec-1", 2, testSignals())
	require.Error(t, err)
	require.NotErrorIs(t, err, signal.ErrVersionConflict)

	mock.ExpectExec(`UPDATE record_signals\s+SET signals = '\[\]'::jsonb, version = version \+ 1`).
		WithArgs("org-1", "rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.Delete(context.Background(), "org-1", "rec-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRawStore_WriteGetPurge(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	now := time.Unix(1700000000, 0).UTC()
	store, err := NewRawStore(mock, true, func() time.Time { return now })
	require.NoError(t, err)

	rec := signal.RawScrapeRecord{
		ID:             "raw-1",
		RecordID:       "rec-1",
		OrganizationID: "org-1",
		URL:            "https://acme.example",
		RawHTML:        "<p>hi</p>",
		CleanedContent: "hi",
		Metadata:       signal.ScrapeMetadata{Title: "Acme", Platform: "website", FetchedAt: now},
		ContentHash:    "abc",
		ExpiresAt:      now.Add(7 * 24 * time.Hour),
	}
	meta, err := json.Marshal(rec.Metadata)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO raw_scrapes").
		WithArgs(rec.OrganizationID, rec.ID, rec.RecordID, rec.URL, rec.RawHTML, rec.CleanedContent,
			meta, rec.ContentHash, rec.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT record_id, url, raw_html").
		WithArgs("org-1", "raw-1", now).
		WillReturnRows(pgxmock.NewRows([]string{
			"record_id", "url", "raw_html", "cleaned_content", "metadata", "content_hash", "expires_at",
		}).AddRow(rec.RecordID, rec.URL, rec.RawHTML, rec.CleanedContent, meta, rec.ContentHash, rec.ExpiresAt))
	mock.ExpectQuery("SELECT record_id, url, raw_html").
		WithArgs("org-1", "gone", now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("DELETE FROM raw_scrapes").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	ctx := context.Background()
	require.NoError(t, store.WriteRawScrape(ctx, rec))

	got, err := store.GetRawScrape(ctx, "org-1", "raw-1")
	require.NoError(t, err)
	require.Equal(t, rec, got)

	_, err = store.GetRawScrape(ctx, "org-1", "gone")
	require.ErrorIs(t, err, signal.ErrNotFound)

	n, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_GetCatalogEntry(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store, err := NewCatalogStore(mock)
	require.NoError(t, err)

	defs := []byte(`[{"label":"hiring_signal","category":"hiring","weight":80,` +
		`"patterns":[{"kind":"substring","value":"we are hiring"}]}]`)
	strategy := []byte(`{"trusted_platforms":["website"]}`)

	mock.ExpectQuery("FROM signal_catalogs").
		WithArgs("org-1", "hvac").
		WillReturnRows(pgxmock.NewRows([]string{"high_value_signals", "scraping_strategy"}).AddRow(defs, strategy))
	mock.ExpectQuery("FROM signal_catalogs").
		WithArgs("org-1", "plumbing").
		WillReturnError(pgx.ErrNoRows)

	entry, err := store.GetCatalogEntry(context.Background(), "org-1", "hvac")
	require.NoError(t, err)
	require.Equal(t, "hvac", entry.IndustryID)
	require.Len(t, entry.HighValueSignals, 1)
	require.Equal(t, signal.PatternSubstring, entry.HighValueSignals[0].Patterns[0].Kind)
	require.Equal(t, []string{"website"}, entry.ScrapingStrategy.TrustedPlatforms)

	_, err = store.GetCatalogEntry(context.Background(), "org-1", "plumbing")
	require.ErrorIs(t, err, signal.ErrCatalogNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// stubPool implements only the methods the stores use.
type stubPool struct {
	pingErr error
	pings   int
	closed  bool
}

func (p *stubPool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (p *stubPool) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{err: pgx.ErrNoRows}
}

func (p *stubPool) Ping(context.Context) error {
	p.pings++
	return p.pingErr
}

func (p *stubPool) Close() { p.closed = true }

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func TestStoresNeedOnlyTheNarrowPool(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := &stubPool{}
	repo, err := NewSignalRepository(pool)
	require.NoError(t, err)
	_, err = NewRawStore(pool, false, time.Now)
	require.NoError(t, err)
	_, err = NewCatalogStore(pool)
	require.NoError(t, err)

	set, err := repo.Load(ctx, "org-1", "rec-1")
	require.NoError(t, err)
	require.Zero(t, set.Version)
	require.NoError(t, repo.Delete(ctx, "org-1", "rec-1"))
	require.NoError(t, repo.Ping(ctx))

	pool.pingErr = errors.New("connection refused")
	require.Error(t, repo.Ping(ctx))
	require.Equal(t, 2, pool.pings)

	require.NoError(t, repo.Close())
	require.True(t, pool.closed)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS record_signals").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, EnsureSchema(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}
