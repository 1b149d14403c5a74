package signal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKindClassifiesTypedErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		kind string
	}{
		{"rate limited", &RateLimitError{OrganizationID: "org", Limit: 1, Window: time.Minute}, KindRateLimited},
		{"catalog", &CatalogNotFoundError{OrganizationID: "org", IndustryID: "hvac"}, KindCatalogNotFound},
		{"conflict", &StoreConflictError{OrganizationID: "org", RecordID: "r", Attempts: 3}, KindStoreConflict},
		{"unavailable", &StoreUnavailableError{Op: "load", Err: errors.New("boom")}, KindStoreUnavailable},
		{"wrapped unavailable", fmt.Errorf("process: %w", Unavailable("load", errors.New("dial"))), KindStoreUnavailable},
		{"invalid", fmt.Errorf("validate: %w", ErrInvalidInput), KindInvalidInput},
		{"mismatch", ErrCatalogMismatch, KindInvalidInput},
		{"canceled", context.Canceled, KindCanceled},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.kind, Kind(tc.err), tc.name)
	}
	require.Empty(t, Kind(nil))
}

func TestUnavailableKeepsSpecificKinds(t *testing.T) {
	t.Parallel()

	conflict := &StoreConflictError{Attempts: 3}
	require.Same(t, conflict, Unavailable("append", conflict))
	require.ErrorIs(t, Unavailable("load", ErrNotFound), ErrNotFound)
	require.NoError(t, Unavailable("load", nil))

	timeout := Unavailable("load", context.DeadlineExceeded)
	require.ErrorIs(t, timeout, ErrStoreUnavailable)
	require.ErrorIs(t, timeout, context.DeadlineExceeded)
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	require.True(t, Retryable(&RateLimitError{}))
	require.True(t, Retryable(&StoreConflictError{}))
	require.True(t, Retryable(Unavailable("ping", errors.New("down"))))
	require.False(t, Retryable(&CatalogNotFoundError{}))
	require.False(t, Retryable(ErrInvalidInput))
}

func TestRawScrapeRecordExpired(t *testing.T) {
	t.Parallel()

	expires := time.Unix(1000, 0)
	rec := RawScrapeRecord{ExpiresAt: expires}
	require.False(t, rec.Expired(expires.Add(-time.Second)))
	require.True(t, rec.Expired(expires))
	require.True(t, rec.Expired(expires.Add(time.Second)))
}
