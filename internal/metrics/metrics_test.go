package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveHelpersIncrementCollectors(t *testing.T) {
	before := testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("signals", "hit"))
	ObserveCacheRequest("signals", true)
	require.InDelta(t, before+1, testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("signals", "hit")), 1e-9)

	before = testutil.ToFloat64(rawWritesTotal.WithLabelValues("error"))
	ObserveRawWrite(errors.New("gcs down"))
	require.InDelta(t, before+1, testutil.ToFloat64(rawWritesTotal.WithLabelValues("error")), 1e-9)

	before = testutil.ToFloat64(signalsExtractedTotal.WithLabelValues("uncategorized"))
	ObserveSignal("")
	require.InDelta(t, before+1, testutil.ToFloat64(signalsExtractedTotal.WithLabelValues("uncategorized")), 1e-9)

	before = testutil.ToFloat64(rawPurgedTotal)
	ObserveRawPurged(0)
	ObserveRawPurged(3)
	require.InDelta(t, before+3, testutil.ToFloat64(rawPurgedTotal), 1e-9)

	before = testutil.ToFloat64(appendConflictsTotal.WithLabelValues("true"))
	ObserveAppendConflict(true)
	require.InDelta(t, before+1, testutil.ToFloat64(appendConflictsTotal.WithLabelValues("true")), 1e-9)

	before = testutil.ToFloat64(rawBytesTotal)
	ObserveReduction(1000, 10, 99)
	require.InDelta(t, before+1000, testutil.ToFloat64(rawBytesTotal), 1e-9)

	ObserveStoreCall("append", nil, 5*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(storeCallDurationSeconds))
}

func TestMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "503"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.InDelta(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "503")), 1e-9)
}
