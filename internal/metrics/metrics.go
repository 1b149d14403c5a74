// Package metrics exposes Prometheus collectors for the distiller service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distiller_scrapes_total",
			Help: "Total number of scrapes processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	signalsExtractedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distiller_signals_extracted_total",
			Help: "Total number of signals extracted, labeled by category.",
		},
		[]string{"category"},
	)

	storageReductionPercent = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distiller_storage_reduction_percent",
			Help:    "Histogram of raw-to-signal size reduction per scrape.",
			Buckets: []float64{50, 80, 90, 95, 98, 99, 99.5, 99.9, 100},
		},
	)

	rawBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distiller_raw_bytes_total",
			Help: "Total raw scrape bytes received.",
		},
	)

	signalBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distiller_signal_bytes_total",
			Help: "Total serialized signal bytes produced.",
		},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distiller_rate_limited_total",
			Help: "Total number of operations rejected by the rate limiter.",
		},
	)

	appendConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distiller_append_conflicts_total",
			Help: "Total optimistic append conflicts, labeled by whether the retry budget was exhausted.",
		},
		[]string{"exhausted"},
	)

	cacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distiller_cache_requests_total",
			Help: "Total read-through cache lookups, labeled by cache and result.",
		},
		[]string{"cache", "result"},
	)

	rawWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distiller_raw_writes_total",
			Help: "Total raw scrape writes, labeled by status.",
		},
		[]string{"status"},
	)

	rawPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distiller_raw_purged_total",
			Help: "Total expired raw scrape records purged.",
		},
	)

	storeCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "distiller_store_call_duration_seconds",
			Help:    "Histogram of durable store call latencies, labeled by operation and status.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"op", "status"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distiller_http_requests_total",
			Help: "Total number of operational HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "distiller_http_request_duration_seconds",
			Help:    "Histogram of operational HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrape records the outcome of one processAndStore call.
func ObserveScrape(outcome string) {
	scrapesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSignal counts one extracted signal.
func ObserveSignal(category string) {
	if category == "" {
		category = "uncategorized"
	}
	signalsExtractedTotal.WithLabelValues(category).Inc()
}

// ObserveReduction records raw and signal sizes for one scrape.
func ObserveReduction(rawBytes, signalBytes int, percent float64) {
	if rawBytes > 0 {
		rawBytesTotal.Add(float64(rawBytes))
		storageReductionPercent.Observe(percent)
	}
	if signalBytes > 0 {
		signalBytesTotal.Add(float64(signalBytes))
	}
}

// ObserveRateLimited counts a rejected operation.
func ObserveRateLimited() {
	rateLimitedTotal.Inc()
}

// ObserveAppendConflict counts an optimistic append conflict.
func ObserveAppendConflict(exhausted bool) {
	appendConflictsTotal.WithLabelValues(strconv.FormatBool(exhausted)).Inc()
}

// ObserveCacheRequest counts a read-through cache lookup.
func ObserveCacheRequest(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequestsTotal.WithLabelValues(cache, result).Inc()
}

// ObserveRawWrite counts a raw scrape write attempt.
func ObserveRawWrite(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	rawWritesTotal.WithLabelValues(status).Inc()
}

// ObserveRawPurged counts purged raw records.
func ObserveRawPurged(n int) {
	if n > 0 {
		rawPurgedTotal.Add(float64(n))
	}
}

// ObserveStoreCall records the latency of a store operation.
func ObserveStoreCall(op string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeCallDurationSeconds.WithLabelValues(op, status).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
