package service

import (
	"context"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Health is the probe view of the service.
type Health struct {
	Status            string         `json:"status"`
	StoreReachable    bool           `json:"store_reachable"`
	RawStoreReachable bool           `json:"raw_store_reachable"`
	CacheStats        map[string]int `json:"cache_stats"`
	Errors            []string       `json:"errors,omitempty"`
}

// HealthCheck pings the signal and raw stores. An unreachable signal store
// is unhealthy; an unreachable raw store only degrades the service.
func (s *Service) HealthCheck(ctx context.Context) Health {
	h := Health{Status: StatusHealthy, CacheStats: s.caches.Stats()}

	if err := s.storeCall(ctx, "ping signal store", s.signals.Ping); err != nil {
		h.Errors = append(h.Errors, err.Error())
	} else {
		h.StoreReachable = true
	}
	if err := s.storeCall(ctx, "ping raw store", s.raw.Ping); err != nil {
		h.Errors = append(h.Errors, err.Error())
	} else {
		h.RawStoreReachable = true
	}

	switch {
	case !h.StoreReachable:
		h.Status = StatusUnhealthy
	case !h.RawStoreReachable:
		h.Status = StatusDegraded
	}
	return h
}
