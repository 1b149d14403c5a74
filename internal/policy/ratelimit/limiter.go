// Package ratelimit implements the per-organization sliding-window limiter
// that guards the write path.
package ratelimit

import (
	"sync"
	"time"

	"github.com/JakeFAU/lead-signal-distiller/internal/metrics"
	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// Defaults applied when Config fields are unset.
const (
	DefaultLimit           = 100
	DefaultWindow          = time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// Config holds rate limiter configuration.
type Config struct {
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
}

// Limiter admits at most Limit operations per organization in any trailing Window.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string][]time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a new Limiter.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config { return l.cfg }

// CheckAndIncrement admits one operation for organizationID or returns a
// *signal.RateLimitError carrying the time until the oldest admission leaves
// the window. Rejected calls do not consume budget.
func (l *Limiter) CheckAndIncrement(organizationID string) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := prune(l.windows[organizationID], now.Add(-l.cfg.Window))
	if len(stamps) >= l.cfg.Limit {
		l.windows[organizationID] = stamps
		retryAfter := stamps[0].Add(l.cfg.Window).Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Millisecond
		}
		metrics.ObserveRateLimited()
		return &signal.RateLimitError{
			OrganizationID: organizationID,
			Limit:          l.cfg.Limit,
			Window:         l.cfg.Window,
			RetryAfter:     retryAfter,
		}
	}
	l.windows[organizationID] = append(stamps, now)
	return nil
}

// Remaining reports how many operations organizationID may still perform in the current window.
// Asking about an idle organization leaves no state behind.
func (l *Limiter) Remaining(organizationID string) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	stamps := prune(l.windows[organizationID], now.Add(-l.cfg.Window))
	if len(stamps) == 0 {
		delete(l.windows, organizationID)
	} else {
		l.windows[organizationID] = stamps
	}
	return l.cfg.Limit - len(stamps)
}

// Cleanup drops organizations with no admissions inside the window and
// returns how many were removed.
func (l *Limiter) Cleanup() int {
	cutoff := l.now().Add(-l.cfg.Window)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for org, stamps := range l.windows {
		stamps = prune(stamps, cutoff)
		if len(stamps) == 0 {
			delete(l.windows, org)
			removed++
			continue
		}
		l.windows[org] = stamps
	}
	return removed
}

// Tracked returns the number of organizations currently holding window state.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// prune drops timestamps at or before cutoff. stamps is kept in admission order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}
