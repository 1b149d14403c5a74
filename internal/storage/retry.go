package storage

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Default retry budget for optimistic appends.
const (
	DefaultMaxAttempts    = 3
	DefaultBackoffInitial = 20 * time.Millisecond
	DefaultBackoffMax     = 250 * time.Millisecond
)

// RetryPolicy bounds the optimistic append loop with jittered exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Initial:     DefaultBackoffInitial,
		Max:         DefaultBackoffMax,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Initial < 0 {
		p.Initial = 0
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	return p
}

// Backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.Initial <= 0 {
		return 0
	}
	delay := float64(p.Initial) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.Max) {
		delay = float64(p.Max)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
