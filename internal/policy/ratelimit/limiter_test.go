package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_RejectsOverLimitPerOrganization(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(Config{Limit: 3, Window: time.Minute}, WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		require.NoError(t, l.CheckAndIncrement("org-a"))
		clk.Advance(time.Second)
	}

	err := l.CheckAndIncrement("org-a")
	require.ErrorIs(t, err, signal.ErrRateLimited)

	var rle *signal.RateLimitError
	require.True(t, errors.As(err, &rle))
	require.Equal(t, "org-a", rle.OrganizationID)
	require.Equal(t, 3, rle.Limit)
	require.Equal(t, 57*time.Second, rle.RetryAfter)

	require.NoError(t, l.CheckAndIncrement("org-b"), "other organizations are independent")
	require.Equal(t, 0, l.Remaining("org-a"))
	require.Equal(t, 2, l.Remaining("org-b"))
}

func TestLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	l := New(Config{Limit: 2, Window: 10 * time.Second}, WithClock(clk.Now))

	require.NoError(t, l.CheckAndIncrement("org"))
	clk.Advance(5 * time.Second)
	require.NoError(t, l.CheckAndIncrement("org"))
	require.Error(t, l.CheckAndIncrement("org"))

	// The first admission leaves the window at t=10s.
	clk.Advance(5 * time.Second)
	require.NoError(t, l.CheckAndIncrement("org"))
	require.Error(t, l.CheckAndIncrement("org"))

	clk.Advance(5 * time.Second)
	require.NoError(t, l.CheckAndIncrement("org"))
}

func TestLimiter_RejectionDoesNotConsumeBudget(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	l := New(Config{Limit: 1, Window: time.Second}, WithClock(clk.Now))

	require.NoError(t, l.CheckAndIncrement("org"))
	for i := 0; i < 5; i++ {
		require.Error(t, l.CheckAndIncrement("org"))
	}
	clk.Advance(time.Second)
	require.NoError(t, l.CheckAndIncrement("org"))
}

func TestLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	l := New(Config{Limit: 5, Window: time.Minute}, WithClock(clk.Now))

	require.NoError(t, l.CheckAndIncrement("stale"))
	clk.Advance(30 * time.Second)
	require.NoError(t, l.CheckAndIncrement("fresh"))
	clk.Advance(31 * time.Second)

	require.Equal(t, 1, l.Cleanup())
	require.Equal(t, 1, l.Tracked())
	require.Equal(t, 4, l.Remaining("fresh"))
}

func TestLimiter_RemainingDoesNotTrackIdleOrganizations(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	l := New(Config{Limit: 3, Window: time.Minute}, WithClock(clk.Now))

	for i := 0; i < 100; i++ {
		require.Equal(t, 3, l.Remaining(fmt.Sprintf("never-admitted-%d", i)))
	}
	require.Zero(t, l.Tracked())

	require.NoError(t, l.CheckAndIncrement("org"))
	require.Equal(t, 2, l.Remaining("org"))
	require.Equal(t, 1, l.Tracked())

	clk.Advance(time.Minute)
	require.Equal(t, 3, l.Remaining("org"))
	require.Zero(t, l.Tracked())
}

func TestLimiter_Defaults(t *testing.T) {
	t.Parallel()

	cfg := New(Config{}).Config()
	require.Equal(t, DefaultLimit, cfg.Limit)
	require.Equal(t, DefaultWindow, cfg.Window)
	require.Equal(t, DefaultCleanupInterval, cfg.CleanupInterval)
}

func TestLimiter_ConcurrentAdmissionsNeverExceedLimit(t *testing.T) {
	t.Parallel()

	l := New(Config{Limit: 25, Window: time.Hour})
	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckAndIncrement("org") == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(25), admitted.Load())
}
