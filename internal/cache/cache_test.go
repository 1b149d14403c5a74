package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
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

func TestCacheExpiresEntries(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1000, 0)}
	c := New[string]("signals", time.Minute, clk.Now)

	c.Set("k", "v", 0)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	clk.Advance(59 * time.Second)
	_, ok = c.Get("k")
	require.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("k")
	require.False(t, ok, "entry must not be served at expiresAt")
	require.Zero(t, c.Len())
}

func TestCacheCustomTTLAndSweep(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	c := New[int]("catalogs", 0, clk.Now)
	c.Set("short", 1, time.Second)
	c.Set("default", 2, 0)

	clk.Advance(2 * time.Second)
	require.Equal(t, 2, c.Len())
	require.Equal(t, 1, c.Sweep())
	require.Equal(t, 1, c.Len())

	clk.Advance(DefaultTTL)
	require.Equal(t, 1, c.Sweep())
	require.Zero(t, c.Len())
}

func TestCacheInvalidation(t *testing.T) {
	t.Parallel()

	c := New[string]("signals", time.Minute, nil)
	c.Set(Key("signals", "org-1", "rec-1"), "a", 0)
	c.Set(Key("signals", "org-1", "rec-2"), "b", 0)
	c.Set(Key("signals", "org-2", "rec-1"), "c", 0)

	c.Invalidate(Key("signals", "org-1", "rec-1"))
	_, ok := c.Get(Key("signals", "org-1", "rec-1"))
	require.False(t, ok)

	require.Equal(t, 1, c.InvalidatePrefix(Prefix("signals", "org-1")))
	require.Equal(t, 1, c.Len())

	c.Clear()
	require.Zero(t, c.Len())
}

func TestKeyComposition(t *testing.T) {
	t.Parallel()

	require.Equal(t, "catalog:org-1:hvac", Key("catalog", "org-1", "hvac"))
	require.Equal(t, "signals:org-1:", Prefix("signals", "org-1"))
}

func TestGetOrLoadReadThrough(t *testing.T) {
	t.Parallel()

	c := New[[]string]("signals", time.Minute, nil)
	var calls atomic.Int32
	load := func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"x"}, nil
	}

	v, err := c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, v)
	v, err = c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, v)
	require.Equal(t, int32(1), calls.Load())
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	c := New[int]("signals", time.Minute, nil)
	boom := errors.New("boom")
	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	require.Zero(t, c.Len())
}

func TestGetOrLoadDropsLoadOverlappingInvalidation(t *testing.T) {
	t.Parallel()

	c := New[string]("signals", time.Minute, nil)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan string)
	go func() {
		v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
			close(started)
			<-release
			return "stale", nil
		})
		if err != nil {
			v = err.Error()
		}
		done <- v
	}()

	<-started
	c.Invalidate("k") // a write completed while the load was in flight
	close(release)
	require.Equal(t, "stale", <-done)

	_, ok := c.Get("k")
	require.False(t, ok, "overlapping load must not be cached")

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) { return "fresh", nil })
	require.NoError(t, err)
	require.Equal(t, "fresh", v)
}

func TestGetOrLoadSharedLoadSurvivesFirstCallerCancel(t *testing.T) {
	t.Parallel()

	c := New[string]("catalogs", time.Minute, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "catalog", nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(firstCtx, "k", load)
		firstErr <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	// The load is still in flight; a second caller joins it.
	second := make(chan string, 1)
	go func() {
		v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
			return "", errors.New("second load must not run")
		})
		if err != nil {
			v = err.Error()
		}
		second <- v
	}()
	close(release)
	require.Equal(t, "catalog", <-second)

	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "catalog", v)
}

func TestGetOrLoadReraisesLoaderPanic(t *testing.T) {
	t.Parallel()

	c := New[int]("signals", time.Minute, nil)
	require.PanicsWithValue(t, "backend bug", func() {
		_, _ = c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
			panic("backend bug")
		})
	})
	require.Zero(t, c.Len())

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestGroupStats(t *testing.T) {
	t.Parallel()

	signals := New[string]("signals", time.Minute, nil)
	catalogs := New[int]("catalogs", time.Minute, nil)
	g := NewGroup(signals)
	g.Register(catalogs)

	signals.Set(Key("signals", "org-1", "a"), "x", 0)
	signals.Set(Key("signals", "org-1", "b"), "y", 0)
	catalogs.Set(Key("catalog", "org-1", "hvac"), 1, 0)

	require.Equal(t, map[string]int{"signals": 2, "catalogs": 1}, g.Stats())
	require.Equal(t, 2, g.InvalidatePrefix("signals:org-1:"))
	require.Zero(t, g.Sweep())
	g.ClearAll()
	require.Equal(t, map[string]int{"signals": 0, "catalogs": 0}, g.Stats())
}
