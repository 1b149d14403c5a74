// Package cache implements the in-process, per-entity TTL cache that sits in
// front of catalog and signal reads.
//
// Entries are never served past their expiry. Invalidation bumps a generation
// counter so that a read-through load which started before a write can never
// repopulate the cache with the pre-write value.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/lead-signal-distiller/internal/metrics"
)

// DefaultTTL is applied when a cache is built without a TTL.
const DefaultTTL = 5 * time.Minute

// Key composes an entity type, organization and entity ID into a cache key.
func Key(entityType, organizationID string, entityID ...string) string {
	parts := append([]string{entityType, organizationID}, entityID...)
	return strings.Join(parts, ":")
}

// Prefix returns the key prefix covering every entity of a type within an organization.
func Prefix(entityType, organizationID string) string {
	return entityType + ":" + organizationID + ":"
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrency-safe TTL map.
type Cache[V any] struct {
	name string
	ttl  time.Duration
	now  func() time.Time

	mu         sync.Mutex
	entries    map[string]entry[V]
	generation uint64

	loads singleflight.Group
}

// New builds a cache. now may be nil to use the wall clock.
func New[V any](name string, ttl time.Duration, now func() time.Time) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		name:    name,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]entry[V]),
	}
}

// Name identifies the cache in stats and metrics.
func (c *Cache[V]) Name() string { return c.name }

// Get returns a live entry. Expired entries are dropped on read.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache[V]) getLocked(key string) (V, bool) {
	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. A non-positive ttl uses the cache default.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Invalidate removes key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	delete(c.entries, key)
}

// InvalidatePrefix removes every key starting with prefix and returns how many were removed.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries = make(map[string]entry[V])
}

// Len returns the number of stored entries, including ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// loadPanic carries a loader panic back to the waiting callers.
type loadPanic struct {
	value any
}

// GetOrLoad returns the cached value or calls load, caching its result.
// Concurrent misses for the same key share one load. A load that overlaps an
// invalidation is returned to its callers but not cached.
//
// The shared load runs detached from any one caller's cancellation, so load
// must bound itself. A caller whose ctx ends stops waiting and gets ctx.Err();
// the other waiters still receive the result. A loader panic is re-raised in
// every waiting caller.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	if v, ok := c.getLocked(key); ok {
		c.mu.Unlock()
		metrics.ObserveCacheRequest(c.name, true)
		return v, nil
	}
	gen := c.generation
	c.mu.Unlock()
	metrics.ObserveCacheRequest(c.name, false)

	loadCtx := context.WithoutCancel(ctx)
	flightKey := strconv.FormatUint(gen, 10) + "|" + key
	ch := c.loads.DoChan(flightKey, func() (res any, err error) {
		defer func() {
			if p := recover(); p != nil {
				res, err = nil, &loadPanic{value: p}
			}
		}()
		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.generation == gen {
			c.entries[key] = entry[V]{value: v, expiresAt: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return v, nil
	})

	var zero V
	select {
	case r := <-ch:
		if lp, ok := r.Err.(*loadPanic); ok {
			panic(lp.value)
		}
		if r.Err != nil {
			return zero, r.Err //nolint:wrapcheck // loader errors carry their own context
		}
		v, _ := r.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err() //nolint:wrapcheck // callers match context errors directly
	}
}

func (p *loadPanic) Error() string {
	return fmt.Sprintf("cache load panicked: %v", p.value)
}
