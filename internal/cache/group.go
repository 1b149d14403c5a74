package cache

import "sync"

// Store is the non-generic view of a Cache used for stats and maintenance.
type Store interface {
	Name() string
	Len() int
	Sweep() int
	Clear()
	InvalidatePrefix(prefix string) int
}

// Group tracks the caches owned by one service instance.
type Group struct {
	mu     sync.RWMutex
	caches []Store
}

// NewGroup returns a Group containing caches.
func NewGroup(caches ...Store) *Group {
	return &Group{caches: caches}
}

// Register adds a cache to the group.
func (g *Group) Register(c Store) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.caches = append(g.caches, c)
}

// Stats returns the entry count per cache name.
func (g *Group) Stats() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]int, len(g.caches))
	for _, c := range g.caches {
		out[c.Name()] = c.Len()
	}
	return out
}

// ClearAll empties every cache.
func (g *Group) ClearAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.caches {
		c.Clear()
	}
}

// InvalidatePrefix applies prefix invalidation to every cache.
func (g *Group) InvalidatePrefix(prefix string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, c := range g.caches {
		n += c.InvalidatePrefix(prefix)
	}
	return n
}

// Sweep drops expired entries from every cache.
func (g *Group) Sweep() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, c := range g.caches {
		n += c.Sweep()
	}
	return n
}
