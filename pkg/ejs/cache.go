package ejs

import (
	"sort"
	"strings"
	"sync"
)

// CacheObserver is notified of cache lookups made through Compile.
type CacheObserver interface {
	CacheHit(key string)
	CacheMiss(key string)
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithObserver registers an observer for cache hits and misses.
func WithObserver(o CacheObserver) CacheOption {
	return func(c *Cache) {
		c.observer = o
	}
}

// Cache maps keys to compiled templates. Entries live until they are
// cleared; there is no eviction and no staleness check against the source.
// All methods are concurrent-safe.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]*Template
	observer CacheObserver
	owner    *Renderer
}

// NewCache returns an empty Cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{entries: make(map[string]*Template)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the template stored under key.
func (c *Cache) Get(key string) (*Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[key]
	return t, ok
}

// Compile returns the template stored under key. On a miss it compiles src
// with the renderer that owns the cache, stores the result and returns it.
// A cache never passed to NewRenderer compiles with the default renderer.
// src is ignored on a hit.
func (c *Cache) Compile(key, src string, opts Options) (*Template, error) {
	return c.getOrCompile(key, func() (*Template, error) {
		return c.compiler().Compile(src, opts)
	})
}

// bind makes r the owner of the cache unless another renderer already is.
func (c *Cache) bind(r *Renderer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner == nil {
		c.owner = r
	}
}

func (c *Cache) compiler() *Renderer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.owner != nil {
		return c.owner
	}
	return defaultRenderer
}

// getOrCompile compiles outside the lock, so two callers missing the same
// key may both compile; the last store wins.
func (c *Cache) getOrCompile(key string, compile func() (*Template, error)) (*Template, error) {
	if t, ok := c.Get(key); ok {
		if c.observer != nil {
			c.observer.CacheHit(key)
		}
		return t, nil
	}
	if c.observer != nil {
		c.observer.CacheMiss(key)
	}

	t, err := compile()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = t
	c.mu.Unlock()
	return t, nil
}

// Clear discards every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Template)
}

// DeletePrefix removes every entry whose key starts with prefix and returns
// how many were removed.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of cached templates.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
