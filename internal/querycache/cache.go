// Package querycache is a client-side read-through store keyed by query
// kind and parameters, with a staleness window per kind.
package querycache

import (
	"net/url"
	"sync"
	"time"
)

// Key identifies one cached query. Params is the canonical encoding of the
// query parameters, so equal parameter sets always produce equal keys.
type Key struct {
	Kind   string
	Params string
}

// NewKey builds a key from kind and params. url.Values.Encode sorts by
// parameter name, which makes the encoding canonical.
func NewKey(kind string, params url.Values) Key {
	return Key{Kind: kind, Params: params.Encode()}
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Kind
	}
	return k.Kind + "?" + k.Params
}

// DefaultTTL applies to kinds without an explicit window.
const DefaultTTL = 5 * time.Minute

type entry struct {
	value    any
	storedAt time.Time
}

// Cache holds query results. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]entry
	ttls    map[string]time.Duration
	now     func() time.Time
}

type Option func(*Cache)

// WithTTL sets the staleness window for one kind.
func WithTTL(kind string, ttl time.Duration) Option {
	return func(c *Cache) { c.ttls[kind] = ttl }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]entry),
		ttls:    make(map[string]time.Duration),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) ttl(kind string) time.Duration {
	if d, ok := c.ttls[kind]; ok {
		return d
	}
	return DefaultTTL
}

// Read returns the value stored under key. Missing and stale entries both
// report false; stale entries are dropped.
func (c *Cache) Read(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl(key.Kind) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Write stores value under key, restarting its staleness window.
func (c *Cache) Write(key Key, value any) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops every entry whose key matches and returns how many went.
func (c *Cache) Invalidate(match func(Key) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len counts stored entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// OfKind matches every key of one of kinds.
func OfKind(kinds ...string) func(Key) bool {
	return func(k Key) bool {
		for _, kind := range kinds {
			if k.Kind == kind {
				return true
			}
		}
		return false
	}
}

// Get is a typed Read. A stored value of another type reports false.
func Get[T any](c *Cache, key Key) (T, bool) {
	v, ok := c.Read(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
