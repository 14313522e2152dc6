// Package resultcache holds full tool results outside the conversation so
// only a compact preview needs to be sent to the model.
package resultcache

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// IDPrefix is the prefix of every result id.
const IDPrefix = "retrieve_"

// ResultNotFoundError reports a result id that is unknown or was cleared.
type ResultNotFoundError struct {
	ID string
}

func (e *ResultNotFoundError) Error() string {
	return fmt.Sprintf("result not found: %s", e.ID)
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the cache. When full, the oldest results are evicted.
// Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// Cache maps result ids to payloads for the lifetime of the process.
type Cache struct {
	mu         sync.Mutex
	counter    uint64
	entries    map[string]entry
	maxEntries int
}

type entry struct {
	seq     uint64
	payload any
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{entries: make(map[string]entry)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store saves payload and returns its new id. Ids are never reused.
func (c *Cache) Store(payload any) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	id := IDPrefix + strconv.FormatUint(c.counter, 10)
	c.entries[id] = entry{seq: c.counter, payload: payload}

	if c.maxEntries > 0 {
		c.evictLocked()
	}
	return id
}

func (c *Cache) evictLocked() {
	over := len(c.entries) - c.maxEntries
	if over <= 0 {
		return
	}
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return c.entries[ids[i]].seq < c.entries[ids[j]].seq })
	for _, id := range ids[:over] {
		delete(c.entries, id)
	}
}

// Get returns the payload stored under id.
func (c *Cache) Get(id string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	return e.payload, ok
}

// Resolve is Get with a typed error for missing ids.
func (c *Cache) Resolve(id string) (any, error) {
	payload, ok := c.Get(id)
	if !ok {
		return nil, &ResultNotFoundError{ID: id}
	}
	return payload, nil
}

// Clear removes one result.
func (c *Cache) Clear(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// ClearAll removes every result. The id counter keeps counting.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of stored results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
