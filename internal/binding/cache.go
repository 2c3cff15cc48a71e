package binding

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// queryCache memoises model service answers for one generation run.
// Concurrent callers of the same key share a single lookup.
type queryCache struct {
	group   singleflight.Group
	mu      sync.RWMutex
	results map[string]any
	hits    int64
	misses  int64
}

func newQueryCache() *queryCache {
	return &queryCache{results: make(map[string]any)}
}

func (c *queryCache) do(key string, fn func() (any, error)) (any, error) {
	c.mu.RLock()
	v, ok := c.results[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.results[key] = v
		c.misses++
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

func (c *queryCache) stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
