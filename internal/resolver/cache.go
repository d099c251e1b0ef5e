package resolver

import (
	"sync"
	"time"

	"github.com/askql/backend/internal/models"
)

// ResultCache holds successful results keyed by the normalized question.
// Entries expire after a TTL and the cache is bounded; when full, the
// oldest entry by insertion is evicted.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string
	ttl     time.Duration
	max     int
	now     func() time.Time
}

type cacheEntry struct {
	result   models.Result
	storedAt time.Time
}

func NewResultCache(ttl time.Duration, max int) *ResultCache {
	if max <= 0 {
		max = 1000
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ResultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

// Get returns the cached result for the question, rewritten to report the
// cache as its source. Expired entries are removed on access.
func (c *ResultCache) Get(question string) (*models.Result, bool) {
	key := models.NormalizeQuestion(question)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.remove(key)
		return nil, false
	}

	result := entry.result
	result.Source = models.SourceCache
	return &result, true
}

// Put stores a successful result. Failed resolutions are never cached.
func (c *ResultCache) Put(question string, result models.Result) {
	if !result.Succeeded {
		return
	}
	key := models.NormalizeQuestion(question)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.max && len(c.order) > 0 {
			c.remove(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{result: result, storedAt: c.now()}
}

func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResultCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
