package matcher

import (
	"sync"

	"github.com/FeiyouG/skill-lab-sub000/contract"
	"github.com/FeiyouG/skill-lab-sub000/trust"
)

type cacheKey struct {
	lang contract.Language
	size int
	sum  string
}

// Cache memoizes parsed sources by (language, length, content hash).
// It is safe for concurrent use, so one Cache may be shared by several
// analyzer runs.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]any
	hits    int
	misses  int
}

// NewCache returns an empty parse cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]any)}
}

// Stats returns the number of cache hits and misses so far.
func (c *Cache) Stats() (hits, misses int) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// load returns the cached value for src or calls parse and stores its
// result. A nil Cache always parses. Parse failures are not cached.
func (c *Cache) load(lang contract.Language, src string, parse func() (any, error)) (any, error) {
	if c == nil {
		return parse()
	}
	key := cacheKey{lang: lang, size: len(src), sum: trust.ComputeChecksum([]byte(src))}

	c.mu.Lock()
	if v, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return v, nil
	}
	c.misses++
	c.mu.Unlock()

	v, err := parse()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
	return v, nil
}
