package agenda

import (
	"crypto/sha256"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache memoizes per-document extraction by (key, content hash). It is
// safe for concurrent use.
type Cache struct {
	lru *lru.Cache[string, cached]
}

type cached struct {
	sum    [sha256.Size]byte
	parsed *parsed
}

// NewCache holds at most size documents.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New[string, cached](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Len returns the number of cached documents.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.lru.Purge() }

// load returns the cached extraction for key when text is unchanged,
// otherwise it runs fn and stores the result.
func (c *Cache) load(key, text string, fn func() *parsed) *parsed {
	if c == nil {
		return fn()
	}
	sum := sha256.Sum256([]byte(text))
	if e, ok := c.lru.Get(key); ok && e.sum == sum {
		cacheLookups.WithLabelValues("hit").Inc()
		return e.parsed
	}
	cacheLookups.WithLabelValues("miss").Inc()
	p := fn()
	c.lru.Add(key, cached{sum: sum, parsed: p})
	return p
}
