package program

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMinStringLength matches the usual strings(1) default
const DefaultMinStringLength = 4

// StringRef is a printable ASCII run found in the image
type StringRef struct {
	Offset int64  `json:"offset"`
	Value  string `json:"value"`
}

// Strings scans the image for printable ASCII runs of at least minLen bytes
func (p *Program) Strings(minLen int) []StringRef {
	if minLen <= 0 {
		minLen = DefaultMinStringLength
	}

	var (
		out   []StringRef
		start = -1
	)

	flush := func(end int) {
		if start >= 0 && end-start >= minLen {
			out = append(out, StringRef{Offset: int64(start), Value: string(p.data[start:end])})
		}
		start = -1
	}

	for i, b := range p.data {
		if b >= 0x20 && b < 0x7f || b == '\t' {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(p.data))

	return out
}

// StringCache memoizes string extraction per program hash and minimum length
type StringCache struct {
	cache  *lru.LRU[string, []StringRef]
	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats reports cache effectiveness
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

// NewStringCache creates a cache holding up to size extraction results
func NewStringCache(size int, ttl time.Duration) *StringCache {
	if size < 1 {
		size = 16
	}
	return &StringCache{
		cache: lru.NewLRU[string, []StringRef](size, nil, ttl),
	}
}

// Get returns the strings of p, extracting them on a miss. The bool
// reports whether the result came from the cache.
func (c *StringCache) Get(p *Program, minLen int) ([]StringRef, bool) {
	if minLen <= 0 {
		minLen = DefaultMinStringLength
	}
	key := fmt.Sprintf("%s:%d", p.SHA256, minLen)

	if refs, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return refs, true
	}

	c.misses.Add(1)
	refs := p.Strings(minLen)
	c.cache.Add(key, refs)
	return refs, false
}

// Purge drops every cached result
func (c *StringCache) Purge() {
	c.cache.Purge()
}

// Stats returns hit/miss counters
func (c *StringCache) Stats() CacheStats {
	stats := CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.cache.Len(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
