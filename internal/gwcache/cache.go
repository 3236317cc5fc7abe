// Package gwcache implements the fixed-capacity response cache from spec
// §4.2: an LRU-by-expiry map keyed by request fingerprint, grounded on the
// teacher's internal/cache.DedupeCache (same touch/prune-oldest shape,
// generalised to store a full response rather than just a timestamp).
package gwcache

import (
	"sync"
	"time"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

type entry struct {
	response gwtypes.CompletionResponse
	expiry   time.Time
}

// Cache is safe for concurrent callers. get never returns a partially
// written entry because every mutation happens while holding mu.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	maxSize int

	hits   int64
	misses int64

	now func() time.Time // overridable for deterministic tests
}

// Options configures a new Cache. MaxSize defaults to 1000 (spec §5 bounded
// memory).
type Options struct {
	MaxSize int
}

func New(opts Options) *Cache {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache{
		entries: make(map[string]entry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the stored response and true on a live hit. An expired entry
// is evicted and counted as a miss.
func (c *Cache) Get(key string) (gwtypes.CompletionResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return gwtypes.CompletionResponse{}, false
	}
	if c.now().After(e.expiry) {
		delete(c.entries, key)
		c.misses++
		return gwtypes.CompletionResponse{}, false
	}
	c.hits++
	resp := e.response
	resp.Cached = true
	return resp, true
}

// Set stores response under key with the given ttl, evicting the
// earliest-expiring entry first if the cache is at capacity. A response is
// stored by value, so a caller mutating their own copy afterwards cannot
// corrupt what other readers see.
func (c *Cache) Set(key string, response gwtypes.CompletionResponse, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictEarliest()
	}
	response.Cached = false // the stored copy is "fresh"; Get sets Cached=true on read
	c.entries[key] = entry{response: response, expiry: c.now().Add(ttl)}
}

func (c *Cache) evictEarliest() {
	var oldestKey string
	var oldestExpiry time.Time
	first := true
	for k, e := range c.entries {
		if first || e.expiry.Before(oldestExpiry) {
			oldestKey = k
			oldestExpiry = e.expiry
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// HitRate returns hits/(hits+misses), 0 when nothing has been looked up yet.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
