package httpapi

import (
	"sync"
	"time"

	"github.com/oguzcantas/benchsum/pkg/types"
)

type cacheEntry struct {
	summary   types.Summary
	expiresAt time.Time
}

// summaryCache memoizes parsed summaries per run label. A nil cache is
// valid and caches nothing.
type summaryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newSummaryCache(ttl time.Duration) *summaryCache {
	if ttl <= 0 {
		return nil
	}
	return &summaryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *summaryCache) get(label string, now time.Time) (types.Summary, bool) {
	if c == nil {
		return types.Summary{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[label]
	c.mu.RUnlock()
	if !ok {
		return types.Summary{}, false
	}
	if entry.expiresAt.After(now) {
		return entry.summary, true
	}
	c.mu.Lock()
	delete(c.entries, label)
	c.mu.Unlock()
	return types.Summary{}, false
}

func (c *summaryCache) put(label string, s types.Summary, now time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[label] = cacheEntry{summary: s, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}
