package venue

import (
	"sync"
	"time"

	"tradeflow/internal/model"
)

// submissionCache remembers accepted orders by client order id so a retried
// submission returns the original acknowledgement instead of placing a second
// order. It backs idempotency for venues without native client order id
// support; entries expire after the configured TTL.
type submissionCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	order     model.Order
	expiresAt time.Time
}

func newSubmissionCache(ttl time.Duration) *submissionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &submissionCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached acknowledgement for the client order id, if any.
func (c *submissionCache) Get(clientOrderID string) (*model.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[clientOrderID]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, clientOrderID)
		return nil, false
	}
	o := e.order
	return &o, true
}

// Put stores the acknowledgement and opportunistically evicts expired
// entries so the map does not grow without bound.
func (c *submissionCache) Put(clientOrderID string, order *model.Order) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[clientOrderID] = cacheEntry{order: *order, expiresAt: now.Add(c.ttl)}
}

// Len reports the number of live entries.
func (c *submissionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
