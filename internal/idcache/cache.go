// Package idcache memoizes the warehouse's existing-identifier set so repeated
// runs within the TTL window reuse one query result instead of re-scanning the
// table.
package idcache

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// FetchFunc loads the identifier set from the warehouse.
type FetchFunc func(ctx context.Context) (map[string]struct{}, error)

type entry struct {
	ids     map[string]struct{}
	fetched time.Time
}

// Cache is an explicit TTL cache keyed by query signature. It is shared by all
// concurrent tenant tasks of a run; entries are treated as immutable once
// stored.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// New creates a cache with the given TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Get returns the identifier set for key, calling fetch on a miss or after the
// TTL has elapsed. A fetch failure degrades to an empty set for this call and
// is not cached, so the next call retries the warehouse. Callers must not
// mutate the returned map.
func (c *Cache) Get(ctx context.Context, key string, fetch FetchFunc) map[string]struct{} {
	// The lock is held across the fetch so two concurrent misses cannot both
	// hit the warehouse for the same key.
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && c.now().Sub(e.fetched) < c.ttl {
		return e.ids
	}

	ids, err := fetch(ctx)
	if err != nil {
		// Degraded mode: an empty set means already-present records may be
		// re-fetched and re-inserted this run. Accepted trade-off.
		log.WithError(err).WithField("query", key).Error("fetching existing ids failed, proceeding with empty set")
		return map[string]struct{}{}
	}

	c.entries[key] = entry{ids: ids, fetched: c.now()}
	return ids
}
