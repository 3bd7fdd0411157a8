package clubs

import (
	"sync"
	"time"
)

// recordCache is a small TTL cache for directory lookups, keyed by query.
// Negative results are cached too so a missing club does not hammer the
// directory on every page load.
type recordCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	record  *DirectoryRecord
	miss    bool
	expires time.Time
}

func newRecordCache(ttl time.Duration) *recordCache {
	return &recordCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// get returns (record, cachedMiss, found).
func (c *recordCache) get(key string) (*DirectoryRecord, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false, false
	}
	return e.record, e.miss, true
}

func (c *recordCache) put(key string, record *DirectoryRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		record:  record,
		miss:    record == nil,
		expires: c.now().Add(c.ttl),
	}
}
