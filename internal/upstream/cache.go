package upstream

import (
	"strings"
	"sync"
	"time"
)

// responseCache memoizes query responses keyed by query type + parameters.
// It is owned exclusively by the client; callers outside this package can
// only request invalidation.
type responseCache struct {
	entries sync.Map // key string -> cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	payload  any
	storedAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{ttl: ttl, now: time.Now}
}

func (c *responseCache) get(key string) (any, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl {
		c.entries.Delete(key)
		return nil, false
	}
	return entry.payload, true
}

func (c *responseCache) put(key string, payload any) {
	c.entries.Store(key, cacheEntry{payload: payload, storedAt: c.now()})
}

func (c *responseCache) invalidatePrefix(prefix string) {
	c.entries.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			c.entries.Delete(k)
		}
		return true
	})
}
