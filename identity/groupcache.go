package identity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedGroups wraps a GroupLookup with a TTL cache. Membership answers are
// cached per (group, identity) pair; concurrent misses for the same pair are
// collapsed with singleflight so a slow backend sees one call. The backing
// source is eventually consistent anyway, so short-lived staleness here is
// acceptable.
type CachedGroups struct {
	// Source is the wrapped lookup.
	Source GroupLookup

	// TTL is how long answers are cached. Default: 30 seconds.
	TTL time.Duration

	mu      sync.RWMutex
	entries map[groupCacheKey]groupCacheEntry
	sfGroup singleflight.Group
	nowFn   func() time.Time
}

type groupCacheKey struct {
	group string
	ident Identity
}

type groupCacheEntry struct {
	member  bool
	expires time.Time
}

// NewCachedGroups creates a caching decorator around source.
func NewCachedGroups(source GroupLookup, ttl time.Duration) *CachedGroups {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedGroups{
		Source:  source,
		TTL:     ttl,
		entries: make(map[groupCacheKey]groupCacheEntry),
	}
}

// IsMember answers from the cache when possible, refreshing through the
// wrapped source on a miss. Lookup errors are never cached.
func (c *CachedGroups) IsMember(ctx context.Context, group string, id Identity) (bool, error) {
	key := groupCacheKey{group: group, ident: id}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expires) {
		return entry.member, nil
	}

	v, err, _ := c.sfGroup.Do(group+"\x00"+id.String(), func() (any, error) {
		member, err := c.Source.IsMember(ctx, group, id)
		if err != nil {
			return false, err
		}
		c.mu.Lock()
		c.entries[key] = groupCacheEntry{member: member, expires: c.now().Add(c.TTL)}
		c.mu.Unlock()
		return member, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *CachedGroups) now() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return time.Now()
}

// Ensure CachedGroups implements GroupLookup
var _ GroupLookup = (*CachedGroups)(nil)
