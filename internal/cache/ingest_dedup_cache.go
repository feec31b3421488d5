package cache

import "time"

const defaultSeenTTL = 10 * time.Minute

// IngestDedupCache remembers external event ids that are known to exist in
// storage, letting ingestion skip the existence probe for recently seen ids.
// Only positive existence is cached: events are never deleted, so a hit is
// always a true duplicate. A miss still falls through to storage.
type IngestDedupCache struct {
	seen *TTLCache[string, struct{}]
	ttl  time.Duration
}

func NewIngestDedupCache() *IngestDedupCache {
	return &IngestDedupCache{
		seen: NewTTLCache[string, struct{}](),
		ttl:  defaultSeenTTL,
	}
}

func (c *IngestDedupCache) Seen(externalID string) bool {
	if c == nil || externalID == "" {
		return false
	}
	_, ok := c.seen.Get(externalID)
	return ok
}

func (c *IngestDedupCache) MarkSeen(externalID string) {
	if c == nil || externalID == "" {
		return
	}
	c.seen.Set(externalID, struct{}{}, c.ttl)
}
