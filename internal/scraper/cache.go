package scraper

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// notFoundCache remembers products that answered not-found so repeated jobs skip the network.
type notFoundCache struct {
	entries *lru.Cache[string, time.Time]
	ttl     time.Duration
	now     func() time.Time
}

func newNotFoundCache(size int, ttl time.Duration, now func() time.Time) (*notFoundCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &notFoundCache{entries: entries, ttl: ttl, now: now}, nil
}

func cacheKey(domainCode, asin string) string {
	return strings.ToLower(domainCode) + "/" + strings.ToUpper(asin)
}

func (c *notFoundCache) Contains(key string) bool {
	if c == nil {
		return false
	}
	added, ok := c.entries.Get(key)
	if !ok {
		return false
	}
	if c.ttl > 0 && c.now().Sub(added) > c.ttl {
		c.entries.Remove(key)
		return false
	}
	return true
}

func (c *notFoundCache) Add(key string) {
	if c == nil {
		return
	}
	c.entries.Add(key, c.now())
}
