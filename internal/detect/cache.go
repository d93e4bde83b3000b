package detect

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ProfileCache remembers the detected profile per domain so repeat
// scrapes of a stable site skip the DOM analysis. Entries expire so a
// site redesign is picked up within the TTL.
type ProfileCache struct {
	lru *expirable.LRU[string, *FormatProfile]
}

// NewProfileCache builds a cache of up to size domains with the given TTL.
func NewProfileCache(size int, ttl time.Duration) *ProfileCache {
	if size <= 0 {
		size = 512
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &ProfileCache{
		lru: expirable.NewLRU[string, *FormatProfile](size, nil, ttl),
	}
}

func (c *ProfileCache) Get(domain string) (*FormatProfile, bool) {
	return c.lru.Get(domain)
}

func (c *ProfileCache) Put(domain string, p *FormatProfile) {
	c.lru.Add(domain, p)
}

// Invalidate drops a domain's cached profile, used when extraction with
// a cached profile comes back empty.
func (c *ProfileCache) Invalidate(domain string) {
	c.lru.Remove(domain)
}
