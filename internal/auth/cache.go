package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// AuthCache maps bearer tokens to hosts with stale-while-revalidate: expired
// entries keep being served while one caller refreshes them.
type AuthCache struct {
	entries sync.Map // token -> *cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	host       *Host
	expiresAt  time.Time
	refreshing atomic.Bool
}

// AuthCacheGetResult holds the result of a cache lookup.
type AuthCacheGetResult struct {
	Host *Host
	Hit  bool
	// NeedsRefresh is set for exactly one caller per stale entry.
	NeedsRefresh bool
}

func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl, now: time.Now}
}

// Get never blocks on a refresh.
func (c *AuthCache) Get(token string) AuthCacheGetResult {
	val, ok := c.entries.Load(token)
	if !ok {
		return AuthCacheGetResult{}
	}
	entry := val.(*cacheEntry)
	res := AuthCacheGetResult{Host: entry.host, Hit: true}
	if !c.now().Before(entry.expiresAt) {
		res.NeedsRefresh = entry.refreshing.CompareAndSwap(false, true)
	}
	return res
}

// Set stores host with a fresh TTL and clears any pending refresh.
func (c *AuthCache) Set(token string, host *Host) {
	c.entries.Store(token, &cacheEntry{host: host, expiresAt: c.now().Add(c.ttl)})
}

func (c *AuthCache) Delete(token string) {
	c.entries.Delete(token)
}
