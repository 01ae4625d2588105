// Package thumbcache implements the process-local thumbnail URL cache
// described in spec §5: a size-capped map with a per-entry TTL, backed
// optionally by Redis so multiple processes share cached URLs. Eviction is
// opportunistic — triggered only when the in-memory map exceeds its cap,
// never on a timer.
package thumbcache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCap = 10000
	defaultTTL = 2 * time.Hour
)

type entry struct {
	url       string
	expiresAt time.Time
}

// Cache is an in-memory LRU-ish cache with optional Redis mirroring. Redis
// is best-effort: a Redis outage degrades to pure in-memory caching rather
// than failing thumbnail resolution.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	cap     int
	ttl     time.Duration

	redis *redis.Client
}

func New(redisClient *redis.Client) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		cap:     defaultCap,
		ttl:     defaultTTL,
		redis:   redisClient,
	}
}

func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if ok {
		if time.Now().Before(e.expiresAt) {
			return e.url, true
		}
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
	}

	if c.redis == nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url, err := c.redis.Get(ctx, redisKey(key)).Result()
	if err != nil {
		return "", false
	}

	c.mu.Lock()
	c.entries[key] = entry{url: url, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return url, true
}

func (c *Cache) Set(key, url string) {
	c.mu.Lock()
	if len(c.entries) >= c.cap {
		c.evictExpiredLocked()
	}
	c.entries[key] = entry{url: url, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	if c.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.redis.Set(ctx, redisKey(key), url, c.ttl)
	}
}

// evictExpiredLocked drops expired entries first; if the map is still over
// cap, it evicts an arbitrary subset (map iteration order is unspecified in
// Go, which is an acceptable approximation of LRU for a bounded hint cache).
func (c *Cache) evictExpiredLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.cap {
		return
	}
	toEvict := len(c.entries) - c.cap + 1
	for k := range c.entries {
		if toEvict <= 0 {
			break
		}
		delete(c.entries, k)
		toEvict--
	}
}

func redisKey(key string) string {
	return "thumb:" + key
}
