package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/backend"
)

// CachedResponse represents a cached completion
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// GenerateCacheKey generates a cache key from a prompt
func GenerateCacheKey(messages []backend.Message) string {
	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// DefaultMaxEntries caps caches built with New.
const DefaultMaxEntries = 1024

// Cache holds completions keyed by prompt. Entries older than ttl are
// ignored; a zero ttl keeps them forever. Once limit entries are held, Put
// drops expired entries and then the oldest one.
type Cache struct {
	mu      sync.Mutex
	entries map[string]CachedResponse
	ttl     time.Duration
	limit   int
}

func New(ttl time.Duration) *Cache {
	return NewWithLimit(ttl, DefaultMaxEntries)
}

func NewWithLimit(ttl time.Duration, limit int) *Cache {
	if limit <= 0 {
		limit = DefaultMaxEntries
	}
	return &Cache{entries: make(map[string]CachedResponse), ttl: ttl, limit: limit}
}

func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.expired(cached, time.Now()) {
		delete(c.entries, key)
		return "", false
	}
	return cached.Response, true
}

func (c *Cache) Put(key, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.limit {
		c.sweep(now)
		if len(c.entries) >= c.limit {
			c.evictOldest()
		}
	}
	c.entries[key] = CachedResponse{Response: response, Timestamp: now}
}

// Len reports the number of entries held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) expired(cached CachedResponse, now time.Time) bool {
	return c.ttl > 0 && now.Sub(cached.Timestamp) > c.ttl
}

func (c *Cache) sweep(now time.Time) {
	for key, cached := range c.entries {
		if c.expired(cached, now) {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, cached := range c.entries {
		if oldestKey == "" || cached.Timestamp.Before(oldest) {
			oldestKey, oldest = key, cached.Timestamp
		}
	}
	delete(c.entries, oldestKey)
}
