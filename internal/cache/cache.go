// Package cache stores short-lived lookups such as knowledge topics, in
// memory or in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jordanhubbard/gauntlet/pkg/config"
)

// Entry represents a cached value
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Hits      int64           `json:"hits"`
}

// Decode unmarshals the cached value into v.
func (e *Entry) Decode(v interface{}) error {
	return json.Unmarshal(e.Value, v)
}

// Config defines cache configuration
type Config struct {
	Enabled       bool          `json:"enabled"`
	DefaultTTL    time.Duration `json:"default_ttl"`    // Default time-to-live for cache entries
	MaxSize       int           `json:"max_size"`       // Maximum number of entries
	CleanupPeriod time.Duration `json:"cleanup_period"` // How often to run cleanup
	KeyPrefix     string        `json:"key_prefix"`     // Namespace for shared backends
}

// DefaultConfig returns sensible defaults for caching
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultTTL:    1 * time.Hour,
		MaxSize:       1000,
		CleanupPeriod: 5 * time.Minute,
		KeyPrefix:     "gauntlet:",
	}
}

// ConfigFrom converts the cache section of the engine config.
func ConfigFrom(cfg config.CacheConfig) *Config {
	c := DefaultConfig()
	c.Enabled = cfg.Enabled
	if cfg.DefaultTTL > 0 {
		c.DefaultTTL = cfg.DefaultTTL
	}
	if cfg.MaxSize > 0 {
		c.MaxSize = cfg.MaxSize
	}
	if cfg.CleanupPeriod > 0 {
		c.CleanupPeriod = cfg.CleanupPeriod
	}
	return c
}

// Backend is the interface for cache storage backends
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
	GetStats(ctx context.Context) *Stats
	InvalidateByPrefix(ctx context.Context, prefix string) int
}

// Stats tracks cache performance
type Stats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Evictions    int64   `json:"evictions"`
	TotalEntries int64   `json:"total_entries"`
	HitRate      float64 `json:"hit_rate"`
}

// Cache is the in-memory backend. When built with NewFromRedis it forwards to Redis instead.
type Cache struct {
	backend Backend
	config  *Config
	entries map[string]*Entry
	mu      sync.RWMutex
	stats   Stats
	stop    chan struct{}
	once    sync.Once
}

var _ Backend = (*Cache)(nil)

// New creates a new in-memory cache instance
func New(cfg *Config) *Cache {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	c := &Cache{
		config:  cfg,
		entries: make(map[string]*Entry),
		stop:    make(chan struct{}),
	}

	if cfg.Enabled && cfg.CleanupPeriod > 0 {
		go c.cleanupLoop()
	}

	return c
}

// NewFromRedis creates a cache instance backed by Redis
func NewFromRedis(redisCache *RedisCache) *Cache {
	return &Cache{
		backend: redisCache,
		config:  redisCache.config,
		stop:    make(chan struct{}),
	}
}

// GenerateKey builds a stable key from a namespace and its parts.
func GenerateKey(namespace string, parts ...string) string {
	hasher := sha256.New()
	for _, p := range parts {
		hasher.Write([]byte(p))
		hasher.Write([]byte{0})
	}
	return namespace + ":" + hex.EncodeToString(hasher.Sum(nil))[:32]
}

// Get retrieves a cached value if available and not expired
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool) {
	if !c.config.Enabled {
		return nil, false
	}
	if c.backend != nil {
		return c.backend.Get(ctx, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.stats.Misses++
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		return nil, false
	}

	entry.Hits++
	c.stats.Hits++
	copied := *entry
	return &copied, true
}

// Set stores a value in the cache
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.config.Enabled {
		return nil
	}
	if c.backend != nil {
		return c.backend.Set(ctx, key, value, ttl)
	}

	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	now := time.Now()
	entry := &Entry{
		Key:       key,
		Value:     raw,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.config.MaxSize > 0 && len(c.entries) >= c.config.MaxSize {
		c.evictOldest()
	}
	c.entries[key] = entry
	return nil
}

// Delete removes an entry from the cache
func (c *Cache) Delete(ctx context.Context, key string) {
	if !c.config.Enabled {
		return
	}
	if c.backend != nil {
		c.backend.Delete(ctx, key)
		return
	}

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries from the cache
func (c *Cache) Clear(ctx context.Context) {
	if !c.config.Enabled {
		return
	}
	if c.backend != nil {
		c.backend.Clear(ctx)
		return
	}

	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

// InvalidateByPrefix removes all cache entries whose key starts with prefix
func (c *Cache) InvalidateByPrefix(ctx context.Context, prefix string) int {
	if !c.config.Enabled {
		return 0
	}
	if c.backend != nil {
		return c.backend.InvalidateByPrefix(ctx, prefix)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// GetStats returns current cache statistics
func (c *Cache) GetStats(ctx context.Context) *Stats {
	if c.backend != nil {
		return c.backend.GetStats(ctx)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.TotalEntries = int64(len(c.entries))
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return &stats
}

// Close stops the background cleanup goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanupLoop periodically removes expired entries
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *Cache) cleanup() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictOldest removes the oldest entry. Caller holds mu.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, entry := range c.entries {
		if first || entry.CachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CachedAt
			first = false
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}
