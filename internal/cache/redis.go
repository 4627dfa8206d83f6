package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Backend stored in Redis so several engine processes share topics.
type RedisCache struct {
	client *redis.Client
	config *Config
	hits   atomic.Int64
	misses atomic.Int64
}

var _ Backend = (*RedisCache)(nil)

// NewRedisCache connects to the Redis server at url (redis://host:port/db).
func NewRedisCache(ctx context.Context, url string, cfg *Config) (*RedisCache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client, config: cfg}, nil
}

func (r *RedisCache) key(k string) string { return r.config.KeyPrefix + k }

// Get fetches and decodes an entry.
func (r *RedisCache) Get(ctx context.Context, key string) (*Entry, bool) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		r.misses.Add(1)
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return &entry, true
}

// Set stores value with ttl, falling back to the configured default.
func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	now := time.Now()
	data, err := json.Marshal(Entry{Key: key, Value: raw, CachedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes one key.
func (r *RedisCache) Delete(ctx context.Context, key string) {
	r.client.Del(ctx, r.key(key))
}

// Clear removes every key under the configured prefix.
func (r *RedisCache) Clear(ctx context.Context) {
	r.InvalidateByPrefix(ctx, "")
}

// InvalidateByPrefix deletes keys by SCAN so large keyspaces are not blocked.
func (r *RedisCache) InvalidateByPrefix(ctx context.Context, prefix string) int {
	removed := 0
	iter := r.client.Scan(ctx, 0, r.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err == nil {
			removed++
		}
	}
	return removed
}

// GetStats reports hit counters for this process only.
func (r *RedisCache) GetStats(ctx context.Context) *Stats {
	stats := &Stats{Hits: r.hits.Load(), Misses: r.misses.Load()}
	if n, err := r.client.DBSize(ctx).Result(); err == nil {
		stats.TotalEntries = n
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close releases the connection pool.
func (r *RedisCache) Close() error {
	if err := r.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
