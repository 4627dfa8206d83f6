// Package knowledge supplies trend topics used to flavour scenario requirements.
// Every source is best-effort: callers treat errors as "no topics".
package knowledge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jordanhubbard/gauntlet/internal/cache"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"go.uber.org/zap"
)

// ErrNoTopics is returned when a source has nothing for a category.
var ErrNoTopics = errors.New("no topics for category")

// Source fetches current topics for a category.
type Source interface {
	FetchTrends(ctx context.Context, category models.Category) ([]string, error)
}

// StaticSource serves topics from configuration. Topics can be swapped at
// runtime when the config file is reloaded.
type StaticSource struct {
	mu     sync.RWMutex
	topics map[models.Category][]string
}

// NewStaticSource builds a source from a category name -> topics map.
func NewStaticSource(topics map[string][]string) *StaticSource {
	s := &StaticSource{}
	s.Update(topics)
	return s
}

// Update replaces every topic list.
func (s *StaticSource) Update(topics map[string][]string) {
	next := make(map[models.Category][]string, len(topics))
	for name, list := range topics {
		cat := models.NormalizeCategory(name)
		cleaned := make([]string, 0, len(list))
		for _, t := range list {
			if t = strings.TrimSpace(t); t != "" {
				cleaned = append(cleaned, t)
			}
		}
		next[cat] = cleaned
	}
	s.mu.Lock()
	s.topics = next
	s.mu.Unlock()
}

// Categories lists the categories with at least one topic, sorted.
func (s *StaticSource) Categories() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Category, 0, len(s.topics))
	for c, list := range s.topics {
		if len(list) > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FetchTrends returns a copy of the configured topics.
func (s *StaticSource) FetchTrends(ctx context.Context, category models.Category) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	list := s.topics[category]
	s.mu.RUnlock()
	if len(list) == 0 {
		return nil, ErrNoTopics
	}
	return append([]string(nil), list...), nil
}

// CachingSource memoizes another source's answers in a cache backend.
type CachingSource struct {
	inner  Source
	cache  cache.Backend
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachingSource wraps inner. A zero ttl uses the backend default.
func NewCachingSource(inner Source, backend cache.Backend, ttl time.Duration, logger *zap.Logger) *CachingSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingSource{inner: inner, cache: backend, ttl: ttl, logger: logger}
}

const trendsNamespace = "trends"

// FetchTrends serves from cache, refilling on miss. Cache write failures are logged and ignored.
func (c *CachingSource) FetchTrends(ctx context.Context, category models.Category) ([]string, error) {
	key := cache.GenerateKey(trendsNamespace, string(category))
	if entry, ok := c.cache.Get(ctx, key); ok {
		var topics []string
		if err := entry.Decode(&topics); err == nil {
			return topics, nil
		}
	}

	topics, err := c.inner.FetchTrends(ctx, category)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, topics, c.ttl); err != nil {
		c.logger.Debug("failed to cache topics", zap.String("category", string(category)), zap.Error(err))
	}
	return topics, nil
}

// Invalidate drops every cached topic list.
func (c *CachingSource) Invalidate(ctx context.Context) int {
	return c.cache.InvalidateByPrefix(ctx, trendsNamespace+":")
}
