package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/jordanhubbard/gauntlet/internal/cache"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls  int
	topics []string
	err    error
}

func (s *countingSource) FetchTrends(ctx context.Context, category models.Category) ([]string, error) {
	s.calls++
	return s.topics, s.err
}

func TestStaticSource(t *testing.T) {
	s := NewStaticSource(map[string][]string{
		"Security": {" sbom ", "", "passkeys"},
		"coding":   {},
	})
	ctx := context.Background()

	topics, err := s.FetchTrends(ctx, models.CategorySecurity)
	require.NoError(t, err)
	assert.Equal(t, []string{"sbom", "passkeys"}, topics)

	_, err = s.FetchTrends(ctx, models.CategoryCoding)
	assert.ErrorIs(t, err, ErrNoTopics)
	assert.Equal(t, []models.Category{models.CategorySecurity}, s.Categories())

	s.Update(map[string][]string{"coding": {"generics"}})
	_, err = s.FetchTrends(ctx, models.CategorySecurity)
	assert.ErrorIs(t, err, ErrNoTopics)
	topics, err = s.FetchTrends(ctx, models.CategoryCoding)
	require.NoError(t, err)
	assert.Equal(t, []string{"generics"}, topics)
}

func TestStaticSource_CancelledContext(t *testing.T) {
	s := NewStaticSource(map[string][]string{"coding": {"x"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.FetchTrends(ctx, models.CategoryCoding)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachingSource(t *testing.T) {
	backend := cache.New(cache.DefaultConfig())
	defer backend.Close()
	inner := &countingSource{topics: []string{"ebpf"}}
	s := NewCachingSource(inner, backend, 0, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		topics, err := s.FetchTrends(ctx, models.CategoryPerformance)
		require.NoError(t, err)
		assert.Equal(t, []string{"ebpf"}, topics)
	}
	assert.Equal(t, 1, inner.calls)

	assert.Equal(t, 1, s.Invalidate(ctx))
	_, err := s.FetchTrends(ctx, models.CategoryPerformance)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingSource_ErrorsAreNotCached(t *testing.T) {
	backend := cache.New(cache.DefaultConfig())
	defer backend.Close()
	inner := &countingSource{err: errors.New("feed down")}
	s := NewCachingSource(inner, backend, 0, nil)

	_, err := s.FetchTrends(context.Background(), models.CategoryCoding)
	assert.Error(t, err)
	_, err = s.FetchTrends(context.Background(), models.CategoryCoding)
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
