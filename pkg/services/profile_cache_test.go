package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/sources"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCache(t *testing.T, ttl time.Duration) (ProfileCache, *fakeClock, string) {
	t.Helper()
	dir := t.TempDir()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache, err := NewFileProfileCache(ProfileCacheConfig{Dir: dir, TTL: ttl, Now: clock.Now}, zap.NewNop())
	require.NoError(t, err)
	return cache, clock, dir
}

func analysisFor(src sources.Source, columns []string) *FileAnalysis {
	return &FileAnalysis{
		Identity:    src.Identity(),
		Fingerprint: src.Fingerprint(),
		Encoding:    sources.EncodingUTF8,
		Columns:     columns,
		RowCount:    1,
	}
}

func TestProfileCache_RoundTrip(t *testing.T) {
	cache, _, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	cols := []string{"Area Code", "Area"}
	src := sources.NewMemorySource("area.csv", cols, [][]string{{"1", "Algeria"}})

	got, warn := cache.Get(ctx, src)
	assert.Nil(t, got)
	assert.Nil(t, warn)

	require.NoError(t, cache.Put(src, analysisFor(src, cols)))

	got, warn = cache.Get(ctx, src)
	assert.Nil(t, warn)
	require.NotNil(t, got)
	assert.Equal(t, "area.csv", got.Identity)
	assert.Equal(t, int64(1), got.RowCount)
}

func TestProfileCache_Invalidation(t *testing.T) {
	ctx := context.Background()
	cols := []string{"Area Code", "Area"}

	t.Run("content change", func(t *testing.T) {
		cache, _, _ := newTestCache(t, time.Hour)
		src := sources.NewMemorySource("area.csv", cols, [][]string{{"1", "Algeria"}})
		require.NoError(t, cache.Put(src, analysisFor(src, cols)))

		changed := sources.NewMemorySource("area.csv", cols, [][]string{{"1", "Algeria"}, {"2", "Albania"}})
		got, warn := cache.Get(ctx, changed)
		assert.Nil(t, got)
		assert.Nil(t, warn)
	})

	t.Run("ttl expired", func(t *testing.T) {
		cache, clock, _ := newTestCache(t, time.Hour)
		src := sources.NewMemorySource("area.csv", cols, [][]string{{"1", "Algeria"}})
		require.NoError(t, cache.Put(src, analysisFor(src, cols)))

		clock.now = clock.now.Add(2 * time.Hour)
		got, _ := cache.Get(ctx, src)
		assert.Nil(t, got)
	})

	t.Run("column set differs", func(t *testing.T) {
		cache, _, _ := newTestCache(t, time.Hour)
		src := sources.NewMemorySource("area.csv", cols, [][]string{{"1", "Algeria"}})
		require.NoError(t, cache.Put(src, analysisFor(src, []string{"Area Code"})))

		got, _ := cache.Get(ctx, src)
		assert.Nil(t, got)
	})
}

func TestProfileCache_CorruptEntry(t *testing.T) {
	cache, _, dir := newTestCache(t, 0)
	cols := []string{"Area Code", "Area"}
	src := sources.NewMemorySource("area.csv", cols, [][]string{{"1", "Algeria"}})
	require.NoError(t, cache.Put(src, analysisFor(src, cols)))

	entries, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.WriteFile(entries[0], []byte("{not json"), 0o644))

	got, warn := cache.Get(context.Background(), src)
	assert.Nil(t, got)
	require.NotNil(t, warn)
	assert.Equal(t, models.WarningCacheIgnored, warn.Kind)

	_, err = os.Stat(entries[0])
	assert.True(t, os.IsNotExist(err), "corrupt entry is removed")
}

func TestNoopProfileCache(t *testing.T) {
	cache := NewNoopProfileCache()
	src := sources.NewMemorySource("a.csv", []string{"A"}, nil)
	require.NoError(t, cache.Put(src, analysisFor(src, []string{"A"})))
	got, warn := cache.Get(context.Background(), src)
	assert.Nil(t, got)
	assert.Nil(t, warn)
}
