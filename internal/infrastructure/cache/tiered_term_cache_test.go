package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingTermCache is an L2 whose reads fail
type failingTermCache struct{ err error }

func (f failingTermCache) Get(context.Context, integration.TermScope) (integration.TaxonomyTerm, bool, error) {
	return integration.TaxonomyTerm{}, false, f.err
}
func (f failingTermCache) Put(context.Context, integration.TaxonomyTerm) error   { return f.err }
func (f failingTermCache) Evict(context.Context, integration.TaxonomyTerm) error { return f.err }

func TestTieredTermCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemoryTermCache(0)
	l2 := NewInMemoryTermCache(0)
	defer l1.Close()
	defer l2.Close()

	term := createTestTerm("41", "Planeta")
	require.NoError(t, l2.Put(ctx, term))

	cache := NewTieredTermCache(l1, l2, nil)

	// First read misses L1 and populates it from L2
	got, found, err := cache.Get(ctx, term.Scope())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "41", got.ExternalID)
	assert.Equal(t, 1, l1.Size())

	_, found, err = cache.Get(ctx, term.Scope())
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = cache.Get(ctx, createTestTerm("", "Santillana").Scope())
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, TieredStats{L1Hits: 1, L1Misses: 2, L2Hits: 1, L2Misses: 1}, cache.Stats())
}

func TestTieredTermCache_WritesBothTiers(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemoryTermCache(0)
	l2 := NewInMemoryTermCache(0)
	defer l1.Close()
	defer l2.Close()

	cache := NewTieredTermCache(l1, l2, nil)
	term := createTestTerm("41", "Planeta")
	require.NoError(t, cache.Put(ctx, term))
	assert.Equal(t, 1, l1.Size())
	assert.Equal(t, 1, l2.Size())

	require.NoError(t, cache.Evict(ctx, term))
	assert.Equal(t, 0, l1.Size())
	assert.Equal(t, 0, l2.Size())
}

func TestTieredTermCache_L2Errors(t *testing.T) {
	ctx := context.Background()
	l1 := NewInMemoryTermCache(0)
	defer l1.Close()

	boom := errors.New("connection refused")
	cache := NewTieredTermCache(l1, failingTermCache{err: boom}, nil)
	term := createTestTerm("41", "Planeta")

	_, _, err := cache.Get(ctx, term.Scope())
	assert.ErrorIs(t, err, boom)

	// A failed L2 write leaves L1 untouched
	assert.ErrorIs(t, cache.Put(ctx, term), boom)
	assert.Equal(t, 0, l1.Size())
}

func TestTermCacheFactory_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Redis disabled uses local store", func(t *testing.T) {
		local := NewInMemoryTermCache(0)
		defer local.Close()

		cache, err := NewTermCacheFactory(config.RedisConfig{}, local).Create(ctx)
		require.NoError(t, err)
		assert.IsType(t, &TieredTermCache{}, cache)

		require.NoError(t, cache.Put(ctx, createTestTerm("41", "Planeta")))
		assert.Equal(t, 1, local.Size())
	})

	t.Run("No local store uses in-memory only", func(t *testing.T) {
		cache, err := NewTermCacheFactory(config.RedisConfig{}, nil).Create(ctx)
		require.NoError(t, err)
		assert.IsType(t, &InMemoryTermCache{}, cache)
	})

	t.Run("Unreachable Redis falls back", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		cache, err := NewTermCacheFactory(cfg, nil).Create(ctx)
		require.NoError(t, err)
		assert.IsType(t, &InMemoryTermCache{}, cache)
	})

	t.Run("Unreachable Redis without fallback fails", func(t *testing.T) {
		cfg := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		_, err := NewTermCacheFactory(cfg, nil, WithFallback(false)).Create(ctx)
		assert.Error(t, err)
	})
}
