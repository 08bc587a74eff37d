//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRedisTermCache(t *testing.T) *RedisTermCache {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	cache, err := NewRedisTermCache(ctx, RedisConfig{Addr: endpoint, TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestRedisTermCache_Integration(t *testing.T) {
	cache := newRedisTermCache(t)
	ctx := context.Background()
	term := createTestTerm("41", "Planeta")

	_, found, err := cache.Get(ctx, term.Scope())
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Put(ctx, term))
	got, found, err := cache.Get(ctx, createTestTerm("", "planeta ").Scope())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "41", got.ExternalID)

	ttl, err := cache.client.TTL(ctx, cache.key(term.Scope())).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// Evicting another external ID keeps the entry
	require.NoError(t, cache.Evict(ctx, createTestTerm("77", "Planeta")))
	_, found, _ = cache.Get(ctx, term.Scope())
	assert.True(t, found)

	require.NoError(t, cache.Evict(ctx, term))
	_, found, _ = cache.Get(ctx, term.Scope())
	assert.False(t, found)

	// Evicting a missing key is not an error
	require.NoError(t, cache.Evict(ctx, term))
}

func TestRedisTermCache_CorruptEntryIsMiss(t *testing.T) {
	cache := newRedisTermCache(t)
	ctx := context.Background()
	term := createTestTerm("41", "Planeta")

	require.NoError(t, cache.client.Set(ctx, cache.key(term.Scope()), "{broken", 0).Err())
	_, found, err := cache.Get(ctx, term.Scope())
	require.NoError(t, err)
	assert.False(t, found)
	assert.ErrorIs(t, cache.Put(ctx, integration.TaxonomyTerm{}), integration.ErrInvalidExternalID)
}
