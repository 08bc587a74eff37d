package cache

import (
	"context"
	"fmt"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/config"
	"go.uber.org/zap"
)

// TermCacheFactory creates the term cache of a run based on configuration
type TermCacheFactory struct {
	redisConfig   config.RedisConfig
	fallback      integration.TermCache
	logger        *zap.Logger
	allowFallback bool
}

// TermCacheFactoryOption is a functional option for configuring the factory
type TermCacheFactoryOption func(*TermCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) TermCacheFactoryOption {
	return func(f *TermCacheFactory) {
		f.logger = logger
	}
}

// WithFallback controls whether an unreachable Redis falls back to the local store.
// Default is true.
func WithFallback(allow bool) TermCacheFactoryOption {
	return func(f *TermCacheFactory) {
		f.allowFallback = allow
	}
}

// NewTermCacheFactory creates a factory. local is the store used when Redis is disabled
// or unreachable, usually the gorm table next to the identifier map.
func NewTermCacheFactory(cfg config.RedisConfig, local integration.TermCache, opts ...TermCacheFactoryOption) *TermCacheFactory {
	f := &TermCacheFactory{
		redisConfig:   cfg,
		fallback:      local,
		logger:        zap.NewNop(),
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns an L1 in-memory cache in front of Redis when enabled, else in front
// of the local store. Without a local store the in-memory cache is used alone.
func (f *TermCacheFactory) Create(ctx context.Context) (integration.TermCache, error) {
	l1 := NewInMemoryTermCache(DefaultL1TTL)

	if f.redisConfig.Enabled {
		store, err := NewRedisTermCache(ctx, RedisConfig{
			Addr:      f.redisConfig.Addr(),
			Password:  f.redisConfig.Password,
			DB:        f.redisConfig.DB,
			KeyPrefix: f.redisConfig.KeyPrefix,
			TTL:       f.redisConfig.TTL,
		})
		if err == nil {
			f.logger.Info("using Redis term cache", zap.String("addr", f.redisConfig.Addr()))
			return NewTieredTermCache(l1, store, f.logger), nil
		}
		if !f.allowFallback {
			_ = l1.Close()
			return nil, fmt.Errorf("Redis required for the term cache but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to the local term cache", zap.Error(err))
	}

	if f.fallback == nil {
		return l1, nil
	}
	return NewTieredTermCache(l1, f.fallback, f.logger), nil
}
