package cache

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"go.uber.org/zap"
)

// TieredTermCache implements a two-tier caching strategy
// L1: local in-memory cache (fast, local to the process)
// L2: persistent cache (gorm table or Redis, shared across runs)
// Reads go through L1 then L2; writes go to both.
type TieredTermCache struct {
	l1     *InMemoryTermCache
	l2     integration.TermCache
	logger *zap.Logger

	// Stats for monitoring
	l1Hits   atomic.Int64
	l1Misses atomic.Int64
	l2Hits   atomic.Int64
	l2Misses atomic.Int64
}

// TieredStats holds hit/miss counters
type TieredStats struct {
	L1Hits   int64
	L1Misses int64
	L2Hits   int64
	L2Misses int64
}

// NewTieredTermCache creates a tiered cache over l1 and l2
func NewTieredTermCache(l1 *InMemoryTermCache, l2 integration.TermCache, logger *zap.Logger) *TieredTermCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TieredTermCache{l1: l1, l2: l2, logger: logger}
}

// Get retrieves a term from cache (L1 -> L2). An L2 hit populates L1.
func (c *TieredTermCache) Get(ctx context.Context, scope integration.TermScope) (integration.TaxonomyTerm, bool, error) {
	term, found, _ := c.l1.Get(ctx, scope)
	if found {
		c.l1Hits.Add(1)
		return term, true, nil
	}
	c.l1Misses.Add(1)

	term, found, err := c.l2.Get(ctx, scope)
	if err != nil {
		return integration.TaxonomyTerm{}, false, err
	}
	if !found {
		c.l2Misses.Add(1)
		return integration.TaxonomyTerm{}, false, nil
	}
	c.l2Hits.Add(1)
	if err := c.l1.Put(ctx, term); err != nil {
		c.logger.Warn("failed to populate L1 term cache", zap.String("scope", scope.String()), zap.Error(err))
	}
	return term, true, nil
}

// Put stores a term in L2 and then L1
func (c *TieredTermCache) Put(ctx context.Context, term integration.TaxonomyTerm) error {
	if err := c.l2.Put(ctx, term); err != nil {
		return err
	}
	return c.l1.Put(ctx, term)
}

// Evict removes a term from both tiers
func (c *TieredTermCache) Evict(ctx context.Context, term integration.TaxonomyTerm) error {
	if err := c.l2.Evict(ctx, term); err != nil {
		return err
	}
	return c.l1.Evict(ctx, term)
}

// Stats returns the hit/miss counters
func (c *TieredTermCache) Stats() TieredStats {
	return TieredStats{
		L1Hits:   c.l1Hits.Load(),
		L1Misses: c.l1Misses.Load(),
		L2Hits:   c.l2Hits.Load(),
		L2Misses: c.l2Misses.Load(),
	}
}

// Close stops the L1 cleanup loop and closes L2 when it holds a connection
func (c *TieredTermCache) Close() error {
	err := c.l1.Close()
	if closer, ok := c.l2.(interface{ Close() error }); ok {
		err = errors.Join(err, closer.Close())
	}
	return err
}

// Ensure TieredTermCache implements TermCache
var _ integration.TermCache = (*TieredTermCache)(nil)
