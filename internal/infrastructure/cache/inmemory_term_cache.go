package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
)

// DefaultL1TTL bounds how long a process keeps a term it did not resolve itself
const DefaultL1TTL = 10 * time.Minute

// termEntry is a cached term with expiration
type termEntry struct {
	term      integration.TaxonomyTerm
	expiresAt time.Time
}

// InMemoryTermCache implements integration.TermCache with a map.
// This is suitable for single-process runs and as the L1 of TieredTermCache.
type InMemoryTermCache struct {
	mu        sync.RWMutex
	entries   map[string]termEntry
	ttl       time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryTermCache creates an in-memory term cache. A ttl <= 0 keeps entries for
// the life of the process. It starts a background goroutine that drops expired entries.
func NewInMemoryTermCache(ttl time.Duration) *InMemoryTermCache {
	c := &InMemoryTermCache{
		entries:  make(map[string]termEntry),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	if ttl > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(max(ttl, time.Minute))
	}
	return c
}

// Get returns the term of a scope if present and not expired
func (c *InMemoryTermCache) Get(_ context.Context, scope integration.TermScope) (integration.TaxonomyTerm, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[scope.String()]
	if !ok || c.expired(e) {
		return integration.TaxonomyTerm{}, false, nil
	}
	return e.term, true, nil
}

// Put stores a term under its scope
func (c *InMemoryTermCache) Put(_ context.Context, term integration.TaxonomyTerm) error {
	if term.ExternalID == "" {
		return integration.ErrInvalidExternalID
	}
	e := termEntry{term: term}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[term.Scope().String()] = e
	return nil
}

// Evict drops the scope entry if it still holds the term's external ID
func (c *InMemoryTermCache) Evict(_ context.Context, term integration.TaxonomyTerm) error {
	key := term.Scope().String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.term.ExternalID == term.ExternalID {
		delete(c.entries, key)
	}
	return nil
}

// Delete drops the scope entry unconditionally
func (c *InMemoryTermCache) Delete(scope integration.TermScope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, scope.String())
}

// Size returns the number of entries, expired ones included
func (c *InMemoryTermCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *InMemoryTermCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

func (c *InMemoryTermCache) expired(e termEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

func (c *InMemoryTermCache) cleanupLoop(every time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries
func (c *InMemoryTermCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
		}
	}
}

// Ensure InMemoryTermCache implements TermCache
var _ integration.TermCache = (*InMemoryTermCache)(nil)
