package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ResolverStats counts how resolutions were served
type ResolverStats struct {
	MemoHits  int64
	CacheHits int64
	Searches  int64
	Creates   int64
	Conflicts int64
}

// TaxonomyResolver gets or creates taxonomy terms on a channel by display name.
// One resolver is created per run and shared by every worker of that run.
type TaxonomyResolver struct {
	cache    integration.TermCache
	logger   *zap.Logger
	readOnly bool

	// memo maps TermScope.String() to the resolved TaxonomyTerm
	memo  sync.Map
	group singleflight.Group
	// cached marks the memo entries served from the persistent cache without a channel
	// round trip
	cached sync.Map

	memoHits  atomic.Int64
	cacheHits atomic.Int64
	searches  atomic.Int64
	creates   atomic.Int64
	conflicts atomic.Int64
}

// ResolverOption configures a TaxonomyResolver
type ResolverOption func(*TaxonomyResolver)

// WithTermCache sets the persistent cache consulted before searching the channel
func WithTermCache(cache integration.TermCache) ResolverOption {
	return func(r *TaxonomyResolver) {
		r.cache = cache
	}
}

// WithReadOnly makes the resolver search only. Terms missing on the channel resolve
// as absent instead of being created.
func WithReadOnly(readOnly bool) ResolverOption {
	return func(r *TaxonomyResolver) {
		r.readOnly = readOnly
	}
}

// NewTaxonomyResolver creates a resolver with an empty memo
func NewTaxonomyResolver(logger *zap.Logger, opts ...ResolverOption) *TaxonomyResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &TaxonomyResolver{logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveTerm returns the term named displayName of the given kind on the gateway's
// channel, creating it when it does not exist. found is false when the channel does not
// support the kind or the name is blank; neither is an error.
func (r *TaxonomyResolver) ResolveTerm(
	ctx context.Context,
	gw integration.ChannelGateway,
	kind integration.TaxonomyKind,
	displayName string,
	parentID string,
) (integration.TaxonomyTerm, bool, error) {
	ch := gw.Channel()
	if !ch.Capabilities.Supports(kind) {
		return integration.TaxonomyTerm{}, false, nil
	}
	name := strings.TrimSpace(displayName)
	key := integration.NormalizeKey(name)
	if key == "" {
		return integration.TaxonomyTerm{}, false, nil
	}
	if kind.NeedsParent() && parentID == "" {
		return integration.TaxonomyTerm{}, false, integration.NewValidationError("", "parent_id", fmt.Sprintf("%s %q needs a parent attribute", kind, name))
	}

	scope := integration.TermScope{Channel: ch.Key, Kind: kind, ParentID: parentID, Key: key}
	memoKey := scope.String()
	if t, ok := r.memo.Load(memoKey); ok {
		r.memoHits.Add(1)
		return t.(integration.TaxonomyTerm), true, nil
	}

	v, err, _ := r.group.Do(memoKey, func() (any, error) {
		// A caller that lost the race with a finished flight reads the memo here
		if t, ok := r.memo.Load(memoKey); ok {
			r.memoHits.Add(1)
			return t, nil
		}
		term, found, err := r.resolve(ctx, gw, scope, name)
		if err != nil || !found {
			return nil, err
		}
		actual, _ := r.memo.LoadOrStore(memoKey, term)
		return actual, nil
	})
	if err != nil {
		return integration.TaxonomyTerm{}, false, err
	}
	if v == nil {
		return integration.TaxonomyTerm{}, false, nil
	}
	return v.(integration.TaxonomyTerm), true, nil
}

// resolve runs the cache, search and create steps for one scope
func (r *TaxonomyResolver) resolve(
	ctx context.Context,
	gw integration.ChannelGateway,
	scope integration.TermScope,
	name string,
) (integration.TaxonomyTerm, bool, error) {
	log := r.logger.With(
		zap.String("channel", scope.Channel.String()),
		zap.String("kind", scope.Kind.String()),
		zap.String("name", name),
	)

	if r.cache != nil {
		term, found, err := r.cache.Get(ctx, scope)
		if err != nil {
			log.Warn("term cache read failed", zap.Error(err))
		} else if found {
			r.cacheHits.Add(1)
			term.Key = scope.Key
			r.cached.Store(scope.String(), struct{}{})
			return term, true, nil
		}
	}

	term, found, err := r.search(ctx, gw, scope, name)
	if err != nil {
		return integration.TaxonomyTerm{}, false, err
	}
	if !found {
		if r.readOnly {
			log.Info("term missing on channel, would be created")
			return integration.TaxonomyTerm{}, false, nil
		}
		term, err = r.create(ctx, gw, scope, name)
		if err != nil {
			return integration.TaxonomyTerm{}, false, err
		}
	}
	term.Key = scope.Key

	if r.cache != nil {
		if err := r.cache.Put(ctx, term); err != nil {
			log.Warn("term cache write failed", zap.Error(err))
		}
	}
	return term, true, nil
}

// search queries the channel with the unnormalized name and returns the first result
// whose normalized name equals the scope key
func (r *TaxonomyResolver) search(
	ctx context.Context,
	gw integration.ChannelGateway,
	scope integration.TermScope,
	name string,
) (integration.TaxonomyTerm, bool, error) {
	r.searches.Add(1)
	terms, err := gw.SearchTerms(ctx, scope.Kind, scope.ParentID, name)
	if err != nil {
		return integration.TaxonomyTerm{}, false, fmt.Errorf("searching %s %q: %w", scope.Kind, name, err)
	}
	for _, t := range terms {
		if integration.NormalizeKey(t.DisplayName) == scope.Key && t.ExternalID != "" {
			return t, true, nil
		}
	}
	return integration.TaxonomyTerm{}, false, nil
}

// create creates the term. A conflict means another writer created it first, so the
// channel is searched again instead of failing.
func (r *TaxonomyResolver) create(
	ctx context.Context,
	gw integration.ChannelGateway,
	scope integration.TermScope,
	name string,
) (integration.TaxonomyTerm, error) {
	r.creates.Add(1)
	term, err := gw.CreateTerm(ctx, scope.Kind, scope.ParentID, name)
	if err == nil {
		return term, nil
	}
	if !errors.Is(err, integration.ErrTermExists) {
		return integration.TaxonomyTerm{}, fmt.Errorf("creating %s %q: %w", scope.Kind, name, err)
	}

	r.conflicts.Add(1)
	r.logger.Info("term created concurrently, re-querying",
		zap.String("channel", scope.Channel.String()),
		zap.String("kind", scope.Kind.String()),
		zap.String("name", name),
	)
	term, found, serr := r.search(ctx, gw, scope, name)
	if serr != nil {
		return integration.TaxonomyTerm{}, serr
	}
	if !found {
		return integration.TaxonomyTerm{}, fmt.Errorf("creating %s %q: %w", scope.Kind, name, err)
	}
	return term, nil
}

// Forget drops a scope from the memo so the next resolution goes back to the channel
func (r *TaxonomyResolver) Forget(scope integration.TermScope) {
	r.memo.Delete(scope.String())
}

// DropCached evicts the given terms from the persistent cache when this run took them
// from it unchecked, and forgets them so the next resolution asks the channel again.
// Terms resolved against the channel are left alone. Returns the number dropped.
func (r *TaxonomyResolver) DropCached(ctx context.Context, terms []integration.TaxonomyTerm) int {
	if r.cache == nil {
		return 0
	}
	dropped := 0
	for _, t := range terms {
		scope := t.Scope()
		if _, ok := r.cached.LoadAndDelete(scope.String()); !ok {
			continue
		}
		r.Forget(scope)
		if err := r.cache.Evict(ctx, t); err != nil {
			r.logger.Warn("term cache evict failed",
				zap.String("channel", scope.Channel.String()),
				zap.String("kind", scope.Kind.String()),
				zap.String("external_id", t.ExternalID),
				zap.Error(err),
			)
			continue
		}
		dropped++
	}
	return dropped
}

// Stats returns the resolution counters
func (r *TaxonomyResolver) Stats() ResolverStats {
	return ResolverStats{
		MemoHits:  r.memoHits.Load(),
		CacheHits: r.cacheHits.Load(),
		Searches:  r.searches.Load(),
		Creates:   r.creates.Load(),
		Conflicts: r.conflicts.Load(),
	}
}
