package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTaxonomyResolver_CreatesMissingTerm(t *testing.T) {
	gw := newFakeGateway(testChannel())
	r := NewTaxonomyResolver(zaptest.NewLogger(t))

	term, found, err := r.ResolveTerm(context.Background(), gw, integration.TaxonomyKindCategory, "Escolar", "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Escolar", term.DisplayName)
	assert.Equal(t, "escolar", term.Key)
	assert.NotEmpty(t, term.ExternalID)

	searches, creates, _, _ := gw.counts()
	assert.Equal(t, 1, searches)
	assert.Equal(t, 1, creates)
}

func TestTaxonomyResolver_ReusesExistingTerm(t *testing.T) {
	gw := newFakeGateway(testChannel())
	existing := gw.seedTerm(integration.TaxonomyKindBrand, "", "Planeta ", time.Time{})
	r := NewTaxonomyResolver(nil)

	term, found, err := r.ResolveTerm(context.Background(), gw, integration.TaxonomyKindBrand, "planeta", "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, existing.ExternalID, term.ExternalID)

	_, creates, _, _ := gw.counts()
	assert.Zero(t, creates)
}

func TestTaxonomyResolver_SearchIgnoresPartialMatches(t *testing.T) {
	gw := newFakeGateway(testChannel())
	gw.seedTerm(integration.TaxonomyKindCategory, "", "Escolar infantil", time.Time{})
	r := NewTaxonomyResolver(nil)

	term, found, err := r.ResolveTerm(context.Background(), gw, integration.TaxonomyKindCategory, "Escolar", "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Escolar", term.DisplayName)
	assert.Len(t, gw.termsOf(integration.TaxonomyKindCategory, ""), 2)
}

func TestTaxonomyResolver_Memoizes(t *testing.T) {
	gw := newFakeGateway(testChannel())
	r := NewTaxonomyResolver(nil)
	ctx := context.Background()

	first, _, err := r.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, "Escolar", "")
	require.NoError(t, err)
	second, _, err := r.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, "  ESCOLAR ", "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	searches, creates, _, _ := gw.counts()
	assert.Equal(t, 1, searches)
	assert.Equal(t, 1, creates)
	assert.EqualValues(t, 1, r.Stats().MemoHits)
}

func TestTaxonomyResolver_ConcurrentResolutionCreatesOnce(t *testing.T) {
	gw := newFakeGateway(testChannel())
	gw.allowDuplicates = true
	gw.createDelay = 20 * time.Millisecond
	r := NewTaxonomyResolver(nil)

	const workers = 16
	results := make([]integration.TaxonomyTerm, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			term, found, err := r.ResolveTerm(context.Background(), gw, integration.TaxonomyKindBrand, "Santillana", "")
			assert.NoError(t, err)
			assert.True(t, found)
			results[i] = term
		}()
	}
	wg.Wait()

	_, creates, _, _ := gw.counts()
	assert.Equal(t, 1, creates)
	assert.Len(t, gw.termsOf(integration.TaxonomyKindBrand, ""), 1)
	for _, term := range results {
		assert.Equal(t, results[0].ExternalID, term.ExternalID)
	}
}

func TestTaxonomyResolver_ConflictRequeries(t *testing.T) {
	gw := newFakeGateway(testChannel())
	// Another process created the term between our search and our create
	existing := gw.seedTerm(integration.TaxonomyKindCategory, "", "Escolar", time.Time{})
	gw.hideOnSearch = 1
	r := NewTaxonomyResolver(nil)

	term, found, err := r.ResolveTerm(context.Background(), gw, integration.TaxonomyKindCategory, "escolar", "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, existing.ExternalID, term.ExternalID)

	searches, creates, _, _ := gw.counts()
	assert.Equal(t, 2, searches)
	assert.Equal(t, 1, creates)
	assert.EqualValues(t, 1, r.Stats().Conflicts)
	assert.Len(t, gw.termsOf(integration.TaxonomyKindCategory, ""), 1)
}

func TestTaxonomyResolver_Absent(t *testing.T) {
	ch := testChannel()
	ch.Capabilities.Brands = false
	gw := newFakeGateway(ch)
	r := NewTaxonomyResolver(nil)
	ctx := context.Background()

	t.Run("Unsupported kind", func(t *testing.T) {
		_, found, err := r.ResolveTerm(ctx, gw, integration.TaxonomyKindBrand, "Planeta", "")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Blank name", func(t *testing.T) {
		_, found, err := r.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, "   ", "")
		require.NoError(t, err)
		assert.False(t, found)
	})

	searches, creates, _, _ := gw.counts()
	assert.Zero(t, searches)
	assert.Zero(t, creates)
}

func TestTaxonomyResolver_AttributeTermNeedsParent(t *testing.T) {
	gw := newFakeGateway(testChannel())
	r := NewTaxonomyResolver(nil)

	_, _, err := r.ResolveTerm(context.Background(), gw, integration.TaxonomyKindAttributeTerm, "Tapa dura", "")
	assert.ErrorIs(t, err, integration.ErrValidation)
}

func TestTaxonomyResolver_UsesTermCache(t *testing.T) {
	gw := newFakeGateway(testChannel())
	cache := newFakeTermCache()
	cached := integration.NewTaxonomyTerm("tienda", integration.TaxonomyKindCategory, "", "77", "Escolar")
	require.NoError(t, cache.Put(context.Background(), cached))

	r := NewTaxonomyResolver(nil, WithTermCache(cache))
	term, found, err := r.ResolveTerm(context.Background(), gw, integration.TaxonomyKindCategory, "escolar", "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "77", term.ExternalID)

	searches, _, _, _ := gw.counts()
	assert.Zero(t, searches)
	assert.EqualValues(t, 1, r.Stats().CacheHits)

	// A fresh resolution is written back to the cache
	_, _, err = r.ResolveTerm(context.Background(), gw, integration.TaxonomyKindCategory, "Moraleja", "")
	require.NoError(t, err)
	_, found, _ = cache.Get(context.Background(), integration.TermScope{Channel: "tienda", Kind: integration.TaxonomyKindCategory, Key: "moraleja"})
	assert.True(t, found)
}

func TestTaxonomyResolver_DropCached(t *testing.T) {
	gw := newFakeGateway(testChannel())
	cache := newFakeTermCache()
	ctx := context.Background()
	stale := integration.NewTaxonomyTerm("tienda", integration.TaxonomyKindCategory, "", "77", "Escolar")
	require.NoError(t, cache.Put(ctx, stale))

	r := NewTaxonomyResolver(nil, WithTermCache(cache))
	fromCache, _, err := r.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, "Escolar", "")
	require.NoError(t, err)
	fromChannel, _, err := r.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, "Moraleja", "")
	require.NoError(t, err)

	assert.Equal(t, 1, r.DropCached(ctx, []integration.TaxonomyTerm{fromCache, fromChannel}))
	_, found, _ := cache.Get(ctx, stale.Scope())
	assert.False(t, found)
	_, found, _ = cache.Get(ctx, fromChannel.Scope())
	assert.True(t, found, "terms confirmed by the channel stay cached")

	// Resolution goes back to the channel, which no longer has term 77
	fresh, found, err := r.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, "Escolar", "")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEqual(t, "77", fresh.ExternalID)
	assert.Zero(t, r.DropCached(ctx, []integration.TaxonomyTerm{fresh}))
}

func TestTaxonomyResolver_ReadOnly(t *testing.T) {
	gw := newFakeGateway(testChannel())
	existing := gw.seedTerm(integration.TaxonomyKindCategory, "", "Escolar", time.Time{})
	r := NewTaxonomyResolver(nil, WithReadOnly(true))
	ctx := context.Background()

	term, found, err := r.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, "Escolar", "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, existing.ExternalID, term.ExternalID)

	_, found, err = r.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, "Moraleja", "")
	require.NoError(t, err)
	assert.False(t, found)

	_, creates, _, _ := gw.counts()
	assert.Zero(t, creates)
}

// failingSearchGateway fails every search
type failingSearchGateway struct {
	*fakeGateway
	err error
}

func (g failingSearchGateway) SearchTerms(context.Context, integration.TaxonomyKind, string, string) ([]integration.TaxonomyTerm, error) {
	return nil, g.err
}

func TestTaxonomyResolver_SearchFailureIsNotMemoized(t *testing.T) {
	unavailable := &integration.ChannelError{Kind: integration.ErrorKindChannelUnavailable, Channel: "tienda", StatusCode: 503}
	failing := failingSearchGateway{fakeGateway: newFakeGateway(testChannel()), err: unavailable}
	r := NewTaxonomyResolver(nil)
	ctx := context.Background()

	_, _, err := r.ResolveTerm(ctx, failing, integration.TaxonomyKindCategory, "Escolar", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, integration.ErrChannelUnavailable))

	// The next resolution goes back to the channel
	term, found, err := r.ResolveTerm(ctx, failing.fakeGateway, integration.TaxonomyKindCategory, "Escolar", "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotEmpty(t, term.ExternalID)
}

func TestTaxonomyResolver_Forget(t *testing.T) {
	gw := newFakeGateway(testChannel())
	r := NewTaxonomyResolver(nil)
	ctx := context.Background()

	term, _, err := r.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, "Escolar", "")
	require.NoError(t, err)
	r.Forget(term.Scope())

	_, _, err = r.ResolveTerm(ctx, gw, integration.TaxonomyKindCategory, "Escolar", "")
	require.NoError(t, err)
	searches, creates, _, _ := gw.counts()
	assert.Equal(t, 2, searches)
	assert.Equal(t, 1, creates)
}
