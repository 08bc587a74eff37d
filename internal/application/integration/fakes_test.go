package integration

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/stretchr/testify/mock"
)

// ---------------------------------------------------------------------------
// fakeGateway
// ---------------------------------------------------------------------------

type entityCall struct {
	Collection string
	ExternalID string
	Payload    integration.EntityPayload
}

type termCall struct {
	Kind     integration.TaxonomyKind
	ParentID string
	Name     string
}

// fakeGateway is an in-memory storefront. Term names are unique per normalized key
// unless allowDuplicates is set, like a storefront that rejects taken slugs.
type fakeGateway struct {
	mu              sync.Mutex
	channel         integration.Channel
	terms           map[string][]integration.TaxonomyTerm
	nextID          int64
	allowDuplicates bool
	// hideOnSearch makes the next n searches return nothing, simulating a term
	// created by a concurrent writer after the search
	hideOnSearch    int
	createDelay     time.Duration
	createErr       error
	updateErr       error
	searches        []termCall
	termCreates     []termCall
	deletedTerms    []string
	creates         []entityCall
	updates         []entityCall
}

func newFakeGateway(ch integration.Channel) *fakeGateway {
	return &fakeGateway{
		channel: ch,
		terms:   make(map[string][]integration.TaxonomyTerm),
		nextID:  100,
	}
}

func testChannel() integration.Channel {
	return integration.Channel{
		Key:          "tienda",
		BaseURL:      "https://tienda.example",
		Capabilities: integration.Capabilities{Attributes: true, Brands: true, Categories: true},
		Collections:  integration.DefaultStorefrontCollections(),
	}
}

func termBucket(kind integration.TaxonomyKind, parentID string) string {
	return string(kind) + "/" + parentID
}

func (g *fakeGateway) Channel() integration.Channel {
	return g.channel
}

func (g *fakeGateway) TermCollection(kind integration.TaxonomyKind, parentID string) string {
	switch kind {
	case integration.TaxonomyKindAttributeTerm:
		return "products/attributes/" + parentID + "/terms"
	case integration.TaxonomyKindAttribute:
		return "products/attributes"
	case integration.TaxonomyKindBrand:
		return "products/brands"
	default:
		return "products/categories"
	}
}

// seedTerm adds a term directly, bypassing duplicate checks
func (g *fakeGateway) seedTerm(kind integration.TaxonomyKind, parentID, name string, modified time.Time) integration.TaxonomyTerm {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addTerm(kind, parentID, name, modified)
}

func (g *fakeGateway) addTerm(kind integration.TaxonomyKind, parentID, name string, modified time.Time) integration.TaxonomyTerm {
	g.nextID++
	t := integration.NewTaxonomyTerm(g.channel.Key, kind, parentID, strconv.FormatInt(g.nextID, 10), name)
	t.Sequence = g.nextID
	t.ModifiedAt = modified
	b := termBucket(kind, parentID)
	g.terms[b] = append(g.terms[b], t)
	return t
}

func (g *fakeGateway) SearchTerms(_ context.Context, kind integration.TaxonomyKind, parentID, name string) ([]integration.TaxonomyTerm, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searches = append(g.searches, termCall{Kind: kind, ParentID: parentID, Name: name})
	if g.hideOnSearch > 0 {
		g.hideOnSearch--
		return nil, nil
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	var out []integration.TaxonomyTerm
	for _, t := range g.terms[termBucket(kind, parentID)] {
		if strings.Contains(strings.ToLower(t.DisplayName), needle) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (g *fakeGateway) CreateTerm(_ context.Context, kind integration.TaxonomyKind, parentID, name string) (integration.TaxonomyTerm, error) {
	if g.createDelay > 0 {
		time.Sleep(g.createDelay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.termCreates = append(g.termCreates, termCall{Kind: kind, ParentID: parentID, Name: name})
	if !g.allowDuplicates {
		key := integration.NormalizeKey(name)
		for _, t := range g.terms[termBucket(kind, parentID)] {
			if t.Key == key {
				return integration.TaxonomyTerm{}, fmt.Errorf("%w: %s", integration.ErrTermExists, name)
			}
		}
	}
	return g.addTerm(kind, parentID, name, time.Time{}), nil
}

func (g *fakeGateway) ListTerms(_ context.Context, kind integration.TaxonomyKind, parentID string) ([]integration.TaxonomyTerm, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.terms[termBucket(kind, parentID)]), nil
}

func (g *fakeGateway) DeleteTerm(_ context.Context, kind integration.TaxonomyKind, parentID, externalID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := termBucket(kind, parentID)
	before := len(g.terms[b])
	g.terms[b] = slices.DeleteFunc(g.terms[b], func(t integration.TaxonomyTerm) bool {
		return t.ExternalID == externalID
	})
	if len(g.terms[b]) == before {
		return &integration.ChannelError{Kind: integration.ErrorKindValidation, Channel: g.channel.Key, Method: "DELETE", StatusCode: 404}
	}
	g.deletedTerms = append(g.deletedTerms, externalID)
	return nil
}

func (g *fakeGateway) CreateEntity(_ context.Context, collection string, payload integration.EntityPayload) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return "", g.createErr
	}
	g.nextID++
	id := strconv.FormatInt(g.nextID, 10)
	g.creates = append(g.creates, entityCall{Collection: collection, ExternalID: id, Payload: payload})
	return id, nil
}

func (g *fakeGateway) UpdateEntity(_ context.Context, collection, externalID string, payload integration.EntityPayload) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return g.updateErr
	}
	g.updates = append(g.updates, entityCall{Collection: collection, ExternalID: externalID, Payload: payload})
	return nil
}

func (g *fakeGateway) termsOf(kind integration.TaxonomyKind, parentID string) []integration.TaxonomyTerm {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.terms[termBucket(kind, parentID)])
}

func (g *fakeGateway) counts() (searches, termCreates, creates, updates int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.searches), len(g.termCreates), len(g.creates), len(g.updates)
}

// ---------------------------------------------------------------------------
// fakeIdentifierMap
// ---------------------------------------------------------------------------

type mappingKey struct {
	entityID string
	channel  integration.ChannelKey
}

type fakeIdentifierMap struct {
	mu           sync.Mutex
	rows         map[mappingKey]integration.ExternalIDMapping
	commitErr    error
	missingErr   error
	lookups      map[string]int
	missingCalls [][]string
}

func newFakeIdentifierMap() *fakeIdentifierMap {
	return &fakeIdentifierMap{
		rows:    make(map[mappingKey]integration.ExternalIDMapping),
		lookups: make(map[string]int),
	}
}

func (m *fakeIdentifierMap) Lookup(_ context.Context, entityID string, channel integration.ChannelKey) (integration.ExternalIDMapping, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[entityID]++
	row, ok := m.rows[mappingKey{entityID, channel}]
	return row, ok, nil
}

func (m *fakeIdentifierMap) EntitiesMissingOn(_ context.Context, channel integration.ChannelKey, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missingCalls = append(m.missingCalls, slices.Clone(ids))
	if m.missingErr != nil {
		return nil, m.missingErr
	}
	missing := []string{}
	for _, id := range ids {
		if _, ok := m.rows[mappingKey{id, channel}]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (m *fakeIdentifierMap) Commit(_ context.Context, mapping integration.ExternalIDMapping) error {
	if err := mapping.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	m.rows[mappingKey{mapping.EntityID, mapping.Channel}] = mapping
	return nil
}

func (m *fakeIdentifierMap) FindDuplicateMappings(_ context.Context, channel integration.ChannelKey) ([]integration.DuplicateMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups := make(map[string]*integration.DuplicateMapping)
	for k, row := range m.rows {
		if k.channel != channel {
			continue
		}
		key := row.Collection + "|" + row.ExternalID
		g, ok := groups[key]
		if !ok {
			g = &integration.DuplicateMapping{Channel: channel, Collection: row.Collection, ExternalID: row.ExternalID}
			groups[key] = g
		}
		g.Mappings = append(g.Mappings, row)
	}
	var out []integration.DuplicateMapping
	for _, g := range groups {
		if len(g.Mappings) > 1 {
			slices.SortFunc(g.Mappings, func(a, b integration.ExternalIDMapping) int {
				return cmp.Or(a.SyncedAt.Compare(b.SyncedAt), strings.Compare(a.EntityID, b.EntityID))
			})
			out = append(out, *g)
		}
	}
	slices.SortFunc(out, func(a, b integration.DuplicateMapping) int {
		return strings.Compare(a.ExternalID, b.ExternalID)
	})
	return out, nil
}

func (m *fakeIdentifierMap) RedirectExternalID(_ context.Context, channel integration.ChannelKey, collection, from, to string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, row := range m.rows {
		if k.channel == channel && row.Collection == collection && row.ExternalID == from {
			row.ExternalID = to
			m.rows[k] = row
			n++
		}
	}
	return n, nil
}

func (m *fakeIdentifierMap) Delete(_ context.Context, entityID string, channel integration.ChannelKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mappingKey{entityID, channel}
	if _, ok := m.rows[k]; !ok {
		return integration.ErrMappingNotFound
	}
	delete(m.rows, k)
	return nil
}

func (m *fakeIdentifierMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// ---------------------------------------------------------------------------
// fakeTermCache
// ---------------------------------------------------------------------------

type fakeTermCache struct {
	mu      sync.Mutex
	entries map[string]integration.TaxonomyTerm
}

func newFakeTermCache() *fakeTermCache {
	return &fakeTermCache{entries: make(map[string]integration.TaxonomyTerm)}
}

func (c *fakeTermCache) Get(_ context.Context, scope integration.TermScope) (integration.TaxonomyTerm, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[scope.String()]
	return t, ok, nil
}

func (c *fakeTermCache) Put(_ context.Context, term integration.TaxonomyTerm) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[term.Scope().String()] = term
	return nil
}

func (c *fakeTermCache) Evict(_ context.Context, term integration.TaxonomyTerm) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := term.Scope().String()
	if t, ok := c.entries[key]; ok && t.ExternalID == term.ExternalID {
		delete(c.entries, key)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sources and publishers
// ---------------------------------------------------------------------------

// sliceSource serves entities of each kind in pages of pageSize
type sliceSource struct {
	entities []integration.CanonicalEntity
	pageSize int
	pulled   int
}

func (s *sliceSource) Entities(_ context.Context, kind integration.EntityKind) iter.Seq2[[]integration.CanonicalEntity, error] {
	return func(yield func([]integration.CanonicalEntity, error) bool) {
		var ofKind []integration.CanonicalEntity
		for _, e := range s.entities {
			if e.Kind == kind {
				ofKind = append(ofKind, e)
			}
		}
		for page := range slices.Chunk(ofKind, max(s.pageSize, 1)) {
			s.pulled++
			if !yield(page, nil) {
				return
			}
		}
	}
}

// MockMetadataPublisher is a mock implementation of MetadataPublisher
type MockMetadataPublisher struct {
	mock.Mock
}

func (m *MockMetadataPublisher) PublishSyncMetadata(ctx context.Context, entity *integration.CanonicalEntity, mapping integration.ExternalIDMapping) error {
	args := m.Called(ctx, entity, mapping)
	return args.Error(0)
}

// ---------------------------------------------------------------------------
// Entity builders
// ---------------------------------------------------------------------------

func newBook(id, name string) integration.CanonicalEntity {
	return integration.CanonicalEntity{
		ID:        id,
		Kind:      integration.EntityKindBook,
		Name:      name,
		ISBN:      "978-84-08-" + id,
		State:     integration.LifecyclePublished,
		UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newAuthor(id, name string) integration.CanonicalEntity {
	return integration.CanonicalEntity{
		ID:    id,
		Kind:  integration.EntityKindAuthor,
		Name:  name,
		State: integration.LifecyclePublished,
	}
}

func newPublisher(id, name string) integration.CanonicalEntity {
	return integration.CanonicalEntity{
		ID:    id,
		Kind:  integration.EntityKindPublisher,
		Name:  name,
		State: integration.LifecyclePublished,
	}
}

func metaValue(p integration.EntityPayload, key string) (string, bool) {
	for _, m := range p.Metadata {
		if m.Key == key {
			return m.Value, true
		}
	}
	return "", false
}
