package integration

import (
	"context"
	"iter"

	"github.com/shopspring/decimal"
)

// AttributeValue is one product attribute with its resolved terms
type AttributeValue struct {
	Attribute TaxonomyTerm
	Terms     []TaxonomyTerm
}

// MetaEntry is a key/value pair mirrored as channel metadata
type MetaEntry struct {
	Key   string
	Value string
}

// EntityPayload is the channel-independent description of what to write for one
// entity. Gateways translate it into their native request body.
type EntityPayload struct {
	Kind        EntityKind
	Name        string
	SKU         string
	Description string
	Price       *decimal.Decimal
	Stock       *int64
	Categories  []TaxonomyTerm
	Brands      []TaxonomyTerm
	Attributes  []AttributeValue
	Metadata    []MetaEntry
}

// ChannelGateway is the port the sync core uses to talk to one channel.
// Implementations wrap a retryable REST client.
type ChannelGateway interface {
	// Channel returns the configured channel
	Channel() Channel

	// TermCollection returns the collection path holding terms of a kind
	TermCollection(kind TaxonomyKind, parentID string) string

	// SearchTerms queries terms by display name as the channel understands it
	SearchTerms(ctx context.Context, kind TaxonomyKind, parentID, name string) ([]TaxonomyTerm, error)

	// CreateTerm creates a term. Returns an error wrapping ErrTermExists when the
	// channel rejects the name as a duplicate.
	CreateTerm(ctx context.Context, kind TaxonomyKind, parentID, name string) (TaxonomyTerm, error)

	// ListTerms returns every term of a kind, following pagination
	ListTerms(ctx context.Context, kind TaxonomyKind, parentID string) ([]TaxonomyTerm, error)

	// DeleteTerm permanently deletes a term
	DeleteTerm(ctx context.Context, kind TaxonomyKind, parentID, externalID string) error

	// CreateEntity creates the entity in collection and returns its external ID
	CreateEntity(ctx context.Context, collection string, payload EntityPayload) (string, error)

	// UpdateEntity overwrites the entity with externalID in collection
	UpdateEntity(ctx context.Context, collection, externalID string, payload EntityPayload) error
}

// EntitySource yields canonical entities of one kind page by page.
// Breaking out of the sequence stops fetching.
type EntitySource interface {
	Entities(ctx context.Context, kind EntityKind) iter.Seq2[[]CanonicalEntity, error]
}

// MetadataPublisher writes sync metadata back onto the canonical record
type MetadataPublisher interface {
	PublishSyncMetadata(ctx context.Context, entity *CanonicalEntity, mapping ExternalIDMapping) error
}

// TermCache persists resolved taxonomy terms across runs
type TermCache interface {
	Get(ctx context.Context, scope TermScope) (TaxonomyTerm, bool, error)
	Put(ctx context.Context, term TaxonomyTerm) error

	// Evict drops the entry of the term's scope when it still points at the term's
	// external ID
	Evict(ctx context.Context, term TaxonomyTerm) error
}
