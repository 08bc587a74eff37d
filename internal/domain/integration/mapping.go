package integration

import (
	"context"
	"time"
)

// ExternalIDMapping associates a canonical entity with its identifier on one channel.
// At most one mapping exists per (EntityID, Channel).
type ExternalIDMapping struct {
	EntityID    string
	EntityKind  EntityKind
	Channel     ChannelKey
	// Collection is the channel collection the external ID lives in. External IDs are
	// only unique within a collection.
	Collection  string
	ExternalID  string
	ContentHash string
	SyncedAt    time.Time
}

// Validate validates the mapping before it is committed
func (m *ExternalIDMapping) Validate() error {
	if m.EntityID == "" {
		return NewValidationError(m.EntityID, "entity_id", "is required")
	}
	if !m.Channel.IsValid() {
		return NewValidationError(m.EntityID, "channel", "is not a valid channel key")
	}
	if m.ExternalID == "" {
		return ErrInvalidExternalID
	}
	return nil
}

// DuplicateMapping is a set of entities that point at one external object on a channel
type DuplicateMapping struct {
	Channel    ChannelKey
	Collection string
	ExternalID string
	Mappings   []ExternalIDMapping
}

// ---------------------------------------------------------------------------
// Identifier map ports
// ---------------------------------------------------------------------------

// IdentifierMapReader defines read operations on the identifier map
type IdentifierMapReader interface {
	// Lookup returns the mapping for (entityID, channel). found is false when the entity
	// has never been synced to the channel; that is not an error.
	Lookup(ctx context.Context, entityID string, channel ChannelKey) (mapping ExternalIDMapping, found bool, err error)

	// EntitiesMissingOn returns the candidates with no mapping on the channel, in input order
	EntitiesMissingOn(ctx context.Context, channel ChannelKey, candidateIDs []string) ([]string, error)
}

// IdentifierMapWriter defines write operations on the identifier map
type IdentifierMapWriter interface {
	// Commit upserts the mapping for (EntityID, Channel). Last write wins.
	Commit(ctx context.Context, mapping ExternalIDMapping) error
}

// IdentifierMapReconciler defines the destructive operations only reconciliation uses
type IdentifierMapReconciler interface {
	// FindDuplicateMappings returns groups of entities sharing one external ID
	FindDuplicateMappings(ctx context.Context, channel ChannelKey) ([]DuplicateMapping, error)

	// RedirectExternalID rewrites every mapping pointing at from to point at to.
	// Returns the number of rewritten rows.
	RedirectExternalID(ctx context.Context, channel ChannelKey, collection, from, to string) (int64, error)

	// Delete removes the mapping for (entityID, channel)
	Delete(ctx context.Context, entityID string, channel ChannelKey) error
}

// IdentifierMap is the persistent canonical ID -> external ID association
type IdentifierMap interface {
	IdentifierMapReader
	IdentifierMapWriter
	IdentifierMapReconciler
}
