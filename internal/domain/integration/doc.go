// Package integration contains the catalog Integration bounded context.
// This context mirrors canonical catalog entities owned by the content store into
// external sales channels (storefronts, CRMs).
//
// Key concepts:
//   - CanonicalEntity: Source-of-truth record (book, author, publisher, imprint, collection)
//   - Channel: Configured external system instance with a declared capability set
//   - ExternalIDMapping: Durable (entity, channel) -> external ID association
//   - TaxonomyTerm: Named vocabulary value (attribute, term, brand, category) on a channel
//   - SyncRecord / RunReport: Ephemeral outcome of one orchestration pass
//
// Design Pattern: Ports & Adapters
//   - Ports (IdentifierMap, ChannelGateway, EntitySource, TermCache) are defined here
//   - Adapters (gorm, REST clients, redis) are in the infrastructure layer
package integration
