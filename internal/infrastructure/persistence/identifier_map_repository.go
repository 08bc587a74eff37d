package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// missingLookupChunk bounds the IN list of EntitiesMissingOn queries
const missingLookupChunk = 500

// Ensure GormIdentifierMap implements the identifier map port
var _ integration.IdentifierMap = (*GormIdentifierMap)(nil)

// GormIdentifierMap implements integration.IdentifierMap using GORM
type GormIdentifierMap struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormIdentifierMap creates a new GormIdentifierMap
func NewGormIdentifierMap(db *gorm.DB) *GormIdentifierMap {
	return &GormIdentifierMap{db: db, now: time.Now}
}

// ---------------------------------------------------------------------------
// IdentifierMapReader implementation
// ---------------------------------------------------------------------------

// Lookup finds the mapping of an entity on a channel
func (r *GormIdentifierMap) Lookup(ctx context.Context, entityID string, channel integration.ChannelKey) (integration.ExternalIDMapping, bool, error) {
	var model models.ExternalIDMappingModel
	err := r.db.WithContext(ctx).
		Where("entity_id = ? AND channel = ?", entityID, string(channel)).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return integration.ExternalIDMapping{}, false, nil
		}
		return integration.ExternalIDMapping{}, false, err
	}
	return model.ToDomain(), true, nil
}

// EntitiesMissingOn returns the candidates without a mapping on the channel, in input
// order and without repeats
func (r *GormIdentifierMap) EntitiesMissingOn(ctx context.Context, channel integration.ChannelKey, candidateIDs []string) ([]string, error) {
	if len(candidateIDs) == 0 {
		return []string{}, nil
	}

	mapped := make(map[string]struct{}, len(candidateIDs))
	for start := 0; start < len(candidateIDs); start += missingLookupChunk {
		end := min(start+missingLookupChunk, len(candidateIDs))
		var ids []string
		if err := r.db.WithContext(ctx).
			Model(&models.ExternalIDMappingModel{}).
			Where("channel = ? AND entity_id IN ?", string(channel), candidateIDs[start:end]).
			Pluck("entity_id", &ids).Error; err != nil {
			return nil, err
		}
		for _, id := range ids {
			mapped[id] = struct{}{}
		}
	}

	missing := make([]string, 0, len(candidateIDs)-len(mapped))
	seen := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		if _, ok := mapped[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	return missing, nil
}

// ---------------------------------------------------------------------------
// IdentifierMapWriter implementation
// ---------------------------------------------------------------------------

// Commit upserts the mapping of (EntityID, Channel). A second commit for the same pair
// overwrites the first.
func (r *GormIdentifierMap) Commit(ctx context.Context, mapping integration.ExternalIDMapping) error {
	if err := mapping.Validate(); err != nil {
		return err
	}
	if mapping.SyncedAt.IsZero() {
		mapping.SyncedAt = r.now()
	}

	model := models.ExternalIDMappingModelFromDomain(&mapping)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entity_id"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"entity_kind", "collection", "external_id", "content_hash", "synced_at", "updated_at",
			}),
		}).
		Create(model).Error
}

// ---------------------------------------------------------------------------
// IdentifierMapReconciler implementation
// ---------------------------------------------------------------------------

type duplicateKey struct {
	Collection string
	ExternalID string
}

// FindDuplicateMappings returns the groups of entities that share one external ID in
// one collection. Members of a group are ordered oldest sync first.
func (r *GormIdentifierMap) FindDuplicateMappings(ctx context.Context, channel integration.ChannelKey) ([]integration.DuplicateMapping, error) {
	var keys []duplicateKey
	if err := r.db.WithContext(ctx).
		Model(&models.ExternalIDMappingModel{}).
		Select("collection, external_id").
		Where("channel = ?", string(channel)).
		Group("collection, external_id").
		Having("COUNT(*) > 1").
		Order("collection, external_id").
		Scan(&keys).Error; err != nil {
		return nil, err
	}

	groups := make([]integration.DuplicateMapping, 0, len(keys))
	for _, key := range keys {
		var rows []models.ExternalIDMappingModel
		if err := r.db.WithContext(ctx).
			Where("channel = ? AND collection = ? AND external_id = ?", string(channel), key.Collection, key.ExternalID).
			Order("synced_at ASC, entity_id ASC").
			Find(&rows).Error; err != nil {
			return nil, err
		}
		group := integration.DuplicateMapping{
			Channel:    channel,
			Collection: key.Collection,
			ExternalID: key.ExternalID,
			Mappings:   make([]integration.ExternalIDMapping, len(rows)),
		}
		for i, row := range rows {
			group.Mappings[i] = row.ToDomain()
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// RedirectExternalID points every mapping of from at to
func (r *GormIdentifierMap) RedirectExternalID(ctx context.Context, channel integration.ChannelKey, collection, from, to string) (int64, error) {
	if to == "" {
		return 0, integration.ErrInvalidExternalID
	}
	result := r.db.WithContext(ctx).
		Model(&models.ExternalIDMappingModel{}).
		Where("channel = ? AND collection = ? AND external_id = ?", string(channel), collection, from).
		Updates(map[string]any{
			"external_id": to,
			"updated_at":  r.now(),
		})
	return result.RowsAffected, result.Error
}

// Delete removes the mapping of (entityID, channel)
func (r *GormIdentifierMap) Delete(ctx context.Context, entityID string, channel integration.ChannelKey) error {
	result := r.db.WithContext(ctx).
		Delete(&models.ExternalIDMappingModel{}, "entity_id = ? AND channel = ?", entityID, string(channel))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrMappingNotFound
	}
	return nil
}
