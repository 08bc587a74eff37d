package models

import (
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
)

// ExternalIDMappingModel is the persistence model for integration.ExternalIDMapping.
// The composite primary key enforces at most one mapping per (entity, channel).
type ExternalIDMappingModel struct {
	EntityID    string    `gorm:"type:varchar(64);primaryKey"`
	Channel     string    `gorm:"type:varchar(64);primaryKey;index:idx_external_id_mappings_external,priority:1"`
	EntityKind  string    `gorm:"type:varchar(20);not null"`
	Collection  string    `gorm:"type:varchar(100);not null;index:idx_external_id_mappings_external,priority:2"`
	ExternalID  string    `gorm:"type:varchar(100);not null;index:idx_external_id_mappings_external,priority:3"`
	ContentHash string    `gorm:"type:varchar(64);not null;default:''"`
	SyncedAt    time.Time `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ExternalIDMappingModel) TableName() string {
	return "external_id_mappings"
}

// ToDomain converts the persistence model to a domain mapping
func (m *ExternalIDMappingModel) ToDomain() integration.ExternalIDMapping {
	return integration.ExternalIDMapping{
		EntityID:    m.EntityID,
		EntityKind:  integration.EntityKind(m.EntityKind),
		Channel:     integration.ChannelKey(m.Channel),
		Collection:  m.Collection,
		ExternalID:  m.ExternalID,
		ContentHash: m.ContentHash,
		SyncedAt:    m.SyncedAt,
	}
}

// ExternalIDMappingModelFromDomain creates a persistence model from a domain mapping
func ExternalIDMappingModelFromDomain(mapping *integration.ExternalIDMapping) *ExternalIDMappingModel {
	return &ExternalIDMappingModel{
		EntityID:    mapping.EntityID,
		Channel:     string(mapping.Channel),
		EntityKind:  string(mapping.EntityKind),
		Collection:  mapping.Collection,
		ExternalID:  mapping.ExternalID,
		ContentHash: mapping.ContentHash,
		SyncedAt:    mapping.SyncedAt,
	}
}
