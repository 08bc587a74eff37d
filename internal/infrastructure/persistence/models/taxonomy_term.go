package models

import (
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
)

// TaxonomyTermModel persists a resolved term under its normalized scope
type TaxonomyTermModel struct {
	Channel     string `gorm:"type:varchar(64);primaryKey"`
	Kind        string `gorm:"type:varchar(20);primaryKey"`
	ParentID    string `gorm:"type:varchar(100);primaryKey;default:''"`
	Key         string `gorm:"column:term_key;type:varchar(255);primaryKey"`
	ExternalID  string `gorm:"type:varchar(100);not null"`
	DisplayName string `gorm:"type:varchar(255);not null"`
	Sequence    int64  `gorm:"not null;default:0"`
	ModifiedAt  *time.Time
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TaxonomyTermModel) TableName() string {
	return "taxonomy_terms"
}

// ToDomain converts the persistence model to a domain term
func (m *TaxonomyTermModel) ToDomain() integration.TaxonomyTerm {
	term := integration.TaxonomyTerm{
		Channel:     integration.ChannelKey(m.Channel),
		Kind:        integration.TaxonomyKind(m.Kind),
		ParentID:    m.ParentID,
		ExternalID:  m.ExternalID,
		DisplayName: m.DisplayName,
		Key:         m.Key,
		Sequence:    m.Sequence,
	}
	if m.ModifiedAt != nil {
		term.ModifiedAt = *m.ModifiedAt
	}
	return term
}

// TaxonomyTermModelFromDomain creates a persistence model from a domain term
func TaxonomyTermModelFromDomain(term *integration.TaxonomyTerm) *TaxonomyTermModel {
	m := &TaxonomyTermModel{
		Channel:     string(term.Channel),
		Kind:        string(term.Kind),
		ParentID:    term.ParentID,
		Key:         term.Key,
		ExternalID:  term.ExternalID,
		DisplayName: term.DisplayName,
		Sequence:    term.Sequence,
	}
	if !term.ModifiedAt.IsZero() {
		modified := term.ModifiedAt
		m.ModifiedAt = &modified
	}
	return m
}
