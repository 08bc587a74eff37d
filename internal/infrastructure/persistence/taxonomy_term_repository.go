package persistence

import (
	"context"
	"errors"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ensure GormTermCache implements the term cache port
var _ integration.TermCache = (*GormTermCache)(nil)

// GormTermCache persists resolved taxonomy terms next to the identifier map so later
// runs skip the channel search
type GormTermCache struct {
	db *gorm.DB
}

// NewGormTermCache creates a new GormTermCache
func NewGormTermCache(db *gorm.DB) *GormTermCache {
	return &GormTermCache{db: db}
}

func scopeQuery(db *gorm.DB, scope integration.TermScope) *gorm.DB {
	return db.Where("channel = ? AND kind = ? AND parent_id = ? AND term_key = ?",
		string(scope.Channel), string(scope.Kind), scope.ParentID, scope.Key)
}

// Get returns the cached term of a scope
func (r *GormTermCache) Get(ctx context.Context, scope integration.TermScope) (integration.TaxonomyTerm, bool, error) {
	var model models.TaxonomyTermModel
	if err := scopeQuery(r.db.WithContext(ctx), scope).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return integration.TaxonomyTerm{}, false, nil
		}
		return integration.TaxonomyTerm{}, false, err
	}
	return model.ToDomain(), true, nil
}

// Put stores a term, replacing the previous entry of its scope
func (r *GormTermCache) Put(ctx context.Context, term integration.TaxonomyTerm) error {
	if term.ExternalID == "" {
		return integration.ErrInvalidExternalID
	}
	if term.Key == "" {
		term.Key = integration.NormalizeKey(term.DisplayName)
	}
	model := models.TaxonomyTermModelFromDomain(&term)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel"}, {Name: "kind"}, {Name: "parent_id"}, {Name: "term_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"external_id", "display_name", "sequence", "modified_at", "updated_at"}),
		}).
		Create(model).Error
}

// Evict deletes the entry of the term's scope if it still holds the term's external ID
func (r *GormTermCache) Evict(ctx context.Context, term integration.TaxonomyTerm) error {
	return scopeQuery(r.db.WithContext(ctx), term.Scope()).
		Where("external_id = ?", term.ExternalID).
		Delete(&models.TaxonomyTermModel{}).Error
}
