// Package shops loads seller shops and the nonprofits they donate to.
package shops

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
)

// Repository handles shop persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to shop operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a shop by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

// FindMany returns the requested shops keyed by id. Missing ids are absent.
func (r *Repository) FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Shop, error) {
	out := make(map[uuid.UUID]models.Shop, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Shop
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// IsOwner reports whether userID owns shopID.
func (r *Repository) IsOwner(ctx context.Context, shopID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Shop{}).
		Where("id = ? AND owner_user_id = ?", shopID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindNonprofit loads a nonprofit by id.
func (r *Repository) FindNonprofit(ctx context.Context, id uuid.UUID) (*models.Nonprofit, error) {
	var nonprofit models.Nonprofit
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&nonprofit).Error; err != nil {
		return nil, err
	}
	return &nonprofit, nil
}
