package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
)

// Repository reads and decrements tracked stock on products and variants.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the shared connection.
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

// FindProducts loads the given products keyed by id.
func (r *Repository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindVariants loads the given variants keyed by id.
func (r *Repository) FindVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error) {
	out := make(map[uuid.UUID]models.ProductVariant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ProductVariant
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// Decrement removes qty units from the row only while enough remain, and
// reports whether a row was changed.
func (r *Repository) Decrement(ctx context.Context, key StockKey, qty int) (bool, error) {
	table := "products"
	id := key.ProductID
	if key.VariantID != nil {
		table = "product_variants"
		id = *key.VariantID
	}

	res := r.db.WithContext(ctx).Exec(`
		UPDATE `+table+`
		SET inventory_quantity = inventory_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND track_inventory = ? AND inventory_quantity >= ?
	`, qty, id, true, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CurrentQuantity re-reads the stock level after a failed decrement.
func (r *Repository) CurrentQuantity(ctx context.Context, key StockKey) (int, error) {
	var qty int
	var err error
	if key.VariantID != nil {
		err = r.db.WithContext(ctx).Model(&models.ProductVariant{}).
			Where("id = ?", *key.VariantID).
			Select("inventory_quantity").
			Scan(&qty).Error
	} else {
		err = r.db.WithContext(ctx).Model(&models.Product{}).
			Where("id = ?", key.ProductID).
			Select("inventory_quantity").
			Scan(&qty).Error
	}
	return qty, err
}
