package transfers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
)

// Repository persists one transfer row per (order, shop).
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOrderShop(ctx context.Context, orderID, shopID uuid.UUID) (*models.Transfer, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Transfer, error)
	Reserve(ctx context.Context, orderID, shopID uuid.UUID, amount decimal.Decimal, at time.Time) (*models.Transfer, error)
	MarkAccepted(ctx context.Context, id uuid.UUID, externalID string, at time.Time) error
	MarkOutcome(ctx context.Context, id uuid.UUID, status enums.TransferStatus, reason string, at time.Time) error
	ListRetryable(ctx context.Context, maxAttempts int, attemptedBefore time.Time, limit int) ([]models.Transfer, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transfers repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByOrderShop(ctx context.Context, orderID, shopID uuid.UUID) (*models.Transfer, error) {
	var row models.Transfer
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND shop_id = ?", orderID, shopID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.Transfer, error) {
	var row models.Transfer
	if err := r.db.WithContext(ctx).
		Where("external_transfer_id = ?", externalID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Reserve inserts the row on first use and bumps the attempt counter on every
// call. Accepted and reversed rows are returned untouched.
func (r *repository) Reserve(ctx context.Context, orderID, shopID uuid.UUID, amount decimal.Decimal, at time.Time) (*models.Transfer, error) {
	db := r.db.WithContext(ctx)
	if err := db.Exec(`
		INSERT INTO transfers (id, order_id, shop_id, amount, status, attempts, last_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (order_id, shop_id) DO UPDATE SET
			attempts = transfers.attempts + 1,
			status = excluded.status,
			last_attempt_at = excluded.last_attempt_at,
			updated_at = excluded.updated_at
		WHERE transfers.status NOT IN (?, ?)
	`, uuid.New(), orderID, shopID, amount, enums.TransferStatusPending, at, at, at,
		enums.TransferStatusAccepted, enums.TransferStatusReversed).Error; err != nil {
		return nil, err
	}
	return r.FindByOrderShop(ctx, orderID, shopID)
}

func (r *repository) MarkAccepted(ctx context.Context, id uuid.UUID, externalID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":               enums.TransferStatusAccepted,
			"external_transfer_id": externalID,
			"failure_reason":       nil,
			"updated_at":           at,
		}).Error
}

func (r *repository) MarkOutcome(ctx context.Context, id uuid.UUID, status enums.TransferStatus, reason string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         status,
			"failure_reason": reason,
			"updated_at":     at,
		}).Error
}

func (r *repository) ListRetryable(ctx context.Context, maxAttempts int, attemptedBefore time.Time, limit int) ([]models.Transfer, error) {
	var rows []models.Transfer
	if err := r.db.WithContext(ctx).
		Where("status = ? AND attempts < ? AND (last_attempt_at IS NULL OR last_attempt_at < ?)",
			enums.TransferStatusFailed, maxAttempts, attemptedBefore).
		Order("last_attempt_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
