package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
)

// Repository persists seller balances and tax-year aggregates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreditSale(ctx context.Context, shopID uuid.UUID, sellerPayout decimal.Decimal, at time.Time) error
	RecordTaxablePayment(ctx context.Context, shopID uuid.UUID, taxYear int, gross decimal.Decimal, at time.Time) (*models.Seller1099Data, error)
	DebitPayout(ctx context.Context, shopID uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error)
	FindBalance(ctx context.Context, shopID uuid.UUID) (*models.SellerBalance, error)
	ListTaxYears(ctx context.Context, shopID uuid.UUID) ([]models.Seller1099Data, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreditSale(ctx context.Context, shopID uuid.UUID, sellerPayout decimal.Decimal, at time.Time) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO seller_balances (shop_id, available_balance, pending_balance, total_earned, total_paid_out, created_at, updated_at)
		VALUES (?, ?, 0, ?, 0, ?, ?)
		ON CONFLICT (shop_id) DO UPDATE SET
			available_balance = seller_balances.available_balance + excluded.available_balance,
			total_earned = seller_balances.total_earned + excluded.total_earned,
			updated_at = excluded.updated_at
	`, shopID, sellerPayout, sellerPayout, at, at).Error
}

func (r *repository) RecordTaxablePayment(ctx context.Context, shopID uuid.UUID, taxYear int, gross decimal.Decimal, at time.Time) (*models.Seller1099Data, error) {
	db := r.db.WithContext(ctx)

	if err := db.Exec(`
		INSERT INTO seller_1099_data (shop_id, tax_year, gross_payments, transaction_count, reporting_required, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (shop_id, tax_year) DO UPDATE SET
			gross_payments = seller_1099_data.gross_payments + excluded.gross_payments,
			transaction_count = seller_1099_data.transaction_count + excluded.transaction_count,
			updated_at = excluded.updated_at
	`, shopID, taxYear, gross, ReportingRequired(gross, 1), at, at).Error; err != nil {
		return nil, err
	}

	// The flag only ever flips to true; rows already flagged are left alone.
	if err := db.Exec(`
		UPDATE seller_1099_data
		SET reporting_required = ?
		WHERE shop_id = ? AND tax_year = ? AND reporting_required = ?
			AND (gross_payments >= ? OR transaction_count >= ?)
	`, true, shopID, taxYear, false, ReportingGrossThreshold, ReportingCountThreshold).Error; err != nil {
		return nil, err
	}

	var row models.Seller1099Data
	if err := db.Where("shop_id = ? AND tax_year = ?", shopID, taxYear).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) DebitPayout(ctx context.Context, shopID uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE seller_balances
		SET available_balance = available_balance - ?,
			total_paid_out = total_paid_out + ?,
			updated_at = ?
		WHERE shop_id = ?
	`, amount, amount, at, shopID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindBalance(ctx context.Context, shopID uuid.UUID) (*models.SellerBalance, error) {
	var balance models.SellerBalance
	if err := r.db.WithContext(ctx).Where("shop_id = ?", shopID).First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) ListTaxYears(ctx context.Context, shopID uuid.UUID) ([]models.Seller1099Data, error) {
	var rows []models.Seller1099Data
	if err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("tax_year DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
