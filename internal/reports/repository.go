package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgpagination "github.com/BenTyson/evercraft-sub001/pkg/pagination"
)

// TransactionRow is one settled payment joined with its order number.
type TransactionRow struct {
	PaymentID         uuid.UUID           `gorm:"column:payment_id"`
	OrderID           uuid.UUID           `gorm:"column:order_id"`
	OrderNumber       string              `gorm:"column:order_number"`
	Amount            decimal.Decimal     `gorm:"column:amount"`
	PlatformFee       decimal.Decimal     `gorm:"column:platform_fee"`
	NonprofitDonation decimal.Decimal     `gorm:"column:nonprofit_donation"`
	SellerPayout      decimal.Decimal     `gorm:"column:seller_payout"`
	Status            enums.PaymentStatus `gorm:"column:status"`
	PayoutID          *uuid.UUID          `gorm:"column:payout_id"`
	CreatedAt         time.Time           `gorm:"column:created_at"`
}

type transactionQuery struct {
	shopID uuid.UUID
	limit  int
	cursor *pkgpagination.Cursor
	from   *time.Time
	to     *time.Time
}

// Repository is the read side over payments, payouts and ledgers.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type sumRow struct {
	Total decimal.Decimal `gorm:"column:total"`
}

// SumRevenue totals PAID payment subtotals created in [from, to).
func (r *Repository) SumRevenue(ctx context.Context, shopID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var row sumRow
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("shop_id = ? AND status = ?", shopID, enums.PaymentStatusPaid).
		Where("created_at >= ? AND created_at < ?", from, to).
		Scan(&row).Error
	return row.Total, err
}

// SumDonated totals the seller-funded donation share across PAID payments.
func (r *Repository) SumDonated(ctx context.Context, shopID uuid.UUID) (decimal.Decimal, error) {
	var row sumRow
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("COALESCE(SUM(nonprofit_donation), 0) AS total").
		Where("shop_id = ? AND status = ?", shopID, enums.PaymentStatusPaid).
		Scan(&row).Error
	return row.Total, err
}

func (r *Repository) SumPendingPayouts(ctx context.Context, shopID uuid.UUID) (decimal.Decimal, error) {
	var row sumRow
	err := r.db.WithContext(ctx).
		Model(&models.SellerPayout{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("shop_id = ? AND status = ?", shopID, enums.PayoutStatusPending).
		Scan(&row).Error
	return row.Total, err
}

func (r *Repository) ListTransactions(ctx context.Context, q transactionQuery) ([]TransactionRow, error) {
	query := r.db.WithContext(ctx).
		Table("payments AS p").
		Select(`p.id AS payment_id, p.order_id AS order_id, o.order_number AS order_number,
			p.amount AS amount, p.platform_fee AS platform_fee, p.nonprofit_donation AS nonprofit_donation,
			p.seller_payout AS seller_payout, p.status AS status, p.payout_id AS payout_id, p.created_at AS created_at`).
		Joins("JOIN orders o ON o.id = p.order_id").
		Where("p.shop_id = ?", q.shopID)

	if q.from != nil {
		query = query.Where("p.created_at >= ?", *q.from)
	}
	if q.to != nil {
		query = query.Where("p.created_at < ?", *q.to)
	}
	if q.cursor != nil {
		clause, args := q.cursor.Clause("p.created_at", "p.id")
		query = query.Where(clause, args...)
	}
	query = query.Order("p.created_at DESC").Order("p.id DESC")
	if q.limit > 0 {
		query = query.Limit(q.limit)
	}

	var rows []TransactionRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
