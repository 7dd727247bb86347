package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SellerBalance keeps totalEarned - totalPaidOut == available + pending.
type SellerBalance struct {
	ShopID           uuid.UUID       `gorm:"column:shop_id;type:uuid;primaryKey"`
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:numeric(14,4);not null;default:0"`
	PendingBalance   decimal.Decimal `gorm:"column:pending_balance;type:numeric(14,4);not null;default:0"`
	TotalEarned      decimal.Decimal `gorm:"column:total_earned;type:numeric(14,4);not null;default:0"`
	TotalPaidOut     decimal.Decimal `gorm:"column:total_paid_out;type:numeric(14,4);not null;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Seller1099Data is the per-(shop, tax year) aggregate gating 1099-K reporting.
type Seller1099Data struct {
	ShopID            uuid.UUID       `gorm:"column:shop_id;type:uuid;primaryKey"`
	TaxYear           int             `gorm:"column:tax_year;primaryKey;autoIncrement:false"`
	GrossPayments     decimal.Decimal `gorm:"column:gross_payments;type:numeric(14,2);not null;default:0"`
	TransactionCount  int             `gorm:"column:transaction_count;not null;default:0"`
	ReportingRequired bool            `gorm:"column:reporting_required;not null;default:false"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Seller1099Data) TableName() string {
	return "seller_1099_data"
}
