package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/enums"
)

// SellerPayout is one payout batch; member payments point at it via payout_id.
type SellerPayout struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ShopID           uuid.UUID          `gorm:"column:shop_id;type:uuid;not null;index"`
	Amount           decimal.Decimal    `gorm:"column:amount;type:numeric(14,4);not null"`
	Status           enums.PayoutStatus `gorm:"column:status;type:varchar(16);not null"`
	TransactionCount int                `gorm:"column:transaction_count;not null"`
	PeriodStart      time.Time          `gorm:"column:period_start;not null"`
	PeriodEnd        time.Time          `gorm:"column:period_end;not null"`
	ExternalPayoutID *string            `gorm:"column:external_payout_id;uniqueIndex"`
	FailureReason    *string            `gorm:"column:failure_reason"`
	PaidAt           *time.Time         `gorm:"column:paid_at"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *SellerPayout) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// NonprofitPayout batches pending donations owed to one nonprofit.
type NonprofitPayout struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	NonprofitID       uuid.UUID          `gorm:"column:nonprofit_id;type:uuid;not null;index"`
	Amount            decimal.Decimal    `gorm:"column:amount;type:numeric(14,4);not null"`
	DonationCount     int                `gorm:"column:donation_count;not null"`
	Status            enums.PayoutStatus `gorm:"column:status;type:varchar(16);not null"`
	ExternalReference *string            `gorm:"column:external_reference"`
	PaidAt            *time.Time         `gorm:"column:paid_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (p *NonprofitPayout) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// Transfer records each attempt to move a shop's order proceeds to its
// connected account. One row per (order, shop) keeps submission idempotent.
type Transfer struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex:uq_transfers_order_shop"`
	ShopID             uuid.UUID            `gorm:"column:shop_id;type:uuid;not null;uniqueIndex:uq_transfers_order_shop"`
	Amount             decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	Status             enums.TransferStatus `gorm:"column:status;type:varchar(16);not null"`
	ExternalTransferID *string              `gorm:"column:external_transfer_id"`
	FailureReason      *string              `gorm:"column:failure_reason"`
	Attempts           int                  `gorm:"column:attempts;not null;default:0"`
	LastAttemptAt      *time.Time           `gorm:"column:last_attempt_at"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Transfer) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
