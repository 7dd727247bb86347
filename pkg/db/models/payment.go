package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/enums"
)

// Payment is the per-(order, shop) settlement row. Amount is the shop
// subtotal; PayoutID stays nil until a payout batch claims the row.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:uq_payments_order_shop"`
	ShopID            uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;uniqueIndex:uq_payments_order_shop;index"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	PlatformFee       decimal.Decimal     `gorm:"column:platform_fee;type:numeric(12,4);not null"`
	SellerPayout      decimal.Decimal     `gorm:"column:seller_payout;type:numeric(12,4);not null"`
	NonprofitDonation decimal.Decimal     `gorm:"column:nonprofit_donation;type:numeric(12,4);not null;default:0"`
	Status            enums.PaymentStatus `gorm:"column:status;type:varchar(32);not null"`
	PayoutID          *uuid.UUID          `gorm:"column:payout_id;type:uuid;index"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// Donation is an obligation to a nonprofit, paid out in nonprofit batches.
type Donation struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	NonprofitID       uuid.UUID            `gorm:"column:nonprofit_id;type:uuid;not null;index"`
	ShopID            *uuid.UUID           `gorm:"column:shop_id;type:uuid;index"`
	OrderID           uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	BuyerID           *uuid.UUID           `gorm:"column:buyer_id;type:uuid"`
	Amount            decimal.Decimal      `gorm:"column:amount;type:numeric(12,4);not null"`
	DonorType         enums.DonorType      `gorm:"column:donor_type;type:varchar(32);not null"`
	Status            enums.DonationStatus `gorm:"column:status;type:varchar(32);not null"`
	NonprofitPayoutID *uuid.UUID           `gorm:"column:nonprofit_payout_id;type:uuid"`
	PaidAt            *time.Time           `gorm:"column:paid_at"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (d *Donation) BeforeCreate(*gorm.DB) error {
	assignID(&d.ID)
	return nil
}
