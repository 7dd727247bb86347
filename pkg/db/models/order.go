package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/types"
)

// Order is the buyer-owned record of one checkout. Totals are written at
// settlement and never change afterwards; only Status moves.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string              `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID           uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status            enums.OrderStatus   `gorm:"column:status;type:varchar(32);not null"`
	Subtotal          decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingCost      decimal.Decimal     `gorm:"column:shipping_cost;type:numeric(12,2);not null;default:0"`
	Tax               decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	BuyerDonation     decimal.Decimal     `gorm:"column:buyer_donation;type:numeric(12,2);not null;default:0"`
	Total             decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	NonprofitDonation decimal.Decimal     `gorm:"column:nonprofit_donation;type:numeric(12,2);not null;default:0"`
	PaymentIntentID   string              `gorm:"column:payment_intent_id;not null;uniqueIndex"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:varchar(32);not null"`
	ShippingAddress   types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Items             []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments          []Payment           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem is immutable once created.
type OrderItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID       *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	ShopID          uuid.UUID       `gorm:"column:shop_id;type:uuid;not null;index"`
	Title           string          `gorm:"column:title;not null"`
	Quantity        int             `gorm:"column:quantity;not null"`
	PriceAtPurchase decimal.Decimal `gorm:"column:price_at_purchase;type:numeric(12,2);not null"`
	Subtotal        decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DonationAmount  decimal.Decimal `gorm:"column:donation_amount;type:numeric(12,4);not null;default:0"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
