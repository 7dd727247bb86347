package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a shop listing. Stock lives on the product unless the buyer picks
// a variant, in which case the variant row carries it.
type Product struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ShopID            uuid.UUID        `gorm:"column:shop_id;type:uuid;not null;index"`
	Title             string           `gorm:"column:title;not null"`
	Price             decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	TrackInventory    bool             `gorm:"column:track_inventory;not null"`
	InventoryQuantity int              `gorm:"column:inventory_quantity;not null;default:0"`
	Variants          []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

type ProductVariant struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index"`
	Name              string           `gorm:"column:name;not null"`
	Price             *decimal.Decimal `gorm:"column:price;type:numeric(12,2)"`
	TrackInventory    bool             `gorm:"column:track_inventory;not null"`
	InventoryQuantity int              `gorm:"column:inventory_quantity;not null;default:0"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
