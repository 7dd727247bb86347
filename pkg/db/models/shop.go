package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Shop is an independent seller account that owns products and receives payouts.
type Shop struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OwnerUserID        uuid.UUID       `gorm:"column:owner_user_id;type:uuid;not null;index"`
	Name               string          `gorm:"column:name;not null"`
	Email              string          `gorm:"column:email;not null"`
	DonationPercentage decimal.Decimal `gorm:"column:donation_percentage;type:numeric(5,2);not null;default:0"`
	NonprofitID        *uuid.UUID      `gorm:"column:nonprofit_id;type:uuid"`
	ConnectedAccountID *string         `gorm:"column:connected_account_id"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Shop) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// Nonprofit is referenced by donations; the marketplace never owns it.
type Nonprofit struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name               string    `gorm:"column:name;not null"`
	EIN                string    `gorm:"column:ein;not null;uniqueIndex"`
	ConnectedAccountID *string   `gorm:"column:connected_account_id"`
	IsActive           bool      `gorm:"column:is_active;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (n *Nonprofit) BeforeCreate(*gorm.DB) error {
	assignID(&n.ID)
	return nil
}
