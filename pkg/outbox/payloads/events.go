// Package payloads holds the data section of every outbox envelope.
package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShopSettlement is the per-shop slice of a settled order.
type ShopSettlement struct {
	ShopID       uuid.UUID       `json:"shop_id"`
	PaymentID    uuid.UUID       `json:"payment_id"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	Donation     decimal.Decimal `json:"donation"`
	SellerPayout decimal.Decimal `json:"seller_payout"`
}

// OrderSettledEvent is emitted once the settlement transaction commits.
type OrderSettledEvent struct {
	OrderID           uuid.UUID        `json:"order_id"`
	OrderNumber       string           `json:"order_number"`
	BuyerID           uuid.UUID        `json:"buyer_id"`
	BuyerEmail        string           `json:"buyer_email,omitempty"`
	Subtotal          decimal.Decimal  `json:"subtotal"`
	ShippingCost      decimal.Decimal  `json:"shipping_cost"`
	Tax               decimal.Decimal  `json:"tax"`
	BuyerDonation     decimal.Decimal  `json:"buyer_donation"`
	Total             decimal.Decimal  `json:"total"`
	NonprofitDonation decimal.Decimal  `json:"nonprofit_donation"`
	ItemCount         int              `json:"item_count"`
	Shops             []ShopSettlement `json:"shops"`
	SettledAt         time.Time        `json:"settled_at"`
}

// TransferRequestedEvent asks the transfer worker to move a shop's payout
// to its connected account.
type TransferRequestedEvent struct {
	OrderID   uuid.UUID       `json:"order_id"`
	ShopID    uuid.UUID       `json:"shop_id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// TransferFailedEvent surfaces a failed or reversed transfer.
type TransferFailedEvent struct {
	TransferID uuid.UUID       `json:"transfer_id"`
	OrderID    uuid.UUID       `json:"order_id"`
	ShopID     uuid.UUID       `json:"shop_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	Attempts   int             `json:"attempts"`
}

// PayoutCreatedEvent is emitted when payments are batched into a payout.
type PayoutCreatedEvent struct {
	PayoutID         uuid.UUID       `json:"payout_id"`
	ShopID           uuid.UUID       `json:"shop_id"`
	Amount           decimal.Decimal `json:"amount"`
	TransactionCount int             `json:"transaction_count"`
	PeriodStart      time.Time       `json:"period_start"`
	PeriodEnd        time.Time       `json:"period_end"`
}

// PayoutPaidEvent is emitted when the rail confirms a payout.
type PayoutPaidEvent struct {
	PayoutID uuid.UUID       `json:"payout_id"`
	ShopID   uuid.UUID       `json:"shop_id"`
	Amount   decimal.Decimal `json:"amount"`
	PaidAt   time.Time       `json:"paid_at"`
}

// PayoutFailedEvent is emitted when the rail rejects a payout.
type PayoutFailedEvent struct {
	PayoutID uuid.UUID       `json:"payout_id"`
	ShopID   uuid.UUID       `json:"shop_id"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
}

// NonprofitPayoutPaidEvent is emitted when donations are paid out to a nonprofit.
type NonprofitPayoutPaidEvent struct {
	NonprofitPayoutID uuid.UUID       `json:"nonprofit_payout_id"`
	NonprofitID       uuid.UUID       `json:"nonprofit_id"`
	Amount            decimal.Decimal `json:"amount"`
	DonationCount     int             `json:"donation_count"`
	PaidAt            time.Time       `json:"paid_at"`
}
