package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// SettlementFactRow mirrors the settlement_facts BigQuery schema. Sale rows
// are written per shop; payout rows carry the paid amount in NetCents.
type SettlementFactRow struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	FactType         string             `bigquery:"fact_type"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	OrderID          *string            `bigquery:"order_id"`
	OrderNumber      *string            `bigquery:"order_number"`
	ShopID           *string            `bigquery:"shop_id"`
	PaymentID        *string            `bigquery:"payment_id"`
	PayoutID         *string            `bigquery:"payout_id"`
	NonprofitID      *string            `bigquery:"nonprofit_id"`
	GrossCents       int64              `bigquery:"gross_cents"`
	PlatformFeeCents int64              `bigquery:"platform_fee_cents"`
	DonationCents    int64              `bigquery:"donation_cents"`
	NetCents         int64              `bigquery:"net_cents"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}
