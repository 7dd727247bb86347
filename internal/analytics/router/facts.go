package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BenTyson/evercraft-sub001/internal/analytics/types"
	analyticswriter "github.com/BenTyson/evercraft-sub001/internal/analytics/writer"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/consumer"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/payloads"
	"github.com/BenTyson/evercraft-sub001/pkg/stripe"
)

type orderSettledHandler struct{}

// Rows emits one sale fact per shop so seller revenue can be grouped without
// unnesting the payload.
func (orderSettledHandler) Rows(envelope consumer.Envelope) ([]types.SettlementFactRow, error) {
	event, ok := envelope.Payload.(*payloads.OrderSettledEvent)
	if !ok {
		return nil, fmt.Errorf("invalid payload for %s", enums.EventOrderSettled)
	}
	payloadJSON, err := analyticswriter.EncodeJSON(event)
	if err != nil {
		return nil, fmt.Errorf("encode payload json: %w", err)
	}

	occurred := occurredAt(event.SettledAt, envelope)
	rows := make([]types.SettlementFactRow, 0, len(event.Shops))
	for i, shop := range event.Shops {
		row := types.SettlementFactRow{
			EventID:          rowEventID(envelope, i),
			EventType:        string(envelope.EventType),
			FactType:         string(enums.SettlementFactSale),
			OccurredAt:       occurred,
			OrderID:          uuidPtr(event.OrderID),
			OrderNumber:      stringPtr(event.OrderNumber),
			ShopID:           uuidPtr(shop.ShopID),
			PaymentID:        uuidPtr(shop.PaymentID),
			GrossCents:       stripe.ToCents(shop.Subtotal),
			PlatformFeeCents: stripe.ToCents(shop.PlatformFee),
			DonationCents:    stripe.ToCents(shop.Donation),
			NetCents:         stripe.ToCents(shop.SellerPayout),
			Payload:          payloadJSON,
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type payoutPaidHandler struct{}

func (payoutPaidHandler) Rows(envelope consumer.Envelope) ([]types.SettlementFactRow, error) {
	event, ok := envelope.Payload.(*payloads.PayoutPaidEvent)
	if !ok {
		return nil, fmt.Errorf("invalid payload for %s", enums.EventPayoutPaid)
	}
	payloadJSON, err := analyticswriter.EncodeJSON(event)
	if err != nil {
		return nil, fmt.Errorf("encode payload json: %w", err)
	}
	amount := stripe.ToCents(event.Amount)
	return []types.SettlementFactRow{{
		EventID:    envelope.EventID.String(),
		EventType:  string(envelope.EventType),
		FactType:   string(enums.SettlementFactPayout),
		OccurredAt: occurredAt(event.PaidAt, envelope),
		ShopID:     uuidPtr(event.ShopID),
		PayoutID:   uuidPtr(event.PayoutID),
		GrossCents: amount,
		NetCents:   amount,
		Payload:    payloadJSON,
	}}, nil
}

type nonprofitPayoutPaidHandler struct{}

func (nonprofitPayoutPaidHandler) Rows(envelope consumer.Envelope) ([]types.SettlementFactRow, error) {
	event, ok := envelope.Payload.(*payloads.NonprofitPayoutPaidEvent)
	if !ok {
		return nil, fmt.Errorf("invalid payload for %s", enums.EventNonprofitPayoutPaid)
	}
	payloadJSON, err := analyticswriter.EncodeJSON(event)
	if err != nil {
		return nil, fmt.Errorf("encode payload json: %w", err)
	}
	amount := stripe.ToCents(event.Amount)
	return []types.SettlementFactRow{{
		EventID:       envelope.EventID.String(),
		EventType:     string(envelope.EventType),
		FactType:      string(enums.SettlementFactNonprofitPayout),
		OccurredAt:    occurredAt(event.PaidAt, envelope),
		PayoutID:      uuidPtr(event.NonprofitPayoutID),
		NonprofitID:   uuidPtr(event.NonprofitID),
		GrossCents:    amount,
		DonationCents: amount,
		NetCents:      amount,
		Payload:       payloadJSON,
	}}, nil
}

func occurredAt(at time.Time, envelope consumer.Envelope) time.Time {
	if at.IsZero() {
		at = envelope.OccurredAt
	}
	return at.UTC()
}

// rowEventID keeps event_id unique per row when one event fans out.
func rowEventID(envelope consumer.Envelope, index int) string {
	if index == 0 {
		return envelope.EventID.String()
	}
	return fmt.Sprintf("%s:%d", envelope.EventID, index)
}

func uuidPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return stringPtr(id.String())
}

func stringPtr(value string) *string {
	if value = strings.TrimSpace(value); value == "" {
		return nil
	}
	return &value
}
