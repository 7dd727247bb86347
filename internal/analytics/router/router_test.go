package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"

	"github.com/BenTyson/evercraft-sub001/internal/analytics/types"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/consumer"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/payloads"
)

func TestRouterUnsupportedEvent(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	env := consumer.Envelope{EventType: enums.EventPayoutCreated}
	err := router.Handle(context.Background(), env)
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRouterRoutesToOverride(t *testing.T) {
	handler := &stubHandler{}
	router, writer := newTestRouter(t, map[enums.OutboxEventType]Handler{
		enums.EventPayoutPaid: handler,
	})
	if err := router.Handle(context.Background(), consumer.Envelope{EventType: enums.EventPayoutPaid}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handler.called {
		t.Fatal("handler not invoked")
	}
	if len(writer.inserted) != 1 {
		t.Fatalf("expected stub row inserted, got %d", len(writer.inserted))
	}
}

func TestRouterHandledEvents(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	events := router.HandledEvents()
	if len(events) != 3 || events[0] != enums.EventOrderSettled {
		t.Fatalf("unexpected handled events %v", events)
	}
}

func TestOrderSettledWritesOneRowPerShop(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	settledAt := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	first := payloads.ShopSettlement{
		ShopID:       uuid.New(),
		PaymentID:    uuid.New(),
		Subtotal:     decimal.RequireFromString("100"),
		PlatformFee:  decimal.RequireFromString("6.50"),
		Donation:     decimal.RequireFromString("5"),
		SellerPayout: decimal.RequireFromString("88.50"),
	}
	second := payloads.ShopSettlement{
		ShopID:       uuid.New(),
		PaymentID:    uuid.New(),
		Subtotal:     decimal.RequireFromString("20"),
		PlatformFee:  decimal.RequireFromString("1.30"),
		Donation:     decimal.Zero,
		SellerPayout: decimal.RequireFromString("18.70"),
	}
	env := consumer.Envelope{
		EventID:    uuid.New(),
		EventType:  enums.EventOrderSettled,
		OccurredAt: settledAt.Add(time.Minute),
		Payload: &payloads.OrderSettledEvent{
			OrderID:     uuid.New(),
			OrderNumber: "EC-1001",
			Shops:       []payloads.ShopSettlement{first, second},
			SettledAt:   settledAt,
		},
	}

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle order_settled: %v", err)
	}
	if len(writer.inserted) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(writer.inserted))
	}

	row := writer.inserted[0]
	if row.FactType != string(enums.SettlementFactSale) {
		t.Fatalf("unexpected fact type %s", row.FactType)
	}
	if !row.OccurredAt.Equal(settledAt) {
		t.Fatalf("expected occurred_at from settled_at, got %s", row.OccurredAt)
	}
	if row.GrossCents != 10000 || row.PlatformFeeCents != 650 || row.DonationCents != 500 || row.NetCents != 8850 {
		t.Fatalf("unexpected amounts %+v", row)
	}
	if row.ShopID == nil || *row.ShopID != first.ShopID.String() {
		t.Fatalf("unexpected shop id %v", row.ShopID)
	}
	if row.EventID != env.EventID.String() {
		t.Fatalf("expected first row to keep event id, got %s", row.EventID)
	}
	if writer.inserted[1].EventID != env.EventID.String()+":1" {
		t.Fatalf("expected suffixed event id, got %s", writer.inserted[1].EventID)
	}
	if writer.inserted[1].NetCents != 1870 {
		t.Fatalf("unexpected second row net %d", writer.inserted[1].NetCents)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(row.Payload.JSONVal), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["order_number"] != "EC-1001" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestPayoutPaidFallsBackToEnvelopeTime(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	occurred := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	payoutID := uuid.New()
	env := consumer.Envelope{
		EventID:    uuid.New(),
		EventType:  enums.EventPayoutPaid,
		OccurredAt: occurred,
		Payload: &payloads.PayoutPaidEvent{
			PayoutID: payoutID,
			ShopID:   uuid.New(),
			Amount:   decimal.RequireFromString("40"),
		},
	}

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle payout_paid: %v", err)
	}
	if len(writer.inserted) != 1 {
		t.Fatalf("expected 1 row, got %d", len(writer.inserted))
	}
	row := writer.inserted[0]
	if row.FactType != string(enums.SettlementFactPayout) || row.NetCents != 4000 {
		t.Fatalf("unexpected payout row %+v", row)
	}
	if !row.OccurredAt.Equal(occurred) {
		t.Fatalf("expected envelope occurred_at, got %s", row.OccurredAt)
	}
	if row.PayoutID == nil || *row.PayoutID != payoutID.String() {
		t.Fatalf("unexpected payout id %v", row.PayoutID)
	}
}

func TestNonprofitPayoutRow(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	env := consumer.Envelope{
		EventID:   uuid.New(),
		EventType: enums.EventNonprofitPayoutPaid,
		Payload: &payloads.NonprofitPayoutPaidEvent{
			NonprofitPayoutID: uuid.New(),
			NonprofitID:       uuid.New(),
			Amount:            decimal.RequireFromString("7.50"),
			PaidAt:            time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		},
	}
	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle nonprofit_payout_paid: %v", err)
	}
	row := writer.inserted[0]
	if row.DonationCents != 750 || row.NonprofitID == nil || row.ShopID != nil {
		t.Fatalf("unexpected nonprofit row %+v", row)
	}
}

func TestRouterRejectsMismatchedPayload(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	env := consumer.Envelope{
		EventType: enums.EventOrderSettled,
		Payload:   &payloads.PayoutPaidEvent{},
	}
	if err := router.Handle(context.Background(), env); err == nil {
		t.Fatal("expected payload type error")
	}
	if len(writer.inserted) != 0 {
		t.Fatal("expected no rows written")
	}
}

func TestRouterWriteErrors(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	env := consumer.Envelope{
		EventID:   uuid.New(),
		EventType: enums.EventPayoutPaid,
		Payload:   &payloads.PayoutPaidEvent{PayoutID: uuid.New(), Amount: decimal.NewFromInt(1)},
	}

	writer.err = &googleapi.Error{Code: http.StatusServiceUnavailable}
	if err := router.Handle(context.Background(), env); err == nil {
		t.Fatal("expected transient write error to nack")
	}

	writer.err = &googleapi.Error{Code: http.StatusBadRequest}
	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("expected permanent write error to be dropped, got %v", err)
	}
}

func newTestRouter(t *testing.T, overrides map[enums.OutboxEventType]Handler) (*Router, *fakeWriter) {
	t.Helper()
	writer := &fakeWriter{}
	router, err := NewRouter(writer, logger.New(logger.Options{ServiceName: "router-test"}), overrides)
	if err != nil {
		t.Fatalf("construct router: %v", err)
	}
	return router, writer
}

type stubHandler struct {
	called bool
}

func (s *stubHandler) Rows(envelope consumer.Envelope) ([]types.SettlementFactRow, error) {
	s.called = true
	return []types.SettlementFactRow{{EventID: "stub", EventType: string(envelope.EventType)}}, nil
}
