package registry

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/payloads"
)

func TestDecoderRegistry(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventPayoutFailed, 1, func(payload json.RawMessage) (interface{}, error) {
		var decoded map[string]string
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})

	input := json.RawMessage(`{"reason":"account_closed"}`)
	output, err := reg.Decode(enums.EventPayoutFailed, 1, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outMap, ok := output.(map[string]string); !ok || outMap["reason"] != "account_closed" {
		t.Fatalf("unexpected output %+v", output)
	}

	if _, err := reg.Decode(enums.EventPayoutFailed, 2, input); err == nil {
		t.Fatalf("expected error for unregistered version")
	}
}

func TestPayloadDecodersCoverEveryEventType(t *testing.T) {
	reg := NewPayloadDecoders()
	for _, eventType := range []enums.OutboxEventType{
		enums.EventOrderSettled,
		enums.EventTransferRequested,
		enums.EventTransferFailed,
		enums.EventPayoutCreated,
		enums.EventPayoutPaid,
		enums.EventPayoutFailed,
		enums.EventNonprofitPayoutPaid,
	} {
		if !reg.Supports(eventType, 1) {
			t.Fatalf("missing decoder for %s", eventType)
		}
	}
}

func TestPayloadDecodersReturnTypedPayload(t *testing.T) {
	reg := NewPayloadDecoders()
	shopID := uuid.New()
	raw, err := json.Marshal(payloads.TransferRequestedEvent{
		OrderID: uuid.New(),
		ShopID:  shopID,
		Amount:  decimal.RequireFromString("88.5"),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out, err := reg.Decode(enums.EventTransferRequested, 1, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	event, ok := out.(*payloads.TransferRequestedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", out)
	}
	if event.ShopID != shopID || !event.Amount.Equal(decimal.RequireFromString("88.50")) {
		t.Fatalf("payload mismatch %+v", event)
	}
}
