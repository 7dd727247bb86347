package transfers

import (
	"context"
	"fmt"

	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/consumer"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/payloads"
)

// ConsumerName scopes idempotency markers for the transfer worker.
const ConsumerName = "transfers"

type submitter interface {
	SubmitTransfer(ctx context.Context, req Request) (Result, error)
}

// Handler feeds transfer_requested events into the dispatcher.
type Handler struct {
	dispatcher submitter
	logg       *logger.Logger
}

// NewHandler builds the consumer handler.
func NewHandler(dispatcher submitter, logg *logger.Logger) (*Handler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Handler{dispatcher: dispatcher, logg: logg}, nil
}

// Handle acks failed transfers; the retry job owns further attempts. Only
// persistence and infrastructure errors nack for redelivery.
func (h *Handler) Handle(ctx context.Context, envelope consumer.Envelope) error {
	if envelope.EventType != enums.EventTransferRequested {
		return nil
	}
	event, ok := envelope.Payload.(*payloads.TransferRequestedEvent)
	if !ok {
		h.logg.Warn(ctx, fmt.Sprintf("unexpected transfer payload %T", envelope.Payload))
		return nil
	}

	result, err := h.dispatcher.SubmitTransfer(ctx, Request{
		OrderID: event.OrderID,
		ShopID:  event.ShopID,
		Amount:  event.Amount,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "transfer request dropped")
			return nil
		}
		return err
	}

	h.logg.Info(h.logg.WithFields(ctx, map[string]any{
		"transfer_id":     result.TransferID.String(),
		"transfer_status": string(result.Status),
	}), "transfer request processed")
	return nil
}
