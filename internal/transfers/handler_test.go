package transfers

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/consumer"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/payloads"
)

type stubSubmitter struct {
	result   Result
	err      error
	requests []Request
}

func (s *stubSubmitter) SubmitTransfer(_ context.Context, req Request) (Result, error) {
	s.requests = append(s.requests, req)
	return s.result, s.err
}

func newHandler(t *testing.T, sub *stubSubmitter) *Handler {
	t.Helper()
	h, err := NewHandler(sub, logger.New(logger.Options{ServiceName: "transfers-test", Output: io.Discard}))
	require.NoError(t, err)
	return h
}

func transferEnvelope() consumer.Envelope {
	return consumer.Envelope{
		EventID:   uuid.New(),
		EventType: enums.EventTransferRequested,
		Payload: &payloads.TransferRequestedEvent{
			OrderID: uuid.New(),
			ShopID:  uuid.New(),
			Amount:  decimal.RequireFromString("12.34"),
		},
	}
}

func TestHandlerSubmitsTransfer(t *testing.T) {
	sub := &stubSubmitter{result: Result{Status: enums.TransferStatusFailed}}
	env := transferEnvelope()

	require.NoError(t, newHandler(t, sub).Handle(context.Background(), env))
	require.Len(t, sub.requests, 1)
	event := env.Payload.(*payloads.TransferRequestedEvent)
	require.Equal(t, event.OrderID, sub.requests[0].OrderID)
	require.True(t, sub.requests[0].Amount.Equal(event.Amount))
}

func TestHandlerDropsInvalidRequests(t *testing.T) {
	sub := &stubSubmitter{err: pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")}
	require.NoError(t, newHandler(t, sub).Handle(context.Background(), transferEnvelope()))
}

func TestHandlerReturnsInfrastructureErrors(t *testing.T) {
	sub := &stubSubmitter{err: errors.New("db down")}
	require.Error(t, newHandler(t, sub).Handle(context.Background(), transferEnvelope()))
}

func TestHandlerIgnoresOtherEvents(t *testing.T) {
	sub := &stubSubmitter{}
	env := transferEnvelope()
	env.EventType = enums.EventPayoutPaid
	require.NoError(t, newHandler(t, sub).Handle(context.Background(), env))
	require.Empty(t, sub.requests)
}
