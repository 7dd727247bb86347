package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

func TestService_PayoutPaidReconciles(t *testing.T) {
	payouts := &stubReconciler{}
	service := newTestService(t, payouts, &stubReverser{})

	event := buildEvent(t, stripe.EventTypePayoutPaid, stripe.Payout{ID: "po_123"})
	require.NoError(t, service.HandleEvent(context.Background(), event))

	require.Len(t, payouts.calls, 1)
	require.Equal(t, "po_123", payouts.calls[0].externalID)
	require.Equal(t, enums.PayoutStatusPaid, payouts.calls[0].status)
	require.Empty(t, payouts.calls[0].reason)
}

func TestService_PayoutFailedCarriesReason(t *testing.T) {
	payouts := &stubReconciler{}
	service := newTestService(t, payouts, &stubReverser{})

	event := buildEvent(t, stripe.EventTypePayoutFailed, stripe.Payout{
		ID:          "po_456",
		FailureCode: stripe.PayoutFailureCodeAccountClosed,
	})
	require.NoError(t, service.HandleEvent(context.Background(), event))

	require.Len(t, payouts.calls, 1)
	require.Equal(t, enums.PayoutStatusFailed, payouts.calls[0].status)
	require.Equal(t, string(stripe.PayoutFailureCodeAccountClosed), payouts.calls[0].reason)
}

func TestService_UnknownPayoutIsAcknowledged(t *testing.T) {
	payouts := &stubReconciler{err: pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")}
	service := newTestService(t, payouts, &stubReverser{})

	event := buildEvent(t, stripe.EventTypePayoutPaid, stripe.Payout{ID: "po_unknown"})
	require.NoError(t, service.HandleEvent(context.Background(), event))
}

func TestService_DependencyErrorsSurface(t *testing.T) {
	payouts := &stubReconciler{err: pkgerrors.New(pkgerrors.CodePersistence, "db down")}
	service := newTestService(t, payouts, &stubReverser{})

	event := buildEvent(t, stripe.EventTypePayoutPaid, stripe.Payout{ID: "po_123"})
	err := service.HandleEvent(context.Background(), event)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistence))
}

func TestService_TransferReversedMarksTransfer(t *testing.T) {
	reverser := &stubReverser{}
	service := newTestService(t, &stubReconciler{}, reverser)

	event := buildEvent(t, stripe.EventTypeTransferReversed, stripe.Transfer{ID: "tr_789"})
	require.NoError(t, service.HandleEvent(context.Background(), event))
	require.Equal(t, []string{"tr_789"}, reverser.ids)
}

func TestService_IgnoresOtherEvents(t *testing.T) {
	payouts := &stubReconciler{}
	reverser := &stubReverser{}
	service := newTestService(t, payouts, reverser)

	event := buildEvent(t, stripe.EventTypeCustomerCreated, map[string]string{"id": "cus_1"})
	require.NoError(t, service.HandleEvent(context.Background(), event))
	require.Empty(t, payouts.calls)
	require.Empty(t, reverser.ids)
}

func TestService_RejectsMissingData(t *testing.T) {
	service := newTestService(t, &stubReconciler{}, &stubReverser{})
	err := service.HandleEvent(context.Background(), &stripe.Event{Type: stripe.EventTypePayoutPaid})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func newTestService(t *testing.T, payouts payoutReconciler, transfers transferReverser) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Payouts:   payouts,
		Transfers: transfers,
		Logger:    logger.New(logger.Options{ServiceName: "stripe-webhook-test"}),
	})
	require.NoError(t, err)
	return service
}

func buildEvent(t *testing.T, eventType stripe.EventType, object any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &stripe.Event{ID: "evt_test", Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

type reconcileCall struct {
	externalID string
	status     enums.PayoutStatus
	reason     string
}

type stubReconciler struct {
	calls []reconcileCall
	err   error
}

func (s *stubReconciler) ReconcileByExternalID(_ context.Context, externalID string, status enums.PayoutStatus, reason string) (*models.SellerPayout, error) {
	s.calls = append(s.calls, reconcileCall{externalID: externalID, status: status, reason: reason})
	if s.err != nil {
		return nil, s.err
	}
	return &models.SellerPayout{Status: status}, nil
}

type stubReverser struct {
	ids []string
}

func (s *stubReverser) MarkReversed(_ context.Context, externalID, _ string) error {
	s.ids = append(s.ids, externalID)
	return nil
}
