// Package stripewebhook applies processor callbacks for payouts and transfers
// to the settlement records they reference.
package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

const defaultReversalReason = "transfer reversed by processor"

type payoutReconciler interface {
	ReconcileByExternalID(ctx context.Context, externalID string, status enums.PayoutStatus, failureReason string) (*models.SellerPayout, error)
}

type transferReverser interface {
	MarkReversed(ctx context.Context, externalID, reason string) error
}

type ServiceParams struct {
	Payouts   payoutReconciler
	Transfers transferReverser
	Logger    *logger.Logger
}

type Service struct {
	payouts   payoutReconciler
	transfers transferReverser
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payouts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout reconciler required")
	}
	if params.Transfers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transfer reverser required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payouts:   params.Payouts,
		transfers: params.Transfers,
		logg:      params.Logger,
	}, nil
}

// HandleEvent routes payout and transfer callbacks. Events for records this
// service never created are acknowledged so the processor stops retrying.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	var err error
	switch event.Type {
	case stripe.EventTypePayoutPaid, stripe.EventTypePayoutFailed:
		var payout stripe.Payout
		if decodeErr := json.Unmarshal(event.Data.Raw, &payout); decodeErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, decodeErr, "decode payout event")
		}
		err = s.reconcilePayout(ctx, event.Type, &payout)
	case stripe.EventTypeTransferReversed:
		var transfer stripe.Transfer
		if decodeErr := json.Unmarshal(event.Data.Raw, &transfer); decodeErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, decodeErr, "decode transfer event")
		}
		if strings.TrimSpace(transfer.ID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "transfer id missing")
		}
		err = s.transfers.MarkReversed(ctx, transfer.ID, defaultReversalReason)
	default:
		s.logg.Debug(ctx, "ignoring stripe event")
		return nil
	}

	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.logg.Warn(ctx, "stripe event references unknown record")
		return nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stripe event conflicts with recorded state")
		return nil
	}
	return err
}

func (s *Service) reconcilePayout(ctx context.Context, eventType stripe.EventType, payout *stripe.Payout) error {
	if strings.TrimSpace(payout.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payout id missing")
	}

	status := enums.PayoutStatusPaid
	reason := ""
	if eventType == stripe.EventTypePayoutFailed {
		status = enums.PayoutStatusFailed
		reason = payout.FailureMessage
		if reason == "" {
			reason = string(payout.FailureCode)
		}
	}

	_, err := s.payouts.ReconcileByExternalID(ctx, payout.ID, status, reason)
	return err
}
