// Package payouts batches settled payments into seller payouts, reconciles
// rail outcomes against the ledger and pays out pending nonprofit donations.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/internal/ledger"
	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/payloads"
	"github.com/BenTyson/evercraft-sub001/pkg/stripe"
)

const defaultSubmitTimeout = 15 * time.Second

// msgUnavailable is shared by seller and nonprofit batches: any requested id
// that is foreign, out of period or already linked to a payout.
const msgUnavailable = "Some donations are invalid or already paid"

// Rail submits a payout to the shop's connected account.
type Rail interface {
	CreatePayout(ctx context.Context, req stripe.PayoutRequest) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type shopLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type payoutObserver interface {
	IncPayout(status string)
}

// Service is the payout lifecycle.
type Service interface {
	CreatePayout(ctx context.Context, input CreatePayoutInput) (*models.SellerPayout, error)
	CreatePayoutBatch(ctx context.Context, shopID uuid.UUID, periodStart, periodEnd time.Time) (*models.SellerPayout, error)
	ShopsDue(ctx context.Context, periodEnd time.Time) ([]ShopDue, error)
	SubmitPayout(ctx context.Context, payoutID uuid.UUID) (*models.SellerPayout, error)
	Reconcile(ctx context.Context, payoutID uuid.UUID, status enums.PayoutStatus, failureReason string) (*models.SellerPayout, error)
	ReconcileByExternalID(ctx context.Context, externalID string, status enums.PayoutStatus, failureReason string) (*models.SellerPayout, error)
	ListPayouts(ctx context.Context, shopID uuid.UUID, status *enums.PayoutStatus) ([]models.SellerPayout, error)
	CreateNonprofitPayout(ctx context.Context, input NonprofitPayoutInput) (*models.NonprofitPayout, error)
}

// CreatePayoutInput names the exact payments to claim for one shop.
type CreatePayoutInput struct {
	ShopID      uuid.UUID
	PaymentIDs  []uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// ShopDue is a shop with unclaimed PAID payments and the creation time of the
// oldest one.
type ShopDue struct {
	ShopID uuid.UUID
	Since  time.Time
}

// NonprofitPayoutInput names the pending donations paid out together.
type NonprofitPayoutInput struct {
	NonprofitID       uuid.UUID
	DonationIDs       []uuid.UUID
	ExternalReference string
}

// Params wires the payout service.
type Params struct {
	TxRunner      txRunner
	Repository    Repository
	Shops         shopLoader
	Ledger        ledger.Service
	Rail          Rail
	Outbox        outboxPublisher
	Metrics       payoutObserver
	Logger        *logger.Logger
	MinimumAmount decimal.Decimal
	SubmitTimeout time.Duration
}

type service struct {
	tx      txRunner
	repo    Repository
	shops   shopLoader
	ledger  ledger.Service
	rail    Rail
	outbox  outboxPublisher
	metrics payoutObserver
	logg    *logger.Logger
	minimum decimal.Decimal
	timeout time.Duration
	now     func() time.Time
}

// NewService validates dependencies. Rail may be nil when payouts are
// submitted out of band; SubmitPayout then reports a dependency error.
func NewService(params Params) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.Shops == nil {
		return nil, fmt.Errorf("shop loader required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.SubmitTimeout
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	return &service{
		tx:      params.TxRunner,
		repo:    params.Repository,
		shops:   params.Shops,
		ledger:  params.Ledger,
		rail:    params.Rail,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		minimum: params.MinimumAmount,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// CreatePayout claims exactly the listed payments. Every id must belong to the
// shop, be PAID, fall inside the period and be unclaimed; otherwise nothing
// is written.
func (s *service) CreatePayout(ctx context.Context, input CreatePayoutInput) (*models.SellerPayout, error) {
	if err := validatePeriod(input.ShopID, input.PeriodStart, input.PeriodEnd); err != nil {
		return nil, err
	}
	ids := uniqueIDs(input.PaymentIDs)
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one payment id is required")
	}
	return s.createPayout(ctx, input.ShopID, ids, input.PeriodStart, input.PeriodEnd, decimal.Zero)
}

// CreatePayoutBatch claims every eligible payment of the shop in the period.
// Batches below the configured minimum are left for a later period.
func (s *service) CreatePayoutBatch(ctx context.Context, shopID uuid.UUID, periodStart, periodEnd time.Time) (*models.SellerPayout, error) {
	if err := validatePeriod(shopID, periodStart, periodEnd); err != nil {
		return nil, err
	}
	ids, err := s.repo.ListEligiblePaymentIDs(ctx, shopID, periodStart, periodEnd)
	if err != nil {
		return nil, persistence(err)
	}
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no eligible payments in period")
	}
	return s.createPayout(ctx, shopID, ids, periodStart, periodEnd, s.minimum)
}

// ShopsDue lists every shop holding unclaimed PAID payments created before
// periodEnd, however old, with the creation time of its oldest one.
func (s *service) ShopsDue(ctx context.Context, periodEnd time.Time) ([]ShopDue, error) {
	if periodEnd.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period end is required")
	}
	ids, err := s.repo.ListShopsWithEligiblePayments(ctx, periodEnd)
	if err != nil {
		return nil, persistence(err)
	}
	due := make([]ShopDue, 0, len(ids))
	for _, id := range ids {
		oldest, err := s.repo.OldestEligiblePayment(ctx, id, periodEnd)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Claimed by a concurrent batch since the listing.
			continue
		}
		if err != nil {
			return nil, persistence(err)
		}
		due = append(due, ShopDue{ShopID: id, Since: oldest.CreatedAt.UTC()})
	}
	return due, nil
}

func (s *service) createPayout(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID, periodStart, periodEnd time.Time, minimum decimal.Decimal) (*models.SellerPayout, error) {
	var payout *models.SellerPayout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payments, err := repo.LockEligiblePayments(ctx, shopID, ids, periodStart, periodEnd)
		if err != nil {
			return persistence(err)
		}
		if len(payments) != len(ids) {
			return pkgerrors.New(pkgerrors.CodeConflict, msgUnavailable).
				WithDetails(map[string]any{"requested": len(ids), "eligible": len(payments)})
		}

		amount := decimal.Zero
		for _, p := range payments {
			amount = amount.Add(p.SellerPayout)
		}
		if !amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
		}
		if minimum.IsPositive() && amount.LessThan(minimum) {
			return pkgerrors.New(pkgerrors.CodeValidation, "payout below minimum amount").
				WithDetails(map[string]any{"amount": amount.StringFixed(2), "minimum": minimum.StringFixed(2)})
		}

		payout = &models.SellerPayout{
			ShopID:           shopID,
			Amount:           amount,
			Status:           enums.PayoutStatusPending,
			TransactionCount: len(payments),
			PeriodStart:      periodStart.UTC(),
			PeriodEnd:        periodEnd.UTC(),
		}
		if err := repo.CreatePayout(ctx, payout); err != nil {
			return persistence(err)
		}
		linked, err := repo.LinkPayments(ctx, payout.ID, ids)
		if err != nil {
			return persistence(err)
		}
		if int(linked) != len(ids) {
			return pkgerrors.New(pkgerrors.CodeConflict, msgUnavailable)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutCreated,
			AggregateType: enums.AggregateSellerPayout,
			AggregateID:   payout.ID,
			Data: payloads.PayoutCreatedEvent{
				PayoutID:         payout.ID,
				ShopID:           shopID,
				Amount:           amount,
				TransactionCount: payout.TransactionCount,
				PeriodStart:      payout.PeriodStart,
				PeriodEnd:        payout.PeriodEnd,
			},
		})
	})
	if err != nil {
		return nil, persistence(err)
	}

	s.observe(string(enums.PayoutStatusPending))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payout_id":         payout.ID.String(),
		"shop_id":           shopID.String(),
		"amount":            payout.Amount.StringFixed(2),
		"transaction_count": payout.TransactionCount,
	}), "payout created")
	return payout, nil
}

// SubmitPayout sends a pending payout to the rail and stores the external id.
// The payout stays pending until the rail reports an outcome.
func (s *service) SubmitPayout(ctx context.Context, payoutID uuid.UUID) (*models.SellerPayout, error) {
	if s.rail == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payout rail not configured")
	}
	payout, err := s.repo.FindPayout(ctx, payoutID)
	if err != nil {
		return nil, notFoundOr(err, "payout not found")
	}
	if payout.Status != enums.PayoutStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout is not pending").
			WithDetails(map[string]any{"status": payout.Status})
	}
	if payout.ExternalPayoutID != nil {
		return payout, nil
	}

	shop, err := s.shops.FindByID(ctx, payout.ShopID)
	if err != nil {
		return nil, notFoundOr(err, "shop not found")
	}
	if shop.ConnectedAccountID == nil || strings.TrimSpace(*shop.ConnectedAccountID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shop has no connected payout account")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	externalID, err := s.rail.CreatePayout(callCtx, stripe.PayoutRequest{
		AccountID:      *shop.ConnectedAccountID,
		Amount:         payout.Amount,
		Description:    fmt.Sprintf("Payout %s to %s", payout.PeriodEnd.Format("2006-01-02"), shop.Name),
		IdempotencyKey: "payout:" + payout.ID.String(),
		Metadata:       map[string]string{"payout_id": payout.ID.String(), "shop_id": shop.ID.String()},
	})
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"payout_id": payout.ID.String(), "error": err.Error()}), "payout submission failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payout submission failed")
	}

	if err := s.repo.UpdatePayout(ctx, payout.ID, map[string]any{"external_payout_id": externalID}); err != nil {
		return nil, persistence(err)
	}
	payout.ExternalPayoutID = &externalID
	s.observe("submitted")
	return payout, nil
}

// Reconcile applies a rail outcome. Repeating the current terminal status is
// a no-op; moving between terminal statuses is rejected.
func (s *service) Reconcile(ctx context.Context, payoutID uuid.UUID, status enums.PayoutStatus, failureReason string) (*models.SellerPayout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	return s.reconcile(ctx, status, failureReason, func(repo Repository) (*models.SellerPayout, error) {
		return repo.LockPayout(ctx, payoutID)
	})
}

// ReconcileByExternalID resolves the payout through the rail's payout id.
func (s *service) ReconcileByExternalID(ctx context.Context, externalID string, status enums.PayoutStatus, failureReason string) (*models.SellerPayout, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external payout id is required")
	}
	payout, err := s.repo.FindPayoutByExternalID(ctx, externalID)
	if err != nil {
		return nil, notFoundOr(err, "payout not found")
	}
	return s.Reconcile(ctx, payout.ID, status, failureReason)
}

func (s *service) reconcile(ctx context.Context, status enums.PayoutStatus, failureReason string, load func(Repository) (*models.SellerPayout, error)) (*models.SellerPayout, error) {
	if !status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reconcile status must be paid or failed")
	}

	var (
		payout  *models.SellerPayout
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := load(repo)
		if err != nil {
			return notFoundOr(err, "payout not found")
		}
		payout = current

		if payout.Status == status {
			return nil
		}
		if payout.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout already reconciled").
				WithDetails(map[string]any{"status": payout.Status})
		}

		now := s.now().UTC()
		switch status {
		case enums.PayoutStatusPaid:
			if err := repo.UpdatePayout(ctx, payout.ID, map[string]any{"status": status, "paid_at": now}); err != nil {
				return persistence(err)
			}
			if err := s.ledger.RecordPayout(ctx, tx, payout.ShopID, payout.Amount); err != nil {
				return err
			}
			payout.PaidAt = &now
			if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutPaid,
				AggregateType: enums.AggregateSellerPayout,
				AggregateID:   payout.ID,
				Data: payloads.PayoutPaidEvent{
					PayoutID: payout.ID,
					ShopID:   payout.ShopID,
					Amount:   payout.Amount,
					PaidAt:   now,
				},
				OccurredAt: now,
			}); err != nil {
				return err
			}
		case enums.PayoutStatusFailed:
			reason := strings.TrimSpace(failureReason)
			if reason == "" {
				reason = "payout failed"
			}
			if err := repo.UpdatePayout(ctx, payout.ID, map[string]any{"status": status, "failure_reason": reason}); err != nil {
				return persistence(err)
			}
			// Released payments become eligible for the next batch.
			if err := repo.ReleasePayments(ctx, payout.ID); err != nil {
				return persistence(err)
			}
			payout.FailureReason = &reason
			if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutFailed,
				AggregateType: enums.AggregateSellerPayout,
				AggregateID:   payout.ID,
				Data: payloads.PayoutFailedEvent{
					PayoutID: payout.ID,
					ShopID:   payout.ShopID,
					Amount:   payout.Amount,
					Reason:   reason,
				},
				OccurredAt: now,
			}); err != nil {
				return err
			}
		}
		payout.Status = status
		changed = true
		return nil
	})
	if err != nil {
		return nil, persistence(err)
	}

	if changed {
		s.observe(string(status))
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"payout_id": payout.ID.String(),
			"status":    string(status),
		}), "payout reconciled")
	}
	return payout, nil
}

func (s *service) ListPayouts(ctx context.Context, shopID uuid.UUID, status *enums.PayoutStatus) ([]models.SellerPayout, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status")
	}
	rows, err := s.repo.ListPayouts(ctx, shopID, status)
	if err != nil {
		return nil, persistence(err)
	}
	return rows, nil
}

// CreateNonprofitPayout pays the listed pending donations in one batch and
// marks them PAID. Any id that is not a pending donation of the nonprofit
// rejects the whole batch.
func (s *service) CreateNonprofitPayout(ctx context.Context, input NonprofitPayoutInput) (*models.NonprofitPayout, error) {
	if input.NonprofitID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nonprofit id is required")
	}
	ids := uniqueIDs(input.DonationIDs)
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one donation id is required")
	}

	var payout *models.NonprofitPayout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		donations, err := repo.LockPendingDonations(ctx, input.NonprofitID, ids)
		if err != nil {
			return persistence(err)
		}
		if len(donations) != len(ids) {
			return pkgerrors.New(pkgerrors.CodeConflict, msgUnavailable).
				WithDetails(map[string]any{"requested": len(ids), "eligible": len(donations)})
		}

		amount := decimal.Zero
		for _, d := range donations {
			amount = amount.Add(d.Amount)
		}

		now := s.now().UTC()
		payout = &models.NonprofitPayout{
			NonprofitID:   input.NonprofitID,
			Amount:        amount,
			DonationCount: len(donations),
			Status:        enums.PayoutStatusPaid,
			PaidAt:        &now,
		}
		if ref := strings.TrimSpace(input.ExternalReference); ref != "" {
			payout.ExternalReference = &ref
		}
		if err := repo.CreateNonprofitPayout(ctx, payout); err != nil {
			return persistence(err)
		}
		marked, err := repo.MarkDonationsPaid(ctx, ids, payout.ID, now)
		if err != nil {
			return persistence(err)
		}
		if int(marked) != len(ids) {
			return pkgerrors.New(pkgerrors.CodeConflict, msgUnavailable)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNonprofitPayoutPaid,
			AggregateType: enums.AggregateNonprofitPayout,
			AggregateID:   payout.ID,
			Data: payloads.NonprofitPayoutPaidEvent{
				NonprofitPayoutID: payout.ID,
				NonprofitID:       input.NonprofitID,
				Amount:            amount,
				DonationCount:     payout.DonationCount,
				PaidAt:            now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, persistence(err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"nonprofit_payout_id": payout.ID.String(),
		"nonprofit_id":        input.NonprofitID.String(),
		"amount":              payout.Amount.StringFixed(2),
	}), "nonprofit payout recorded")
	return payout, nil
}

func (s *service) observe(status string) {
	if s.metrics != nil {
		s.metrics.IncPayout(status)
	}
}

func validatePeriod(shopID uuid.UUID, start, end time.Time) error {
	if shopID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return pkgerrors.New(pkgerrors.CodeValidation, "period start must be before period end")
	}
	return nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return persistence(err)
}

func persistence(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
}
