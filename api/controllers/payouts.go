package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BenTyson/evercraft-sub001/api/responses"
	"github.com/BenTyson/evercraft-sub001/api/validators"
	"github.com/BenTyson/evercraft-sub001/internal/payouts"
	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

// CreateShopPayout batches a shop's eligible payments into a pending payout.
// With payment_ids only those payments are claimed. Without a period the
// trailing periodDays window ending now is used.
func CreateShopPayout(svc payouts.Service, periodDays int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		shopID, err := validators.URLParamUUID(r, "shopId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createPayoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		start, end := payload.period(time.Now().UTC(), periodDays)

		var payout *models.SellerPayout
		if len(payload.PaymentIDs) > 0 {
			payout, err = svc.CreatePayout(r.Context(), payouts.CreatePayoutInput{
				ShopID:      shopID,
				PaymentIDs:  payload.PaymentIDs,
				PeriodStart: start,
				PeriodEnd:   end,
			})
		} else {
			payout, err = svc.CreatePayoutBatch(r.Context(), shopID, start, end)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newPayoutResponse(payout))
	}
}

// ListShopPayouts returns a shop's payouts, optionally filtered by status.
func ListShopPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		shopID, err := validators.URLParamUUID(r, "shopId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.PayoutStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParsePayoutStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		rows, err := svc.ListPayouts(r.Context(), shopID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]payoutResponse, 0, len(rows))
		for i := range rows {
			items = append(items, newPayoutResponse(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

// SubmitPayout hands a pending payout to the payout rail.
func SubmitPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		payoutID, err := validators.URLParamUUID(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.SubmitPayout(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

// ReconcilePayout records the rail outcome for a payout when it is settled
// outside the webhook path.
func ReconcilePayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		payoutID, err := validators.URLParamUUID(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reconcilePayoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParsePayoutStatus(payload.Status)
		if err != nil || !status.IsTerminal() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status must be paid or failed"))
			return
		}

		payout, err := svc.Reconcile(r.Context(), payoutID, status, validators.SanitizeString(payload.FailureReason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

// CreateNonprofitPayout pays out the listed pending donations to a nonprofit.
func CreateNonprofitPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		nonprofitID, err := validators.URLParamUUID(r, "nonprofitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload nonprofitPayoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.CreateNonprofitPayout(r.Context(), payouts.NonprofitPayoutInput{
			NonprofitID:       nonprofitID,
			DonationIDs:       payload.DonationIDs,
			ExternalReference: validators.SanitizeString(payload.ExternalReference, 255),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newNonprofitPayoutResponse(payout))
	}
}

type createPayoutRequest struct {
	PaymentIDs  []uuid.UUID `json:"payment_ids,omitempty"`
	PeriodStart *time.Time  `json:"period_start,omitempty"`
	PeriodEnd   *time.Time  `json:"period_end,omitempty"`
}

func (p createPayoutRequest) period(now time.Time, periodDays int) (time.Time, time.Time) {
	if periodDays <= 0 {
		periodDays = 7
	}
	end := now
	if p.PeriodEnd != nil {
		end = p.PeriodEnd.UTC()
	}
	start := end.AddDate(0, 0, -periodDays)
	if p.PeriodStart != nil {
		start = p.PeriodStart.UTC()
	}
	return start, end
}

type reconcilePayoutRequest struct {
	Status        string `json:"status" validate:"required,oneof=paid failed"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type nonprofitPayoutRequest struct {
	DonationIDs       []uuid.UUID `json:"donation_ids" validate:"required,min=1"`
	ExternalReference string      `json:"external_reference,omitempty" validate:"max=255"`
}

type payoutResponse struct {
	ID               uuid.UUID          `json:"id"`
	ShopID           uuid.UUID          `json:"shop_id"`
	Amount           decimal.Decimal    `json:"amount"`
	Status           enums.PayoutStatus `json:"status"`
	TransactionCount int                `json:"transaction_count"`
	PeriodStart      time.Time          `json:"period_start"`
	PeriodEnd        time.Time          `json:"period_end"`
	ExternalPayoutID *string            `json:"external_payout_id,omitempty"`
	FailureReason    *string            `json:"failure_reason,omitempty"`
	PaidAt           *time.Time         `json:"paid_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

func newPayoutResponse(p *models.SellerPayout) payoutResponse {
	return payoutResponse{
		ID:               p.ID,
		ShopID:           p.ShopID,
		Amount:           p.Amount.Round(2),
		Status:           p.Status,
		TransactionCount: p.TransactionCount,
		PeriodStart:      p.PeriodStart,
		PeriodEnd:        p.PeriodEnd,
		ExternalPayoutID: p.ExternalPayoutID,
		FailureReason:    p.FailureReason,
		PaidAt:           p.PaidAt,
		CreatedAt:        p.CreatedAt,
	}
}

type nonprofitPayoutResponse struct {
	ID                uuid.UUID          `json:"id"`
	NonprofitID       uuid.UUID          `json:"nonprofit_id"`
	Amount            decimal.Decimal    `json:"amount"`
	DonationCount     int                `json:"donation_count"`
	Status            enums.PayoutStatus `json:"status"`
	ExternalReference *string            `json:"external_reference,omitempty"`
	PaidAt            *time.Time         `json:"paid_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

func newNonprofitPayoutResponse(p *models.NonprofitPayout) nonprofitPayoutResponse {
	return nonprofitPayoutResponse{
		ID:                p.ID,
		NonprofitID:       p.NonprofitID,
		Amount:            p.Amount.Round(2),
		DonationCount:     p.DonationCount,
		Status:            p.Status,
		ExternalReference: p.ExternalReference,
		PaidAt:            p.PaidAt,
		CreatedAt:         p.CreatedAt,
	}
}
