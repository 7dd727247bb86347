package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/BenTyson/evercraft-sub001/internal/payouts"
	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

const defaultPayoutPeriodDays = 7

// PayoutBatchJobParams configure the periodic seller payout run.
type PayoutBatchJobParams struct {
	Logger       *logger.Logger
	Payouts      payoutBatcher
	PeriodDays   int
	SubmitToRail bool
}

type payoutBatcher interface {
	ShopsDue(ctx context.Context, periodEnd time.Time) ([]payouts.ShopDue, error)
	CreatePayoutBatch(ctx context.Context, shopID uuid.UUID, periodStart, periodEnd time.Time) (*models.SellerPayout, error)
	SubmitPayout(ctx context.Context, payoutID uuid.UUID) (*models.SellerPayout, error)
}

// NewPayoutBatchJob builds the job that batches the previous period's
// payments into one payout per shop.
func NewPayoutBatchJob(params PayoutBatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	days := params.PeriodDays
	if days <= 0 {
		days = defaultPayoutPeriodDays
	}
	return &payoutBatchJob{
		logg:    params.Logger,
		payouts: params.Payouts,
		period:  time.Duration(days) * 24 * time.Hour,
		submit:  params.SubmitToRail,
		now:     time.Now,
	}, nil
}

type payoutBatchJob struct {
	logg    *logger.Logger
	payouts payoutBatcher
	period  time.Duration
	submit  bool
	now     func() time.Time
}

func (j *payoutBatchJob) Name() string { return "payout-batch" }

// Run covers the window ending at today's UTC midnight. A shop whose oldest
// unclaimed payment predates the window gets its period stretched back to that
// payment's day, so released and below-minimum payments are retried.
func (j *payoutBatchJob) Run(ctx context.Context) error {
	end := j.now().UTC().Truncate(24 * time.Hour)
	windowStart := end.Add(-j.period)

	due, err := j.payouts.ShopsDue(ctx, end)
	if err != nil {
		return fmt.Errorf("list shops due: %w", err)
	}

	var (
		errs    error
		created int
		skipped int
	)
	for _, shop := range due {
		shopID := shop.ShopID
		start := windowStart
		if since := shop.Since.UTC().Truncate(24 * time.Hour); since.Before(start) {
			start = since
		}
		shopCtx := j.logg.WithFields(ctx, map[string]any{
			"shop_id":      shopID.String(),
			"period_start": start,
		})
		payout, err := j.payouts.CreatePayoutBatch(shopCtx, shopID, start, end)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				skipped++
				j.logg.Debug(j.logg.WithField(shopCtx, "reason", err.Error()), "payout batch skipped")
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("shop %s: %w", shopID, err))
			continue
		}
		created++
		if !j.submit {
			continue
		}
		if _, err := j.payouts.SubmitPayout(shopCtx, payout.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("submit payout %s: %w", payout.ID, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"window_start": windowStart,
		"period_end":   end,
		"shops":        len(due),
		"created":      created,
		"skipped":      skipped,
	}), "payout batch run complete")
	return errs
}
