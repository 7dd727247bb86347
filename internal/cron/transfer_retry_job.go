package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/BenTyson/evercraft-sub001/internal/transfers"
	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

const (
	transferRetryBackoff   = 15 * time.Minute
	transferRetryBatchSize = 100
)

// TransferRetryJobParams configure the failed-transfer sweeper.
type TransferRetryJobParams struct {
	Logger     *logger.Logger
	Repository retryableTransferLister
	Dispatcher transferSubmitter
	Backoff    time.Duration
	BatchSize  int
}

type retryableTransferLister interface {
	ListRetryable(ctx context.Context, maxAttempts int, attemptedBefore time.Time, limit int) ([]models.Transfer, error)
}

type transferSubmitter interface {
	SubmitTransfer(ctx context.Context, req transfers.Request) (transfers.Result, error)
	MaxAttempts() int
}

// NewTransferRetryJob builds the job that resubmits failed transfers until
// their attempts run out.
func NewTransferRetryJob(params TransferRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("transfer repository required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("transfer dispatcher required")
	}
	backoff := params.Backoff
	if backoff <= 0 {
		backoff = transferRetryBackoff
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = transferRetryBatchSize
	}
	return &transferRetryJob{
		logg:       params.Logger,
		repo:       params.Repository,
		dispatcher: params.Dispatcher,
		backoff:    backoff,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type transferRetryJob struct {
	logg       *logger.Logger
	repo       retryableTransferLister
	dispatcher transferSubmitter
	backoff    time.Duration
	batch      int
	now        func() time.Time
}

func (j *transferRetryJob) Name() string { return "transfer-retry" }

func (j *transferRetryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.backoff)
	rows, err := j.repo.ListRetryable(ctx, j.dispatcher.MaxAttempts(), cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list retryable transfers: %w", err)
	}

	var (
		errs     error
		accepted int
		failed   int
	)
	for _, row := range rows {
		result, err := j.dispatcher.SubmitTransfer(ctx, transfers.Request{
			OrderID: row.OrderID,
			ShopID:  row.ShopID,
			Amount:  row.Amount,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("transfer %s: %w", row.ID, err))
			continue
		}
		switch result.Status {
		case enums.TransferStatusAccepted:
			accepted++
		case enums.TransferStatusFailed:
			failed++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(rows),
		"accepted":   accepted,
		"failed":     failed,
		"cutoff":     cutoff,
	}), "transfer retry sweep complete")
	return errs
}
