// Package transfers moves each shop's settled payout to its connected account
// on the payout rail, outside of any ledger transaction.
package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/payloads"
	"github.com/BenTyson/evercraft-sub001/pkg/stripe"
)

const (
	defaultTransferTimeout = 10 * time.Second
	defaultCacheTTL        = 5 * time.Minute
	defaultMaxAttempts     = 5
	accountCacheSize       = 1024
)

const (
	reasonAutoDisabled     = "automatic transfers disabled"
	reasonNoAccount        = "shop has no connected account"
	reasonPayoutsDisabled  = "connected account payouts not enabled"
	reasonTransferTimedOut = "transfer request timed out"
)

// Rail is the processor surface used for transfers.
type Rail interface {
	AccountStatus(ctx context.Context, accountID string) (stripe.AccountStatus, error)
	CreateTransfer(ctx context.Context, req stripe.TransferRequest) (string, error)
}

type shopLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type transferObserver interface {
	IncTransfer(status string)
}

// Request asks for one shop's share of an order to be transferred.
type Request struct {
	OrderID uuid.UUID
	ShopID  uuid.UUID
	Amount  decimal.Decimal
}

// Result is the outcome of SubmitTransfer. Failed results are retryable.
type Result struct {
	Status     enums.TransferStatus
	TransferID uuid.UUID
	ExternalID string
	Reason     string
}

// Params wires the dispatcher.
type Params struct {
	Config     config.SettlementConfig
	TxRunner   txRunner
	Repository Repository
	Shops      shopLoader
	Rail       Rail
	Outbox     outboxPublisher
	Metrics    transferObserver
	Logger     *logger.Logger
}

// Dispatcher submits transfers and records their outcome.
type Dispatcher struct {
	enabled     bool
	timeout     time.Duration
	maxAttempts int
	tx          txRunner
	repo        Repository
	shops       shopLoader
	rail        Rail
	outbox      outboxPublisher
	metrics     transferObserver
	accounts    *expirable.LRU[string, stripe.AccountStatus]
	logg        *logger.Logger
	now         func() time.Time
}

// NewDispatcher validates dependencies and applies config defaults.
func NewDispatcher(params Params) (*Dispatcher, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("transfer repository required")
	}
	if params.Shops == nil {
		return nil, fmt.Errorf("shop loader required")
	}
	if params.Rail == nil {
		return nil, fmt.Errorf("payout rail required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg := params.Config
	timeout := cfg.TransferTimeout
	if timeout <= 0 {
		timeout = defaultTransferTimeout
	}
	ttl := cfg.AccountStatusCacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	maxAttempts := cfg.TransferMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Dispatcher{
		enabled:     cfg.AutoTransfersEnabled,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		tx:          params.TxRunner,
		repo:        params.Repository,
		shops:       params.Shops,
		rail:        params.Rail,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		accounts:    expirable.NewLRU[string, stripe.AccountStatus](accountCacheSize, nil, ttl),
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// MaxAttempts is the attempt ceiling after which retries stop.
func (d *Dispatcher) MaxAttempts() int {
	return d.maxAttempts
}

// SubmitTransfer is idempotent per (order, shop): an accepted transfer is
// returned as-is and the rail sees the same idempotency key on every attempt.
// The ledger is never touched here.
func (d *Dispatcher) SubmitTransfer(ctx context.Context, req Request) (Result, error) {
	if req.OrderID == uuid.Nil || req.ShopID == uuid.Nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "order id and shop id are required")
	}
	if !req.Amount.IsPositive() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}
	ctx = d.logg.WithFields(ctx, map[string]any{
		"order_id": req.OrderID.String(),
		"shop_id":  req.ShopID.String(),
		"amount":   req.Amount.StringFixed(2),
	})

	result, err := d.submit(ctx, req)
	if err == nil && d.metrics != nil {
		d.metrics.IncTransfer(string(result.Status))
	}
	return result, err
}

func (d *Dispatcher) submit(ctx context.Context, req Request) (Result, error) {
	existing, err := d.repo.FindByOrderShop(ctx, req.OrderID, req.ShopID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	if existing != nil {
		switch existing.Status {
		case enums.TransferStatusAccepted:
			return acceptedResult(existing), nil
		case enums.TransferStatusReversed:
			return reversedResult(existing), nil
		}
	}

	if !d.enabled {
		return d.skip(ctx, req, reasonAutoDisabled)
	}

	shop, err := d.shops.FindByID(ctx, req.ShopID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	if shop.ConnectedAccountID == nil || *shop.ConnectedAccountID == "" {
		return d.skip(ctx, req, reasonNoAccount)
	}
	accountID := *shop.ConnectedAccountID

	status, err := d.accountStatus(ctx, accountID)
	if err != nil {
		return d.fail(ctx, req, nil, err)
	}
	if !status.PayoutsEnabled {
		return d.skip(ctx, req, reasonPayoutsDisabled)
	}

	row, err := d.repo.Reserve(ctx, req.OrderID, req.ShopID, req.Amount, d.now().UTC())
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	switch row.Status {
	case enums.TransferStatusAccepted:
		return acceptedResult(row), nil
	case enums.TransferStatusReversed:
		return reversedResult(row), nil
	}

	railCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	externalID, err := d.rail.CreateTransfer(railCtx, stripe.TransferRequest{
		Destination:    accountID,
		Amount:         req.Amount,
		TransferGroup:  req.OrderID.String(),
		IdempotencyKey: IdempotencyKey(req.OrderID, req.ShopID),
		Metadata: map[string]string{
			"order_id": req.OrderID.String(),
			"shop_id":  req.ShopID.String(),
		},
	})
	if err != nil {
		if errors.Is(railCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%s: %w", reasonTransferTimedOut, err)
		}
		return d.fail(ctx, req, row, err)
	}

	if err := d.repo.MarkAccepted(ctx, row.ID, externalID, d.now().UTC()); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	d.logg.Info(d.logg.WithField(ctx, "external_transfer_id", externalID), "transfer accepted")
	return Result{Status: enums.TransferStatusAccepted, TransferID: row.ID, ExternalID: externalID}, nil
}

func (d *Dispatcher) accountStatus(ctx context.Context, accountID string) (stripe.AccountStatus, error) {
	if cached, ok := d.accounts.Get(accountID); ok {
		return cached, nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	status, err := d.rail.AccountStatus(lookupCtx, accountID)
	if err != nil {
		return stripe.AccountStatus{}, err
	}
	d.accounts.Add(accountID, status)
	return status, nil
}

func (d *Dispatcher) skip(ctx context.Context, req Request, reason string) (Result, error) {
	row, err := d.repo.Reserve(ctx, req.OrderID, req.ShopID, req.Amount, d.now().UTC())
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	if err := d.repo.MarkOutcome(ctx, row.ID, enums.TransferStatusSkipped, reason, d.now().UTC()); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	d.logg.Info(d.logg.WithField(ctx, "reason", reason), "transfer skipped")
	return Result{Status: enums.TransferStatusSkipped, TransferID: row.ID, Reason: reason}, nil
}

// fail records the failure and, once attempts run out, emits transfer_failed
// in the same transaction. The seller balance is unaffected either way.
func (d *Dispatcher) fail(ctx context.Context, req Request, row *models.Transfer, cause error) (Result, error) {
	reason := cause.Error()
	d.logg.Warn(d.logg.WithField(ctx, "error", reason), "transfer failed")

	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.repo.WithTx(tx)
		if row == nil {
			reserved, err := repo.Reserve(ctx, req.OrderID, req.ShopID, req.Amount, d.now().UTC())
			if err != nil {
				return err
			}
			row = reserved
		}
		if err := repo.MarkOutcome(ctx, row.ID, enums.TransferStatusFailed, reason, d.now().UTC()); err != nil {
			return err
		}
		if row.Attempts < d.maxAttempts {
			return nil
		}
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransferFailed,
			AggregateType: enums.AggregateTransfer,
			AggregateID:   row.ID,
			Data: payloads.TransferFailedEvent{
				TransferID: row.ID,
				OrderID:    req.OrderID,
				ShopID:     req.ShopID,
				Amount:     req.Amount,
				Reason:     reason,
				Attempts:   row.Attempts,
			},
		})
	})
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	return Result{Status: enums.TransferStatusFailed, TransferID: row.ID, Reason: reason}, nil
}

// MarkReversed moves a transfer the processor has reversed to the terminal
// reversed status so retries never resend it. Repeat calls are no-ops.
func (d *Dispatcher) MarkReversed(ctx context.Context, externalID, reason string) error {
	row, err := d.repo.FindByExternalID(ctx, externalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "transfer not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	if row.Status == enums.TransferStatusReversed {
		return nil
	}
	if reason == "" {
		reason = "transfer reversed"
	}
	err = d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := d.repo.WithTx(tx).MarkOutcome(ctx, row.ID, enums.TransferStatusReversed, reason, d.now().UTC()); err != nil {
			return err
		}
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransferFailed,
			AggregateType: enums.AggregateTransfer,
			AggregateID:   row.ID,
			Data: payloads.TransferFailedEvent{
				TransferID: row.ID,
				OrderID:    row.OrderID,
				ShopID:     row.ShopID,
				Amount:     row.Amount,
				Reason:     reason,
				Attempts:   row.Attempts,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	return nil
}

// IdempotencyKey is the rail idempotency key for one (order, shop) transfer.
func IdempotencyKey(orderID, shopID uuid.UUID) string {
	return fmt.Sprintf("transfer:%s:%s", orderID, shopID)
}

func reversedResult(row *models.Transfer) Result {
	result := Result{Status: enums.TransferStatusReversed, TransferID: row.ID}
	if row.FailureReason != nil {
		result.Reason = *row.FailureReason
	}
	return result
}

func acceptedResult(row *models.Transfer) Result {
	result := Result{Status: enums.TransferStatusAccepted, TransferID: row.ID}
	if row.ExternalTransferID != nil {
		result.ExternalID = *row.ExternalTransferID
	}
	return result
}
