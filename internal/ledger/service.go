package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
)

// Service applies settlement and payout movements to the seller ledgers.
type Service interface {
	RecordSale(ctx context.Context, tx *gorm.DB, entry SaleEntry) (*models.Seller1099Data, error)
	RecordPayout(ctx context.Context, tx *gorm.DB, shopID uuid.UUID, amount decimal.Decimal) error
	Balance(ctx context.Context, shopID uuid.UUID) (*models.SellerBalance, error)
	TaxYears(ctx context.Context, shopID uuid.UUID) ([]models.Seller1099Data, error)
}

// SaleEntry is one settled Payment as seen by the ledgers.
type SaleEntry struct {
	ShopID       uuid.UUID
	Gross        decimal.Decimal
	SellerPayout decimal.Decimal
	SettledAt    time.Time
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// RecordSale credits the seller balance by the payout and adds the gross to
// the tax year of SettledAt.
func (s *service) RecordSale(ctx context.Context, tx *gorm.DB, entry SaleEntry) (*models.Seller1099Data, error) {
	if entry.ShopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	if entry.Gross.IsNegative() || entry.SellerPayout.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale amounts must not be negative")
	}
	at := entry.SettledAt
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	repo := s.repo.WithTx(tx)
	if err := repo.CreditSale(ctx, entry.ShopID, entry.SellerPayout, at); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	taxYear, err := repo.RecordTaxablePayment(ctx, entry.ShopID, at.Year(), entry.Gross, at)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	return taxYear, nil
}

// RecordPayout moves amount from available to paid out.
func (s *service) RecordPayout(ctx context.Context, tx *gorm.DB, shopID uuid.UUID, amount decimal.Decimal) error {
	if shopID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	ok, err := s.repo.WithTx(tx).DebitPayout(ctx, shopID, amount, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "seller balance not found")
	}
	return nil
}

// Balance returns a zero balance for shops that have not sold anything yet.
func (s *service) Balance(ctx context.Context, shopID uuid.UUID) (*models.SellerBalance, error) {
	balance, err := s.repo.FindBalance(ctx, shopID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.SellerBalance{ShopID: shopID}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	return balance, nil
}

func (s *service) TaxYears(ctx context.Context, shopID uuid.UUID) ([]models.Seller1099Data, error) {
	rows, err := s.repo.ListTaxYears(ctx, shopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	return rows, nil
}
