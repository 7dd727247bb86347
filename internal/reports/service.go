// Package reports serves read-only financial projections for sellers:
// overview, tax-year summaries, paginated transactions and CSV exports.
package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BenTyson/evercraft-sub001/internal/ledger"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	pkgpagination "github.com/BenTyson/evercraft-sub001/pkg/pagination"
)

var hundred = decimal.NewFromInt(100)

type readRepository interface {
	SumRevenue(ctx context.Context, shopID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	SumDonated(ctx context.Context, shopID uuid.UUID) (decimal.Decimal, error)
	SumPendingPayouts(ctx context.Context, shopID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, q transactionQuery) ([]TransactionRow, error)
}

// Service is the seller reporting surface.
type Service interface {
	FinancialOverview(ctx context.Context, shopID uuid.UUID, now time.Time) (*FinancialOverview, error)
	TaxSummary(ctx context.Context, shopID uuid.UUID) (*TaxSummary, error)
	ListTransactions(ctx context.Context, shopID uuid.UUID, params pkgpagination.Params) (*TransactionPage, error)
	ExportTransactionsCSV(ctx context.Context, shopID uuid.UUID, from, to time.Time, w io.Writer) error
}

type FinancialOverview struct {
	ShopID           uuid.UUID       `json:"shop_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	PendingBalance   decimal.Decimal `json:"pending_balance"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	TotalPaidOut     decimal.Decimal `json:"total_paid_out"`
	ThisMonthRevenue decimal.Decimal `json:"this_month_revenue"`
	LastMonthRevenue decimal.Decimal `json:"last_month_revenue"`
	GrowthPercent    decimal.Decimal `json:"growth_percent"`
	PendingPayouts   decimal.Decimal `json:"pending_payouts"`
	TotalDonated     decimal.Decimal `json:"total_donated"`
}

type TaxYear struct {
	TaxYear           int             `json:"tax_year"`
	GrossPayments     decimal.Decimal `json:"gross_payments"`
	TransactionCount  int             `json:"transaction_count"`
	ReportingRequired bool            `json:"reporting_required"`
}

type TaxSummary struct {
	ShopID uuid.UUID `json:"shop_id"`
	Years  []TaxYear `json:"years"`
}

type Transaction struct {
	PaymentID         uuid.UUID           `json:"payment_id"`
	OrderID           uuid.UUID           `json:"order_id"`
	OrderNumber       string              `json:"order_number"`
	GrossAmount       decimal.Decimal     `json:"gross_amount"`
	PlatformFee       decimal.Decimal     `json:"platform_fee"`
	NonprofitDonation decimal.Decimal     `json:"nonprofit_donation"`
	NetPayout         decimal.Decimal     `json:"net_payout"`
	Status            enums.PaymentStatus `json:"status"`
	PayoutID          *uuid.UUID          `json:"payout_id"`
	CreatedAt         time.Time           `json:"created_at"`
}

type TransactionPage struct {
	Items  []Transaction `json:"items"`
	Cursor string        `json:"cursor"`
}

type service struct {
	repo   readRepository
	ledger ledger.Service
}

func NewService(repo readRepository, ledgerSvc ledger.Service) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &service{repo: repo, ledger: ledgerSvc}, nil
}

// FinancialOverview compares the calendar month containing now against the
// previous one. Growth is zero when the previous month had no revenue.
func (s *service) FinancialOverview(ctx context.Context, shopID uuid.UUID, now time.Time) (*FinancialOverview, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	now = now.UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonth := thisMonth.AddDate(0, -1, 0)

	balance, err := s.ledger.Balance(ctx, shopID)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.SumRevenue(ctx, shopID, thisMonth, now.Add(time.Nanosecond))
	if err != nil {
		return nil, dependency(err, "sum current revenue")
	}
	previous, err := s.repo.SumRevenue(ctx, shopID, lastMonth, thisMonth)
	if err != nil {
		return nil, dependency(err, "sum previous revenue")
	}
	pending, err := s.repo.SumPendingPayouts(ctx, shopID)
	if err != nil {
		return nil, dependency(err, "sum pending payouts")
	}
	donated, err := s.repo.SumDonated(ctx, shopID)
	if err != nil {
		return nil, dependency(err, "sum donations")
	}

	return &FinancialOverview{
		ShopID:           shopID,
		AvailableBalance: balance.AvailableBalance,
		PendingBalance:   balance.PendingBalance,
		TotalEarned:      balance.TotalEarned,
		TotalPaidOut:     balance.TotalPaidOut,
		ThisMonthRevenue: current,
		LastMonthRevenue: previous,
		GrowthPercent:    GrowthPercent(current, previous),
		PendingPayouts:   pending,
		TotalDonated:     donated,
	}, nil
}

// GrowthPercent is (current-previous)/previous*100 rounded to two places, or
// zero when previous is not positive.
func GrowthPercent(current, previous decimal.Decimal) decimal.Decimal {
	if !previous.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred).Round(2)
}

func (s *service) TaxSummary(ctx context.Context, shopID uuid.UUID) (*TaxSummary, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	rows, err := s.ledger.TaxYears(ctx, shopID)
	if err != nil {
		return nil, err
	}
	years := make([]TaxYear, len(rows))
	for i, row := range rows {
		years[i] = TaxYear{
			TaxYear:           row.TaxYear,
			GrossPayments:     row.GrossPayments,
			TransactionCount:  row.TransactionCount,
			ReportingRequired: row.ReportingRequired,
		}
	}
	return &TaxSummary{ShopID: shopID, Years: years}, nil
}

func (s *service) ListTransactions(ctx context.Context, shopID uuid.UUID, params pkgpagination.Params) (*TransactionPage, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}

	query := transactionQuery{
		shopID: shopID,
		limit:  pkgpagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.ListTransactions(ctx, query)
	if err != nil {
		return nil, dependency(err, "list transactions")
	}

	rows, next := pkgpagination.Split(rows, params.Limit, transactionCursor)
	nextCursor := ""
	if next != nil {
		nextCursor = next.Encode()
	}

	items := make([]Transaction, len(rows))
	for i, row := range rows {
		items[i] = toTransaction(row)
	}
	return &TransactionPage{Items: items, Cursor: nextCursor}, nil
}

func transactionCursor(row TransactionRow) pkgpagination.Cursor {
	return pkgpagination.Cursor{CreatedAt: row.CreatedAt, ID: row.PaymentID}
}

// ExportTransactionsCSV writes every payment created in [from, to). A zero
// bound is open.
func (s *service) ExportTransactionsCSV(ctx context.Context, shopID uuid.UUID, from, to time.Time, w io.Writer) error {
	if shopID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	query := transactionQuery{shopID: shopID}
	if !from.IsZero() {
		f := from.UTC()
		query.from = &f
	}
	if !to.IsZero() {
		t := to.UTC()
		query.to = &t
	}
	rows, err := s.repo.ListTransactions(ctx, query)
	if err != nil {
		return dependency(err, "list transactions")
	}
	return WriteTransactionsCSV(w, rows)
}

func toTransaction(row TransactionRow) Transaction {
	return Transaction{
		PaymentID:         row.PaymentID,
		OrderID:           row.OrderID,
		OrderNumber:       row.OrderNumber,
		GrossAmount:       row.Amount,
		PlatformFee:       row.PlatformFee,
		NonprofitDonation: row.NonprofitDonation,
		NetPayout:         row.SellerPayout,
		Status:            row.Status,
		PayoutID:          row.PayoutID,
		CreatedAt:         row.CreatedAt,
	}
}

func dependency(err error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
