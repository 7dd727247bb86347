package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/db/dbtest"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func TestRecordSale_UpsertsBalanceAndTaxYear(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	shopID := uuid.New()
	settledAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.RecordSale(ctx, tx, SaleEntry{
				ShopID:       shopID,
				Gross:        dec("100"),
				SellerPayout: dec("88.5"),
				SettledAt:    settledAt,
			})
			return err
		})
		require.NoError(t, err)
	}

	balance, err := svc.Balance(ctx, shopID)
	require.NoError(t, err)
	assert.True(t, balance.AvailableBalance.Equal(dec("177")), "available %s", balance.AvailableBalance)
	assert.True(t, balance.TotalEarned.Equal(dec("177")), "earned %s", balance.TotalEarned)
	assert.True(t, balance.TotalPaidOut.IsZero())

	years, err := svc.TaxYears(ctx, shopID)
	require.NoError(t, err)
	require.Len(t, years, 1)
	assert.Equal(t, 2026, years[0].TaxYear)
	assert.Equal(t, 2, years[0].TransactionCount)
	assert.True(t, years[0].GrossPayments.Equal(dec("200")))
	assert.False(t, years[0].ReportingRequired)
}

func TestRecordSale_ReportingFlipsOnGrossAndStays(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	shopID := uuid.New()
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	row, err := svc.RecordSale(ctx, db, SaleEntry{ShopID: shopID, Gross: dec("19999.99"), SellerPayout: dec("18000"), SettledAt: at})
	require.NoError(t, err)
	assert.False(t, row.ReportingRequired)

	row, err = svc.RecordSale(ctx, db, SaleEntry{ShopID: shopID, Gross: dec("0.01"), SellerPayout: dec("0.01"), SettledAt: at})
	require.NoError(t, err)
	assert.True(t, row.ReportingRequired, "crossing 20000 must require reporting")

	// A later zero-gross correction cannot push it back below the line.
	row, err = svc.RecordSale(ctx, db, SaleEntry{ShopID: shopID, Gross: decimal.Zero, SellerPayout: decimal.Zero, SettledAt: at})
	require.NoError(t, err)
	assert.True(t, row.ReportingRequired)

	// Next year starts fresh.
	row, err = svc.RecordSale(ctx, db, SaleEntry{ShopID: shopID, Gross: dec("10"), SellerPayout: dec("9"), SettledAt: at.AddDate(1, 0, 0)})
	require.NoError(t, err)
	assert.Equal(t, 2027, row.TaxYear)
	assert.False(t, row.ReportingRequired)
}

func TestRecordSale_ReportingFlipsOnCount(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	shopID := uuid.New()
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	var lastFlag bool
	for i := 1; i <= ReportingCountThreshold; i++ {
		row, err := svc.RecordSale(ctx, db, SaleEntry{ShopID: shopID, Gross: dec("1"), SellerPayout: dec("0.9"), SettledAt: at})
		require.NoError(t, err)
		if i < ReportingCountThreshold {
			require.False(t, row.ReportingRequired, "flag set early at %d", i)
		}
		lastFlag = row.ReportingRequired
	}
	assert.True(t, lastFlag)
}

func TestRecordSale_Validation(t *testing.T) {
	svc, db := newTestService(t)

	_, err := svc.RecordSale(context.Background(), db, SaleEntry{Gross: dec("1")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.RecordSale(context.Background(), db, SaleEntry{ShopID: uuid.New(), Gross: dec("-1")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRecordPayout_MovesAvailableToPaidOut(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	shopID := uuid.New()

	_, err := svc.RecordSale(ctx, db, SaleEntry{ShopID: shopID, Gross: dec("100"), SellerPayout: dec("88.5")})
	require.NoError(t, err)
	require.NoError(t, svc.RecordPayout(ctx, db, shopID, dec("50")))

	balance, err := svc.Balance(ctx, shopID)
	require.NoError(t, err)
	assert.True(t, balance.AvailableBalance.Equal(dec("38.5")))
	assert.True(t, balance.TotalPaidOut.Equal(dec("50")))

	// totalEarned - totalPaidOut == available + pending
	lhs := balance.TotalEarned.Sub(balance.TotalPaidOut)
	rhs := balance.AvailableBalance.Add(balance.PendingBalance)
	assert.True(t, lhs.Sub(rhs).Abs().LessThan(dec("0.0001")))
}

func TestRecordPayout_Errors(t *testing.T) {
	svc, db := newTestService(t)

	err := svc.RecordPayout(context.Background(), db, uuid.New(), dec("10"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = svc.RecordPayout(context.Background(), db, uuid.New(), decimal.Zero)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestBalance_MissingShopIsZero(t *testing.T) {
	svc, _ := newTestService(t)
	shopID := uuid.New()

	balance, err := svc.Balance(context.Background(), shopID)
	require.NoError(t, err)
	assert.Equal(t, shopID, balance.ShopID)
	assert.True(t, balance.AvailableBalance.IsZero())
}

func TestReportingRequired(t *testing.T) {
	cases := []struct {
		gross string
		count int
		want  bool
	}{
		{"19999.99", 199, false},
		{"20000", 0, true},
		{"0", 200, true},
		{"25000", 500, true},
	}
	for _, tc := range cases {
		if got := ReportingRequired(dec(tc.gross), tc.count); got != tc.want {
			t.Fatalf("ReportingRequired(%s, %d) = %v, want %v", tc.gross, tc.count, got, tc.want)
		}
	}
}
