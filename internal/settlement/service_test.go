package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/internal/fees"
	"github.com/BenTyson/evercraft-sub001/internal/inventory"
	"github.com/BenTyson/evercraft-sub001/internal/ledger"
	"github.com/BenTyson/evercraft-sub001/internal/shops"
	"github.com/BenTyson/evercraft-sub001/pkg/db"
	"github.com/BenTyson/evercraft-sub001/pkg/db/dbtest"
	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox"
	"github.com/BenTyson/evercraft-sub001/pkg/types"
)

type stubVerifier struct {
	mu       sync.Mutex
	statuses map[string]string
	err      error
}

func (v *stubVerifier) PaymentStatus(_ context.Context, id string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return "", v.err
	}
	if status, ok := v.statuses[id]; ok {
		return status, nil
	}
	return "succeeded", nil
}

type recordingObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *recordingObserver) ObserveSettlement(result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

type fixture struct {
	conn      *gorm.DB
	svc       Service
	verifier  *stubVerifier
	observer  *recordingObserver
	nonprofit models.Nonprofit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "settlement-test", Output: io.Discard})

	guard, err := inventory.NewGuard(inventory.NewRepository(conn))
	require.NoError(t, err)
	splitter, err := fees.NewSplitter(decimal.RequireFromString("0.065"))
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)

	f := &fixture{
		conn:     conn,
		verifier: &stubVerifier{statuses: map[string]string{}},
		observer: &recordingObserver{},
	}
	svc, err := NewService(Params{
		TxRunner:   db.NewFromConn(conn),
		Repository: NewRepository(conn),
		Shops:      shops.NewRepository(conn),
		Inventory:  guard,
		Splitter:   splitter,
		Ledger:     ledgerSvc,
		Payments:   f.verifier,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:    f.observer,
		Logger:     logg,
	})
	require.NoError(t, err)
	f.svc = svc

	f.nonprofit = models.Nonprofit{Name: "River Trust", EIN: "12-3456789", IsActive: true}
	require.NoError(t, conn.Create(&f.nonprofit).Error)
	return f
}

func (f *fixture) shop(t *testing.T, donationPercent string, withNonprofit bool) models.Shop {
	t.Helper()
	shop := models.Shop{
		OwnerUserID:        uuid.New(),
		Name:               "shop-" + uuid.NewString()[:6],
		Email:              "seller@example.test",
		DonationPercentage: decimal.RequireFromString(donationPercent),
	}
	if withNonprofit {
		shop.NonprofitID = &f.nonprofit.ID
	}
	require.NoError(t, f.conn.Create(&shop).Error)
	return shop
}

func (f *fixture) product(t *testing.T, shopID uuid.UUID, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		ShopID:            shopID,
		Title:             "Beeswax Candle",
		Price:             decimal.RequireFromString(price),
		TrackInventory:    true,
		InventoryQuantity: stock,
	}
	require.NoError(t, f.conn.Create(&product).Error)
	return product
}

func (f *fixture) count(t *testing.T, model any, where ...any) int64 {
	t.Helper()
	var n int64
	q := f.conn.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func settleInput(paymentIntent string, items ...inventory.LineItem) SettleInput {
	return SettleInput{
		BuyerID:         uuid.New(),
		BuyerEmail:      "buyer@example.test",
		PaymentIntentID: paymentIntent,
		Items:           items,
		ShippingAddress: types.Address{Name: "Ada", Line1: "1 Elm", City: "Boise", State: "ID", PostalCode: "83702"},
		ShippingCost:    decimal.RequireFromString("5.00"),
		Tax:             decimal.RequireFromString("2.00"),
	}
}

func TestSettleSingleShopScenario(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "5", true)
	product := f.product(t, shop.ID, "100.00", 3)

	res, err := f.svc.Settle(context.Background(), settleInput("pi_single", inventory.LineItem{ProductID: product.ID, Quantity: 1}))
	require.NoError(t, err)

	require.Len(t, res.Shops, 1)
	split := res.Shops[0].Split
	require.True(t, split.PlatformFee.Equal(decimal.RequireFromString("6.5")), split.PlatformFee.String())
	require.True(t, split.Donation.Equal(decimal.RequireFromString("5")), split.Donation.String())
	require.True(t, split.SellerPayout.Equal(decimal.RequireFromString("88.5")), split.SellerPayout.String())

	order := res.Order
	require.Equal(t, enums.OrderStatusProcessing, order.Status)
	require.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
	require.True(t, order.Total.Equal(decimal.RequireFromString("107")))
	require.True(t, order.NonprofitDonation.Equal(decimal.RequireFromString("5")))
	require.Len(t, order.Items, 1)
	require.True(t, order.Items[0].DonationAmount.Equal(decimal.RequireFromString("5")))

	var balance models.SellerBalance
	require.NoError(t, f.conn.First(&balance, "shop_id = ?", shop.ID).Error)
	require.True(t, balance.AvailableBalance.Equal(decimal.RequireFromString("88.5")))
	require.True(t, balance.TotalEarned.Equal(decimal.RequireFromString("88.5")))

	var taxYear models.Seller1099Data
	require.NoError(t, f.conn.First(&taxYear, "shop_id = ?", shop.ID).Error)
	require.True(t, taxYear.GrossPayments.Equal(decimal.RequireFromString("100")))
	require.Equal(t, 1, taxYear.TransactionCount)
	require.False(t, taxYear.ReportingRequired)

	var donation models.Donation
	require.NoError(t, f.conn.First(&donation, "order_id = ?", order.ID).Error)
	require.Equal(t, enums.DonorTypeSellerContribution, donation.DonorType)
	require.Equal(t, enums.DonationStatusPending, donation.Status)

	var stocked models.Product
	require.NoError(t, f.conn.First(&stocked, "id = ?", product.ID).Error)
	require.Equal(t, 2, stocked.InventoryQuantity)

	require.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventTransferRequested))
	require.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderSettled))
	require.Equal(t, []string{resultSettled}, f.observer.results)
}

func TestSettleMultiShopSplitsSumToSubtotal(t *testing.T) {
	f := newFixture(t)
	shopA := f.shop(t, "10", true)
	shopB := f.shop(t, "2.5", false)
	productA := f.product(t, shopA.ID, "33.33", 10)
	productB := f.product(t, shopB.ID, "19.99", 10)

	res, err := f.svc.Settle(context.Background(), settleInput("pi_multi",
		inventory.LineItem{ProductID: productA.ID, Quantity: 3},
		inventory.LineItem{ProductID: productB.ID, Quantity: 2},
	))
	require.NoError(t, err)
	require.Len(t, res.Shops, 2)

	total := decimal.Zero
	donated := decimal.Zero
	for _, shop := range res.Shops {
		total = total.Add(shop.Split.Total())
		donated = donated.Add(shop.Split.Donation)
	}
	tolerance := decimal.RequireFromString("0.02")
	require.True(t, total.Sub(res.Order.Subtotal).Abs().LessThanOrEqual(tolerance))
	require.True(t, donated.Equal(res.Order.NonprofitDonation))

	// shopB has no nonprofit, so no donation obligation is recorded for it.
	require.EqualValues(t, 1, f.count(t, &models.Donation{}))
	require.EqualValues(t, 2, f.count(t, &models.Payment{}, "order_id = ?", res.Order.ID))
}

func TestSettlePaymentNotCompletedWritesNothing(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "5", true)
	product := f.product(t, shop.ID, "100.00", 3)
	f.verifier.statuses["pi_pending"] = "processing"

	_, err := f.svc.Settle(context.Background(), settleInput("pi_pending", inventory.LineItem{ProductID: product.ID, Quantity: 1}))
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentNotCompleted))
	require.Equal(t, "Payment not completed", pkgerrors.As(err).Message())

	require.Zero(t, f.count(t, &models.Order{}))
	require.Zero(t, f.count(t, &models.Payment{}))
	require.Zero(t, f.count(t, &models.SellerBalance{}))
	require.Zero(t, f.count(t, &models.OutboxEvent{}))
	require.Equal(t, []string{resultPaymentNotCompleted}, f.observer.results)
}

func TestSettleProcessorLookupFailureIsDependencyError(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "0", false)
	product := f.product(t, shop.ID, "10.00", 3)
	f.verifier.err = errors.New("timeout")

	_, err := f.svc.Settle(context.Background(), settleInput("pi_x", inventory.LineItem{ProductID: product.ID, Quantity: 1}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Zero(t, f.count(t, &models.Order{}))
}

func TestSettleInsufficientInventoryRollsBack(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "5", true)
	product := f.product(t, shop.ID, "12.00", 1)

	_, err := f.svc.Settle(context.Background(), settleInput("pi_short", inventory.LineItem{ProductID: product.ID, Quantity: 2}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory))
	detail, ok := pkgerrors.As(err).Details().(inventory.InsufficientDetail)
	require.True(t, ok)
	require.Equal(t, 1, detail.Available)
	require.Equal(t, 2, detail.Requested)
	require.Zero(t, f.count(t, &models.Order{}))
}

func TestSettleUnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Settle(context.Background(), settleInput("pi_missing", inventory.LineItem{ProductID: uuid.New(), Quantity: 1}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSettleBuyerDonationCountsTowardTotal(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "0", false)
	product := f.product(t, shop.ID, "40.00", 2)

	input := settleInput("pi_gift", inventory.LineItem{ProductID: product.ID, Quantity: 1})
	input.BuyerDonation = &BuyerDonation{NonprofitID: f.nonprofit.ID, Amount: decimal.RequireFromString("3.00")}

	res, err := f.svc.Settle(context.Background(), input)
	require.NoError(t, err)
	require.True(t, res.Order.Total.Equal(decimal.RequireFromString("50")), res.Order.Total.String())

	var donation models.Donation
	require.NoError(t, f.conn.First(&donation, "order_id = ?", res.Order.ID).Error)
	require.Equal(t, enums.DonorTypeBuyerDirect, donation.DonorType)
	require.Nil(t, donation.ShopID)
	require.NotNil(t, donation.BuyerID)
}

func TestSettleRejectsReusedPaymentIntent(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "0", false)
	product := f.product(t, shop.ID, "10.00", 5)

	_, err := f.svc.Settle(context.Background(), settleInput("pi_dup", inventory.LineItem{ProductID: product.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.Settle(context.Background(), settleInput("pi_dup", inventory.LineItem{ProductID: product.ID, Quantity: 1}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.EqualValues(t, 1, f.count(t, &models.Order{}))

	var stocked models.Product
	require.NoError(t, f.conn.First(&stocked, "id = ?", product.ID).Error)
	require.Equal(t, 4, stocked.InventoryQuantity)
}

func TestSettleConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "5", true)
	product := f.product(t, shop.ID, "20.00", 3)

	const buyers = 6
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Settle(context.Background(), settleInput(fmt.Sprintf("pi_race_%d", i), inventory.LineItem{ProductID: product.ID, Quantity: 1}))
		}(i)
	}
	wg.Wait()

	settled := 0
	for _, err := range errs {
		if err == nil {
			settled++
			continue
		}
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory), err.Error())
	}
	require.Equal(t, 3, settled)

	var stocked models.Product
	require.NoError(t, f.conn.First(&stocked, "id = ?", product.ID).Error)
	require.Equal(t, 0, stocked.InventoryQuantity)
	require.EqualValues(t, 3, f.count(t, &models.Order{}))
}

func TestSettleValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]SettleInput{
		"missing buyer":   {PaymentIntentID: "pi", Items: []inventory.LineItem{{ProductID: uuid.New(), Quantity: 1}}},
		"missing payment": {BuyerID: uuid.New(), Items: []inventory.LineItem{{ProductID: uuid.New(), Quantity: 1}}},
		"no items":        {BuyerID: uuid.New(), PaymentIntentID: "pi"},
		"negative tax": {
			BuyerID: uuid.New(), PaymentIntentID: "pi",
			Items: []inventory.LineItem{{ProductID: uuid.New(), Quantity: 1}},
			Tax:   decimal.NewFromInt(-1),
		},
	}
	for name, input := range cases {
		_, err := f.svc.Settle(context.Background(), input)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}
}

func TestNewOrderNumberFormat(t *testing.T) {
	number := newOrderNumber(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	require.Regexp(t, `^EC-20260301-[0-9A-F]{8}$`, number)
}

func TestSettleDatabaseFailureSurfacesDriverMessage(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "5", true)
	product := f.product(t, shop.ID, "25.00", 3)
	require.NoError(t, f.conn.Migrator().DropTable(&models.SellerBalance{}))

	_, err := f.svc.Settle(context.Background(), settleInput("pi_nodb", inventory.LineItem{ProductID: product.ID, Quantity: 1}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistence), err)
	require.Contains(t, pkgerrors.As(err).Message(), "seller_balances")
	require.Zero(t, f.count(t, &models.Order{}))
	require.Zero(t, f.count(t, &models.Payment{}))

	var stock models.Product
	require.NoError(t, f.conn.First(&stock, "id = ?", product.ID).Error)
	require.Equal(t, 3, stock.InventoryQuantity)
}

func TestSettleOutboxFailureIsPersistenceError(t *testing.T) {
	f := newFixture(t)
	shop := f.shop(t, "0", false)
	product := f.product(t, shop.ID, "10.00", 1)
	require.NoError(t, f.conn.Migrator().DropTable(&models.OutboxEvent{}))

	_, err := f.svc.Settle(context.Background(), settleInput("pi_nooutbox", inventory.LineItem{ProductID: product.ID, Quantity: 1}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistence), err)
	require.Contains(t, pkgerrors.As(err).Message(), "outbox_events")
	require.Zero(t, f.count(t, &models.Order{}))
}
