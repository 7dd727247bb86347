// Package settlement turns one captured buyer payment into per-shop payments,
// donations and ledger movements inside a single transaction.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/internal/fees"
	"github.com/BenTyson/evercraft-sub001/internal/inventory"
	"github.com/BenTyson/evercraft-sub001/internal/ledger"
	"github.com/BenTyson/evercraft-sub001/internal/settlement/helpers"
	"github.com/BenTyson/evercraft-sub001/pkg/db"
	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/payloads"
	"github.com/BenTyson/evercraft-sub001/pkg/stripe"
	"github.com/BenTyson/evercraft-sub001/pkg/types"
)

const defaultPaymentLookupTimeout = 10 * time.Second

const (
	resultSettled               = "settled"
	resultPaymentNotCompleted   = "payment_not_completed"
	resultInsufficientInventory = "insufficient_inventory"
	resultFailed                = "failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PaymentVerifier reports the processor status of a buyer payment.
type PaymentVerifier interface {
	PaymentStatus(ctx context.Context, paymentIntentID string) (string, error)
}

type inventoryGuard interface {
	CheckAvailability(ctx context.Context, items []inventory.LineItem) ([]inventory.ResolvedItem, error)
	Decrement(ctx context.Context, tx *gorm.DB, items []inventory.ResolvedItem) error
}

type shopLoader interface {
	FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Shop, error)
	FindNonprofit(ctx context.Context, id uuid.UUID) (*models.Nonprofit, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type settlementObserver interface {
	ObserveSettlement(result string, duration time.Duration)
}

// Service executes order settlement.
type Service interface {
	Settle(ctx context.Context, input SettleInput) (*SettleResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// BuyerDonation is an optional buyer-funded gift added on top of the order.
type BuyerDonation struct {
	NonprofitID uuid.UUID
	Amount      decimal.Decimal
}

// SettleInput is everything settlement needs from checkout.
type SettleInput struct {
	BuyerID         uuid.UUID
	BuyerEmail      string
	PaymentIntentID string
	Items           []inventory.LineItem
	ShippingAddress types.Address
	ShippingCost    decimal.Decimal
	Tax             decimal.Decimal
	BuyerDonation   *BuyerDonation
}

// ShopResult is the per-shop outcome of a settlement.
type ShopResult struct {
	ShopID     uuid.UUID
	PaymentID  uuid.UUID
	DonationID *uuid.UUID
	Split      fees.Split
	TaxYear    *models.Seller1099Data
}

// SettleResult is returned after commit.
type SettleResult struct {
	Order *models.Order
	Shops []ShopResult
}

// Params wires the settlement service.
type Params struct {
	TxRunner             txRunner
	Repository           Repository
	Shops                shopLoader
	Inventory            inventoryGuard
	Splitter             *fees.Splitter
	Ledger               ledger.Service
	Payments             PaymentVerifier
	Outbox               outboxPublisher
	Metrics              settlementObserver
	Logger               *logger.Logger
	PaymentLookupTimeout time.Duration
}

type service struct {
	tx            txRunner
	repo          Repository
	shops         shopLoader
	inventory     inventoryGuard
	splitter      *fees.Splitter
	ledger        ledger.Service
	payments      PaymentVerifier
	outbox        outboxPublisher
	metrics       settlementObserver
	logg          *logger.Logger
	lookupTimeout time.Duration
	now           func() time.Time
	orderNumber   func(time.Time) string
}

// NewService builds the settlement service.
func NewService(params Params) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if params.Shops == nil {
		return nil, fmt.Errorf("shop loader required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory guard required")
	}
	if params.Splitter == nil {
		return nil, fmt.Errorf("fee splitter required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment verifier required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.PaymentLookupTimeout
	if timeout <= 0 {
		timeout = defaultPaymentLookupTimeout
	}
	return &service{
		tx:            params.TxRunner,
		repo:          params.Repository,
		shops:         params.Shops,
		inventory:     params.Inventory,
		splitter:      params.Splitter,
		ledger:        params.Ledger,
		payments:      params.Payments,
		outbox:        params.Outbox,
		metrics:       params.Metrics,
		logg:          params.Logger,
		lookupTimeout: timeout,
		now:           time.Now,
		orderNumber:   newOrderNumber,
	}, nil
}

// Settle verifies the payment, checks stock, then writes the order and every
// per-shop row in one transaction. Nothing is written when any step fails.
func (s *service) Settle(ctx context.Context, input SettleInput) (*SettleResult, error) {
	started := s.now()
	result, err := s.settle(ctx, input)
	if s.metrics != nil {
		s.metrics.ObserveSettlement(settlementResult(err), s.now().Sub(started))
	}
	return result, err
}

func (s *service) settle(ctx context.Context, input SettleInput) (*SettleResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"buyer_id":          input.BuyerID.String(),
		"payment_intent_id": input.PaymentIntentID,
	})

	if err := s.verifyPayment(ctx, input.PaymentIntentID); err != nil {
		return nil, err
	}

	resolved, err := s.inventory.CheckAvailability(ctx, input.Items)
	if err != nil {
		return nil, err
	}
	ledgers := helpers.GroupByShop(resolved)

	shops, err := s.shops.FindMany(ctx, helpers.ShopIDs(ledgers))
	if err != nil {
		return nil, persistence(err)
	}
	for _, l := range ledgers {
		if _, ok := shops[l.ShopID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found").
				WithDetails(map[string]any{"shop_id": l.ShopID.String()})
		}
	}

	buyerDonation := decimal.Zero
	if input.BuyerDonation != nil {
		if _, err := s.shops.FindNonprofit(ctx, input.BuyerDonation.NonprofitID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "nonprofit not found")
			}
			return nil, persistence(err)
		}
		buyerDonation = input.BuyerDonation.Amount
	}

	settledAt := s.now().UTC()
	subtotal := helpers.OrderSubtotal(ledgers)
	order := &models.Order{
		ID:                uuid.New(),
		OrderNumber:       s.orderNumber(settledAt),
		BuyerID:           input.BuyerID,
		Status:            enums.OrderStatusProcessing,
		Subtotal:          subtotal,
		ShippingCost:      input.ShippingCost,
		Tax:               input.Tax,
		BuyerDonation:     buyerDonation,
		Total:             subtotal.Add(input.ShippingCost).Add(input.Tax).Add(buyerDonation),
		NonprofitDonation: decimal.Zero,
		PaymentIntentID:   input.PaymentIntentID,
		PaymentStatus:     enums.PaymentStatusPaid,
		ShippingAddress:   input.ShippingAddress.Normalize(),
	}

	var shopResults []ShopResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already settled")
			}
			return persistence(err)
		}

		items := make([]models.OrderItem, 0, len(resolved))
		donated := decimal.Zero
		shopResults = make([]ShopResult, 0, len(ledgers))
		for _, l := range ledgers {
			shopResult, err := s.settleShop(ctx, tx, repo, order, shops[l.ShopID], l, settledAt)
			if err != nil {
				return err
			}
			donated = donated.Add(shopResult.Split.Donation)
			shopResults = append(shopResults, *shopResult)

			for _, item := range l.Items {
				items = append(items, models.OrderItem{
					OrderID:         order.ID,
					ProductID:       item.ProductID,
					VariantID:       item.VariantID,
					ShopID:          l.ShopID,
					Title:           item.Title,
					Quantity:        item.Quantity,
					PriceAtPurchase: item.UnitPrice,
					Subtotal:        item.Subtotal(),
					DonationAmount:  fees.ProRata(item.Subtotal(), l.Subtotal, shopResult.Split.Donation),
				})
			}
		}

		if err := repo.CreateItems(ctx, items); err != nil {
			return persistence(err)
		}
		if err := s.inventory.Decrement(ctx, tx, resolved); err != nil {
			return err
		}

		if err := repo.SetNonprofitDonation(ctx, order.ID, donated); err != nil {
			return persistence(err)
		}
		order.NonprofitDonation = donated
		order.Items = items

		if input.BuyerDonation != nil && buyerDonation.IsPositive() {
			buyerID := input.BuyerID
			if err := repo.CreateDonation(ctx, &models.Donation{
				NonprofitID: input.BuyerDonation.NonprofitID,
				OrderID:     order.ID,
				BuyerID:     &buyerID,
				Amount:      buyerDonation,
				DonorType:   enums.DonorTypeBuyerDirect,
				Status:      enums.DonationStatusPending,
			}); err != nil {
				return persistence(err)
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: "buyer"},
			Data:          orderSettledPayload(order, input.BuyerEmail, shopResults, settledAt),
			OccurredAt:    settledAt,
		})
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order settlement rolled back")
		return nil, persistence(err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"shop_count":   len(shopResults),
	}), "order settled")

	for _, r := range shopResults {
		order.Payments = append(order.Payments, models.Payment{
			ID:                r.PaymentID,
			OrderID:           order.ID,
			ShopID:            r.ShopID,
			Amount:            r.Split.Subtotal,
			PlatformFee:       r.Split.PlatformFee,
			SellerPayout:      r.Split.SellerPayout,
			NonprofitDonation: r.Split.Donation,
			Status:            enums.PaymentStatusPaid,
		})
	}
	return &SettleResult{Order: order, Shops: shopResults}, nil
}

func (s *service) settleShop(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, shop models.Shop, l *helpers.ShopLedger, settledAt time.Time) (*ShopResult, error) {
	// A shop without a nonprofit keeps its donation share.
	donationPercent := decimal.Zero
	if shop.NonprofitID != nil {
		donationPercent = shop.DonationPercentage
	}
	split, err := s.splitter.Split(l.Subtotal, donationPercent)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderID:           order.ID,
		ShopID:            shop.ID,
		Amount:            split.Subtotal,
		PlatformFee:       split.PlatformFee,
		SellerPayout:      split.SellerPayout,
		NonprofitDonation: split.Donation,
		Status:            enums.PaymentStatusPaid,
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return nil, persistence(err)
	}

	result := &ShopResult{ShopID: shop.ID, PaymentID: payment.ID, Split: split}

	if shop.NonprofitID != nil && split.Donation.IsPositive() {
		shopID := shop.ID
		donation := &models.Donation{
			NonprofitID: *shop.NonprofitID,
			ShopID:      &shopID,
			OrderID:     order.ID,
			Amount:      split.Donation,
			DonorType:   enums.DonorTypeSellerContribution,
			Status:      enums.DonationStatusPending,
		}
		if err := repo.CreateDonation(ctx, donation); err != nil {
			return nil, persistence(err)
		}
		result.DonationID = &donation.ID
	}

	taxYear, err := s.ledger.RecordSale(ctx, tx, ledger.SaleEntry{
		ShopID:       shop.ID,
		Gross:        split.Subtotal,
		SellerPayout: split.SellerPayout,
		SettledAt:    settledAt,
	})
	if err != nil {
		return nil, err
	}
	result.TaxYear = taxYear

	if split.SellerPayout.IsPositive() {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransferRequested,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.TransferRequestedEvent{
				OrderID:   order.ID,
				ShopID:    shop.ID,
				PaymentID: payment.ID,
				Amount:    split.SellerPayout,
			},
			OccurredAt: settledAt,
		}); err != nil {
			return nil, persistence(err)
		}
	}

	return result, nil
}

func (s *service) verifyPayment(ctx context.Context, paymentIntentID string) error {
	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	status, err := s.payments.PaymentStatus(lookupCtx, paymentIntentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment status lookup failed")
	}
	if !stripe.IsSucceeded(status) {
		return pkgerrors.New(pkgerrors.CodePaymentNotCompleted, "Payment not completed").
			WithDetails(map[string]any{"status": status})
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, persistence(err)
	}
	return order, nil
}

func validateInput(input SettleInput) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if strings.TrimSpace(input.PaymentIntentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	if input.ShippingCost.IsNegative() || input.Tax.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping and tax must not be negative")
	}
	if d := input.BuyerDonation; d != nil {
		if d.NonprofitID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "buyer donation requires a nonprofit")
		}
		if !d.Amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "buyer donation must be positive")
		}
	}
	return nil
}

func orderSettledPayload(order *models.Order, buyerEmail string, shops []ShopResult, settledAt time.Time) payloads.OrderSettledEvent {
	event := payloads.OrderSettledEvent{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		BuyerID:           order.BuyerID,
		BuyerEmail:        strings.TrimSpace(buyerEmail),
		Subtotal:          order.Subtotal,
		ShippingCost:      order.ShippingCost,
		Tax:               order.Tax,
		BuyerDonation:     order.BuyerDonation,
		Total:             order.Total,
		NonprofitDonation: order.NonprofitDonation,
		SettledAt:         settledAt,
		Shops:             make([]payloads.ShopSettlement, 0, len(shops)),
	}
	for _, item := range order.Items {
		event.ItemCount += item.Quantity
	}
	for _, shop := range shops {
		event.Shops = append(event.Shops, payloads.ShopSettlement{
			ShopID:       shop.ShopID,
			PaymentID:    shop.PaymentID,
			Subtotal:     shop.Split.Subtotal,
			PlatformFee:  shop.Split.PlatformFee,
			Donation:     shop.Split.Donation,
			SellerPayout: shop.Split.SellerPayout,
		})
	}
	return event
}

func persistence(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
}

func settlementResult(err error) string {
	switch {
	case err == nil:
		return resultSettled
	case pkgerrors.IsCode(err, pkgerrors.CodePaymentNotCompleted):
		return resultPaymentNotCompleted
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory):
		return resultInsufficientInventory
	default:
		return resultFailed
	}
}

func newOrderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("EC-%s-%s", at.UTC().Format("20060102"), suffix)
}
