package notifications

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/consumer"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/payloads"
)

// ConsumerName scopes idempotency markers for the notification worker.
const ConsumerName = "notifications"

// HandledEvents are the settlement-topic events that produce notifications.
var HandledEvents = []enums.OutboxEventType{
	enums.EventOrderSettled,
	enums.EventPayoutPaid,
	enums.EventPayoutFailed,
	enums.EventTransferFailed,
}

type shopLoader interface {
	FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Shop, error)
}

// Handler turns settlement events into buyer email and shop notifications.
type Handler struct {
	repo   Repository
	shops  shopLoader
	sender Sender
	logg   *logger.Logger
}

func NewHandler(repo Repository, shops shopLoader, sender Sender, logg *logger.Logger) (*Handler, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if shops == nil {
		return nil, fmt.Errorf("shop loader required")
	}
	if sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Handler{repo: repo, shops: shops, sender: sender, logg: logg}, nil
}

// Handle never touches order state. A failed email send returns the error so
// the message is redelivered.
func (h *Handler) Handle(ctx context.Context, envelope consumer.Envelope) error {
	switch event := envelope.Payload.(type) {
	case *payloads.OrderSettledEvent:
		return h.orderSettled(ctx, event)
	case *payloads.PayoutPaidEvent:
		return h.repo.CreateMany(ctx, []models.Notification{{
			ShopID:  event.ShopID,
			Type:    enums.NotificationTypePayoutPaid,
			Title:   "Payout sent",
			Message: fmt.Sprintf("$%s has been paid out to your account.", event.Amount.StringFixed(2)),
			Link:    stringPtr(fmt.Sprintf("/shops/%s/financials", event.ShopID)),
		}})
	case *payloads.PayoutFailedEvent:
		return h.repo.CreateMany(ctx, []models.Notification{{
			ShopID:  event.ShopID,
			Type:    enums.NotificationTypePayoutFailed,
			Title:   "Payout failed",
			Message: fmt.Sprintf("Your $%s payout failed: %s. The payments will be included in the next payout.", event.Amount.StringFixed(2), event.Reason),
			Link:    stringPtr(fmt.Sprintf("/shops/%s/financials", event.ShopID)),
		}})
	case *payloads.TransferFailedEvent:
		return h.repo.CreateMany(ctx, []models.Notification{{
			ShopID:  event.ShopID,
			Type:    enums.NotificationTypeTransferFailed,
			Title:   "Transfer failed",
			Message: fmt.Sprintf("We could not transfer $%s for a recent order: %s.", event.Amount.StringFixed(2), event.Reason),
			Link:    stringPtr(fmt.Sprintf("/shops/%s/transactions", event.ShopID)),
		}})
	default:
		h.logg.Debug(h.logg.WithField(ctx, "event_type", string(envelope.EventType)), "event not handled")
		return nil
	}
}

func (h *Handler) orderSettled(ctx context.Context, event *payloads.OrderSettledEvent) error {
	ctx = h.logg.WithFields(ctx, map[string]any{
		"order_id":     event.OrderID.String(),
		"order_number": event.OrderNumber,
	})

	ids := make([]uuid.UUID, 0, len(event.Shops))
	for _, s := range event.Shops {
		ids = append(ids, s.ShopID)
	}
	shops, err := h.shops.FindMany(ctx, ids)
	if err != nil {
		return err
	}

	if event.BuyerEmail != "" {
		email, err := RenderOrderConfirmation(event.BuyerEmail, confirmationData(event, shops))
		if err != nil {
			return err
		}
		if err := h.sender.Send(ctx, email); err != nil {
			h.logg.Error(ctx, "order confirmation email failed", err)
			return err
		}
	}

	rows := make([]models.Notification, 0, len(event.Shops))
	for _, s := range event.Shops {
		rows = append(rows, models.Notification{
			ShopID: s.ShopID,
			Type:   enums.NotificationTypeOrderReceived,
			Title:  "New order " + event.OrderNumber,
			Message: fmt.Sprintf("You sold $%s. Your payout is $%s after a $%s platform fee and $%s donation.",
				s.Subtotal.StringFixed(2), s.SellerPayout.StringFixed(2), s.PlatformFee.StringFixed(2), s.Donation.StringFixed(2)),
			Link: stringPtr(fmt.Sprintf("/shops/%s/transactions", s.ShopID)),
		})
	}
	if err := h.repo.CreateMany(ctx, rows); err != nil {
		return err
	}
	h.logg.Info(h.logg.WithField(ctx, "shop_count", len(rows)), "order notifications sent")
	return nil
}

func confirmationData(event *payloads.OrderSettledEvent, shops map[uuid.UUID]models.Shop) OrderConfirmation {
	names := make([]string, 0, len(event.Shops))
	for _, s := range event.Shops {
		if shop, ok := shops[s.ShopID]; ok {
			names = append(names, shop.Name)
		}
	}
	sort.Strings(names)

	data := OrderConfirmation{
		OrderNumber: event.OrderNumber,
		ItemCount:   event.ItemCount,
		Shops:       names,
		Subtotal:    event.Subtotal.StringFixed(2),
		Shipping:    event.ShippingCost.StringFixed(2),
		Tax:         event.Tax.StringFixed(2),
		Total:       event.Total.StringFixed(2),
		OrderDate:   event.SettledAt.UTC().Format("January 2, 2006"),
	}
	if event.BuyerDonation.IsPositive() {
		data.BuyerDonation = event.BuyerDonation.StringFixed(2)
	}
	if event.NonprofitDonation.IsPositive() {
		data.Donated = event.NonprofitDonation.StringFixed(2)
	}
	return data
}

func stringPtr(value string) *string {
	return &value
}
