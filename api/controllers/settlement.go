package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BenTyson/evercraft-sub001/api/middleware"
	"github.com/BenTyson/evercraft-sub001/api/responses"
	"github.com/BenTyson/evercraft-sub001/api/validators"
	"github.com/BenTyson/evercraft-sub001/internal/inventory"
	"github.com/BenTyson/evercraft-sub001/internal/settlement"
	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/types"
)

// SettleOrder turns a completed payment intent into an order, per-shop
// payments, ledger entries, and the outbox events that fan out from them.
func SettleOrder(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		buyerID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing"))
			return
		}

		var payload settleOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Settle(r.Context(), payload.toInput(buyerID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newSettleOrderResponse(result))
	}
}

// GetOrder returns an order to its buyer or to an admin.
func GetOrder(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		orderID, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		callerID, _ := middleware.UserUUIDFromContext(r.Context())
		if order.BuyerID != callerID && !middleware.IsAdmin(r.Context()) {
			// Other buyers see the same response as a missing order.
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type settleOrderRequest struct {
	PaymentIntentID string                `json:"payment_intent_id" validate:"required"`
	BuyerEmail      string                `json:"buyer_email" validate:"required,email"`
	Items           []settleItemRequest   `json:"items" validate:"required,min=1,dive"`
	ShippingAddress types.Address         `json:"shipping_address"`
	ShippingCost    decimal.Decimal       `json:"shipping_cost"`
	Tax             decimal.Decimal       `json:"tax"`
	BuyerDonation   *buyerDonationRequest `json:"buyer_donation,omitempty"`
}

type settleItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity" validate:"required,min=1"`
}

type buyerDonationRequest struct {
	NonprofitID uuid.UUID       `json:"nonprofit_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

func (p settleOrderRequest) toInput(buyerID uuid.UUID) settlement.SettleInput {
	items := make([]inventory.LineItem, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, inventory.LineItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	input := settlement.SettleInput{
		BuyerID:         buyerID,
		BuyerEmail:      strings.TrimSpace(p.BuyerEmail),
		PaymentIntentID: strings.TrimSpace(p.PaymentIntentID),
		Items:           items,
		ShippingAddress: p.ShippingAddress.Normalize(),
		ShippingCost:    p.ShippingCost,
		Tax:             p.Tax,
	}
	if p.BuyerDonation != nil {
		input.BuyerDonation = &settlement.BuyerDonation{
			NonprofitID: p.BuyerDonation.NonprofitID,
			Amount:      p.BuyerDonation.Amount,
		}
	}
	return input
}

type settleOrderResponse struct {
	Order orderResponse        `json:"order"`
	Shops []shopSettlementView `json:"shops"`
}

type shopSettlementView struct {
	ShopID       uuid.UUID       `json:"shop_id"`
	PaymentID    uuid.UUID       `json:"payment_id"`
	DonationID   *uuid.UUID      `json:"donation_id,omitempty"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	Donation     decimal.Decimal `json:"nonprofit_donation"`
	SellerPayout decimal.Decimal `json:"seller_payout"`
}

type orderResponse struct {
	ID                uuid.UUID           `json:"id"`
	OrderNumber       string              `json:"order_number"`
	BuyerID           uuid.UUID           `json:"buyer_id"`
	Status            enums.OrderStatus   `json:"status"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	Subtotal          decimal.Decimal     `json:"subtotal"`
	ShippingCost      decimal.Decimal     `json:"shipping_cost"`
	Tax               decimal.Decimal     `json:"tax"`
	BuyerDonation     decimal.Decimal     `json:"buyer_donation"`
	Total             decimal.Decimal     `json:"total"`
	NonprofitDonation decimal.Decimal     `json:"nonprofit_donation"`
	ShippingAddress   types.Address       `json:"shipping_address"`
	Items             []orderItemResponse `json:"items"`
	CreatedAt         time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ID              uuid.UUID       `json:"id"`
	ShopID          uuid.UUID       `json:"shop_id"`
	ProductID       uuid.UUID       `json:"product_id"`
	VariantID       *uuid.UUID      `json:"variant_id,omitempty"`
	Title           string          `json:"title"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
	Subtotal        decimal.Decimal `json:"subtotal"`
}

func newSettleOrderResponse(result *settlement.SettleResult) settleOrderResponse {
	resp := settleOrderResponse{
		Order: newOrderResponse(result.Order),
		Shops: make([]shopSettlementView, 0, len(result.Shops)),
	}
	for _, shop := range result.Shops {
		split := shop.Split.Rounded()
		resp.Shops = append(resp.Shops, shopSettlementView{
			ShopID:       shop.ShopID,
			PaymentID:    shop.PaymentID,
			DonationID:   shop.DonationID,
			Subtotal:     split.Subtotal,
			PlatformFee:  split.PlatformFee,
			Donation:     split.Donation,
			SellerPayout: split.SellerPayout,
		})
	}
	return resp
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		BuyerID:           order.BuyerID,
		Status:            order.Status,
		PaymentStatus:     order.PaymentStatus,
		Subtotal:          order.Subtotal,
		ShippingCost:      order.ShippingCost,
		Tax:               order.Tax,
		BuyerDonation:     order.BuyerDonation,
		Total:             order.Total,
		NonprofitDonation: order.NonprofitDonation,
		ShippingAddress:   order.ShippingAddress,
		Items:             make([]orderItemResponse, 0, len(order.Items)),
		CreatedAt:         order.CreatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:              item.ID,
			ShopID:          item.ShopID,
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			Title:           item.Title,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
			Subtotal:        item.Subtotal,
		})
	}
	return resp
}
