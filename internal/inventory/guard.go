// Package inventory checks requested quantities against tracked stock and
// performs the guarded decrement used at settlement.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
)

// LineItem is one requested (product, optional variant, quantity) triple.
type LineItem struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// StockKey identifies the row that carries stock for a line item.
type StockKey struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
}

func (k StockKey) String() string {
	if k.VariantID != nil {
		return k.VariantID.String()
	}
	return k.ProductID.String()
}

func (k StockKey) mapKey() uuid.UUID {
	if k.VariantID != nil {
		return *k.VariantID
	}
	return k.ProductID
}

// ResolvedItem is a line item joined with the catalog data settlement needs.
type ResolvedItem struct {
	LineItem
	ShopID         uuid.UUID
	Title          string
	UnitPrice      decimal.Decimal
	TrackInventory bool
	Available      int
}

// Key returns the stock row backing the item.
func (i ResolvedItem) Key() StockKey {
	return StockKey{ProductID: i.ProductID, VariantID: i.VariantID}
}

// Subtotal is UnitPrice * Quantity.
func (i ResolvedItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// InsufficientDetail is attached to INSUFFICIENT_INVENTORY errors.
type InsufficientDetail struct {
	ProductTitle string `json:"product_title"`
	Available    int    `json:"available"`
	Requested    int    `json:"requested"`
}

type stockStore interface {
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	FindVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error)
	Decrement(ctx context.Context, key StockKey, qty int) (bool, error)
	CurrentQuantity(ctx context.Context, key StockKey) (int, error)
}

// Guard validates availability and applies guarded decrements.
type Guard struct {
	repo *Repository
}

// NewGuard wires the guard to its repository.
func NewGuard(repo *Repository) (*Guard, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &Guard{repo: repo}, nil
}

// CheckAvailability resolves each item to its variant or product and, when
// stock is tracked, requires enough units for the combined requested quantity.
// It never writes.
func (g *Guard) CheckAvailability(ctx context.Context, items []LineItem) ([]ResolvedItem, error) {
	return checkAvailability(ctx, g.repo, items)
}

// Decrement applies guarded decrements for items inside tx. A row that no
// longer holds enough units yields INSUFFICIENT_INVENTORY and the caller's
// transaction must roll back.
func (g *Guard) Decrement(ctx context.Context, tx *gorm.DB, items []ResolvedItem) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory decrement")
	}
	return decrement(ctx, g.repo.WithTx(tx), items)
}

func checkAvailability(ctx context.Context, store stockStore, items []LineItem) ([]ResolvedItem, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	productIDs := make([]uuid.UUID, 0, len(items))
	variantIDs := make([]uuid.UUID, 0)
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		productIDs = append(productIDs, item.ProductID)
		if item.VariantID != nil {
			variantIDs = append(variantIDs, *item.VariantID)
		}
	}

	products, err := store.FindProducts(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}
	variants, err := store.FindVariants(ctx, variantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
	}

	resolved := make([]ResolvedItem, 0, len(items))
	requested := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, notFound(item.ProductID)
		}

		ri := ResolvedItem{
			LineItem:       item,
			ShopID:         product.ShopID,
			Title:          product.Title,
			UnitPrice:      product.Price,
			TrackInventory: product.TrackInventory,
			Available:      product.InventoryQuantity,
		}

		if item.VariantID != nil {
			variant, ok := variants[*item.VariantID]
			if !ok || variant.ProductID != product.ID {
				return nil, notFound(*item.VariantID)
			}
			ri.Title = fmt.Sprintf("%s - %s", product.Title, variant.Name)
			if variant.Price != nil {
				ri.UnitPrice = *variant.Price
			}
			ri.TrackInventory = variant.TrackInventory
			ri.Available = variant.InventoryQuantity
		}

		key := ri.Key().mapKey()
		requested[key] += item.Quantity
		if ri.TrackInventory && ri.Available < requested[key] {
			return nil, insufficient(ri.Title, ri.Available, requested[key])
		}
		resolved = append(resolved, ri)
	}

	return resolved, nil
}

func decrement(ctx context.Context, store stockStore, items []ResolvedItem) error {
	for _, item := range items {
		if !item.TrackInventory {
			continue
		}
		ok, err := store.Decrement(ctx, item.Key(), item.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
		}
		if ok {
			continue
		}
		available, err := store.CurrentQuantity(ctx, item.Key())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, err.Error())
		}
		return insufficient(item.Title, available, item.Quantity)
	}
	return nil
}

func notFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
		WithDetails(map[string]any{"id": id.String()})
}

func insufficient(title string, available, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientInventory, fmt.Sprintf("Insufficient inventory for %s", title)).
		WithDetails(InsufficientDetail{ProductTitle: title, Available: available, Requested: requested})
}
