package helpers

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BenTyson/evercraft-sub001/internal/inventory"
)

// ShopLedger accumulates one shop's slice of an order.
type ShopLedger struct {
	ShopID   uuid.UUID
	Items    []inventory.ResolvedItem
	Subtotal decimal.Decimal
	Quantity int
}

// Add appends an item and grows the running totals.
func (l *ShopLedger) Add(item inventory.ResolvedItem) {
	l.Items = append(l.Items, item)
	l.Subtotal = l.Subtotal.Add(item.Subtotal())
	l.Quantity += item.Quantity
}

// GroupByShop builds one ledger per shop. The result is sorted by shop id so
// every settlement touches balance rows in the same order.
func GroupByShop(items []inventory.ResolvedItem) []*ShopLedger {
	byShop := make(map[uuid.UUID]*ShopLedger)
	for _, item := range items {
		ledger, ok := byShop[item.ShopID]
		if !ok {
			ledger = &ShopLedger{ShopID: item.ShopID, Subtotal: decimal.Zero}
			byShop[item.ShopID] = ledger
		}
		ledger.Add(item)
	}

	out := make([]*ShopLedger, 0, len(byShop))
	for _, ledger := range byShop {
		out = append(out, ledger)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ShopID[:], out[j].ShopID[:]) < 0
	})
	return out
}

// ShopIDs lists the ledgers' shop ids in ledger order.
func ShopIDs(ledgers []*ShopLedger) []uuid.UUID {
	ids := make([]uuid.UUID, len(ledgers))
	for i, ledger := range ledgers {
		ids[i] = ledger.ShopID
	}
	return ids
}

// OrderSubtotal sums every ledger subtotal.
func OrderSubtotal(ledgers []*ShopLedger) decimal.Decimal {
	total := decimal.Zero
	for _, ledger := range ledgers {
		total = total.Add(ledger.Subtotal)
	}
	return total
}
