package cart

import (
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const MaxQuantity = 999

// Line is one cart line joined with the live variation and product rows.
type Line struct {
	VariationID    int64
	ProductID      int64
	ProductName    string
	VariationLabel string
	Quantity       int
	UnitPrice      decimal.Decimal
	Stock          int
}

type Item struct {
	VariationID int64
	ProductID   int64
	ProductName string
	SKU         string
	Size        string
	Color       string
	Stock       int
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

type Snapshot struct {
	CartID      int64
	Items       []Item
	CountItems  int
	TotalQty    int
	TotalAmount decimal.Decimal
}

func newSnapshot(cartID int64, items []Item) Snapshot {
	s := Snapshot{CartID: cartID, Items: items, CountItems: len(items), TotalAmount: decimal.Zero}
	for _, it := range items {
		s.TotalQty += it.Quantity
		s.TotalAmount = s.TotalAmount.Add(it.LineTotal)
	}
	s.TotalAmount = money.Round(s.TotalAmount)
	return s
}

// AddQuantity is the quantity an add-to-cart request contributes: at least 1.
func AddQuantity(qty int) int {
	return max(1, qty)
}

// CapQuantity bounds a stored quantity to MaxQuantity.
func CapQuantity(qty int) int {
	return min(MaxQuantity, qty)
}

func variationLabel(size, color string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{size, color} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " / ")
}

// NewGuestToken returns the 32 hex character token that identifies a guest cart.
func NewGuestToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
