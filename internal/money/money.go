// Package money holds the rounding rules shared by cart, promo and checkout.
package money

import "github.com/shopspring/decimal"

// Places is the number of decimal places kept on every persisted amount.
const Places = 2

// Round rounds half away from zero to two places.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(Places) }

// LineTotal is unit × qty, rounded.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return Round(unit.Mul(decimal.NewFromInt(int64(qty))))
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
