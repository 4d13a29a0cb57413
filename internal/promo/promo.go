package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

type Rule struct {
	Code   string
	Kind   Kind
	Value  decimal.Decimal
	Active bool
}

var hundred = decimal.NewFromInt(100)

// Apply returns total after the rule, never below zero. Inactive rules leave
// total untouched.
func (r Rule) Apply(total decimal.Decimal) decimal.Decimal {
	if !r.Active {
		return total
	}
	switch r.Kind {
	case KindPercentage:
		return money.NonNegative(money.Round(total.Mul(decimal.NewFromInt(1).Sub(r.Value.Div(hundred)))))
	case KindFixed:
		return money.NonNegative(money.Round(total.Sub(r.Value)))
	default:
		return total
	}
}

type Repo struct{ DB postgres.DBTX }

// Lookup resolves code. A blank or unknown code is ok=false with no error.
func (r *Repo) Lookup(ctx context.Context, code string) (Rule, bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Rule{}, false, nil
	}
	rule := Rule{Code: code}
	err := r.DB.QueryRow(ctx, `SELECT kind, value, is_active FROM promo_codes WHERE code = $1`, code).
		Scan(&rule.Kind, &rule.Value, &rule.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, false, nil
	}
	if err != nil {
		return Rule{}, false, fmt.Errorf("query promo code: %w", err)
	}
	return rule, true, nil
}
