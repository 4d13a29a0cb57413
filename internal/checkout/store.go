package checkout

import (
	"context"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/ariefcatur/go-shop-checkout/internal/promo"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Tx is everything checkout and settlement do inside one transaction.
type Tx interface {
	UserCartID(ctx context.Context, userID int64) (int64, error)
	CartLines(ctx context.Context, cartID int64) ([]cart.Line, error)
	ClearCart(ctx context.Context, cartID int64) error
	Promotion(ctx context.Context, code string) (promo.Rule, bool, error)

	CreateOrder(ctx context.Context, o orders.NewOrder) (int64, error)
	InsertLine(ctx context.Context, orderID int64, l orders.Line) error
	DecrementStock(ctx context.Context, variationID int64, qty int) error
	InsertPendingPayment(ctx context.Context, orderID int64, amount decimal.Decimal, provider string) error
	InsertValidatedPayment(ctx context.Context, orderID int64, amount decimal.Decimal, provider, ref string) error
	GetOrderForUpdate(ctx context.Context, orderID int64) (*orders.Order, error)
	SetOrderStatus(ctx context.Context, orderID int64, s orders.Status) error
}

// Store runs fn as one all-or-nothing unit: fn returning an error rolls back
// every write fn made.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type PGStore struct{ Pool *pgxpool.Pool }

func (s *PGStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return postgres.InTx(ctx, s.Pool, func(tx pgx.Tx) error {
		return fn(&pgTx{
			Repo:   &orders.Repo{DB: tx},
			carts:  &cart.Repo{DB: tx},
			promos: &promo.Repo{DB: tx},
		})
	})
}

type pgTx struct {
	*orders.Repo
	carts  *cart.Repo
	promos *promo.Repo
}

func (t *pgTx) UserCartID(ctx context.Context, userID int64) (int64, error) {
	return t.carts.UserCartID(ctx, userID)
}

func (t *pgTx) CartLines(ctx context.Context, cartID int64) ([]cart.Line, error) {
	return t.carts.Lines(ctx, cartID)
}

func (t *pgTx) ClearCart(ctx context.Context, cartID int64) error {
	return t.carts.Clear(ctx, cartID)
}

func (t *pgTx) Promotion(ctx context.Context, code string) (promo.Rule, bool, error) {
	return t.promos.Lookup(ctx, code)
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, orderID int64) (*orders.Order, error) {
	return t.Repo.GetForUpdate(ctx, orderID)
}

func (t *pgTx) SetOrderStatus(ctx context.Context, orderID int64, s orders.Status) error {
	return t.Repo.SetStatus(ctx, orderID, s)
}
