package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Repo is the Order Writer plus the order read queries. DB is a pool for reads
// and a pgx.Tx for the writer primitives; none of the writer methods check
// business rules beyond what their SQL guards.
type Repo struct{ DB postgres.DBTX }

func (r *Repo) CreateOrder(ctx context.Context, o NewOrder) (int64, error) {
	var id int64
	err := r.DB.QueryRow(ctx, `
		INSERT INTO orders (
		  user_id, cart_id, status, total, currency,
		  shipping_first_name, shipping_last_name, shipping_phone, shipping_address1, shipping_address2,
		  shipping_postal_code, shipping_city, shipping_country,
		  billing_first_name, billing_last_name, billing_phone, billing_address1, billing_address2,
		  billing_postal_code, billing_city, billing_country
		) VALUES (
		  $1, $2, $3, $4, $5,
		  $6, $7, $8, $9, $10, $11, $12, $13,
		  $14, $15, $16, $17, $18, $19, $20, $21
		) RETURNING id`,
		o.UserID, o.CartID, StatusPending, money.Round(o.Total), o.Currency,
		o.Shipping.FirstName, o.Shipping.LastName, nullable(o.Shipping.Phone), o.Shipping.Address1, nullable(o.Shipping.Address2),
		o.Shipping.PostalCode, o.Shipping.City, o.Shipping.Country,
		o.Billing.FirstName, o.Billing.LastName, nullable(o.Billing.Phone), o.Billing.Address1, nullable(o.Billing.Address2),
		o.Billing.PostalCode, o.Billing.City, o.Billing.Country,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

func (r *Repo) InsertLine(ctx context.Context, orderID int64, l Line) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_lines (order_id, product_id, variation_id, product_name, variation_label, unit_price, quantity, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		orderID, l.ProductID, l.VariationID, l.ProductName, nullable(l.VariationLabel),
		l.UnitPrice, l.Quantity, money.LineTotal(l.UnitPrice, l.Quantity),
	)
	if err != nil {
		return fmt.Errorf("insert order line (variation %d): %w", l.VariationID, err)
	}
	return nil
}

// DecrementStock never lets stock go negative: the update only matches while
// enough stock remains, and zero matched rows reports ErrInsufficientStock.
func (r *Repo) DecrementStock(ctx context.Context, variationID int64, qty int) error {
	ct, err := r.DB.Exec(ctx, `UPDATE variations SET stock = stock - $2 WHERE id = $1 AND stock >= $2`, variationID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock (variation %d): %w", variationID, err)
	}
	if ct.RowsAffected() != 1 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *Repo) InsertPendingPayment(ctx context.Context, orderID int64, amount decimal.Decimal, provider string) error {
	return r.insertPayment(ctx, orderID, amount, PaymentPending, provider, "")
}

func (r *Repo) InsertValidatedPayment(ctx context.Context, orderID int64, amount decimal.Decimal, provider, ref string) error {
	return r.insertPayment(ctx, orderID, amount, PaymentValidated, provider, ref)
}

func (r *Repo) insertPayment(ctx context.Context, orderID int64, amount decimal.Decimal, status PaymentStatus, provider, ref string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments (order_id, amount, method, status, provider, transaction_ref)
		VALUES ($1, $2, 'card', $3, $4, $5)`,
		orderID, money.Round(amount), status, provider, nullable(ref),
	)
	if err != nil {
		return fmt.Errorf("insert %s payment: %w", status, err)
	}
	return nil
}

func (r *Repo) SetStatus(ctx context.Context, orderID int64, s Status) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, s)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const orderColumns = `
	id, user_id, COALESCE(cart_id, 0), status, total, currency,
	shipping_first_name, shipping_last_name, COALESCE(shipping_phone, ''), shipping_address1, COALESCE(shipping_address2, ''),
	shipping_postal_code, shipping_city, shipping_country,
	billing_first_name, billing_last_name, COALESCE(billing_phone, ''), billing_address1, COALESCE(billing_address2, ''),
	billing_postal_code, billing_city, billing_country,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	s, b := &o.Shipping, &o.Billing
	err := row.Scan(
		&o.ID, &o.UserID, &o.CartID, &o.Status, &o.Total, &o.Currency,
		&s.FirstName, &s.LastName, &s.Phone, &s.Address1, &s.Address2, &s.PostalCode, &s.City, &s.Country,
		&b.FirstName, &b.LastName, &b.Phone, &b.Address1, &b.Address2, &b.PostalCode, &b.City, &b.Country,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

func (r *Repo) Get(ctx context.Context, orderID int64) (*Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
}

// GetForUpdate locks the order row until the surrounding transaction ends.
func (r *Repo) GetForUpdate(ctx context.Context, orderID int64) (*Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
}

func (r *Repo) ListForUser(ctx context.Context, userID int64) ([]Summary, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, status, total, currency, created_at
		FROM orders WHERE user_id = $1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Status, &s.Total, &s.Currency, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) Lines(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, variation_id, product_name, COALESCE(variation_label, ''),
		       unit_price, quantity, line_total
		FROM order_lines WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	out := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.VariationID, &l.ProductName, &l.VariationLabel,
			&l.UnitPrice, &l.Quantity, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) Payments(ctx context.Context, orderID int64) ([]Payment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, amount, method, status, provider, COALESCE(transaction_ref, ''), created_at
		FROM payments WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.Provider, &p.TransactionRef, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
