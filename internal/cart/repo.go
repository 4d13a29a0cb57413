package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNoCart           = errors.New("cart not found")
	ErrUnknownVariation = errors.New("variation not found")
)

type Repo struct{ DB postgres.DBTX }

// UserCartID resolves the user's current cart: the most recently updated one.
func (r *Repo) UserCartID(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.DB.QueryRow(ctx, `
		SELECT id FROM carts WHERE user_id = $1
		ORDER BY updated_at DESC, id DESC LIMIT 1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoCart
	}
	if err != nil {
		return 0, fmt.Errorf("query user cart: %w", err)
	}
	return id, nil
}

// Lines returns what checkout needs for each line: quantity, live price and live stock.
func (r *Repo) Lines(ctx context.Context, cartID int64) ([]Line, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT cl.variation_id, cl.quantity, v.stock,
		       COALESCE(v.price, p.price) AS unit_price,
		       p.id, p.name, COALESCE(v.size, ''), COALESCE(v.color, '')
		FROM cart_lines cl
		JOIN variations v ON v.id = cl.variation_id
		JOIN products p   ON p.id = v.product_id
		WHERE cl.cart_id = $1
		ORDER BY cl.variation_id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		var size, color string
		if err := rows.Scan(&l.VariationID, &l.Quantity, &l.Stock, &l.UnitPrice,
			&l.ProductID, &l.ProductName, &size, &color); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		l.VariationLabel = variationLabel(size, color)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Clear deletes every line; the cart row itself stays.
func (r *Repo) Clear(ctx context.Context, cartID int64) error {
	if _, err := r.DB.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return r.touch(ctx, cartID)
}

// EnsureForUser returns the user's current cart, creating one if needed.
func (r *Repo) EnsureForUser(ctx context.Context, userID int64) (int64, error) {
	id, err := r.UserCartID(ctx, userID)
	if !errors.Is(err, ErrNoCart) {
		return id, err
	}
	if err := r.DB.QueryRow(ctx, `INSERT INTO carts (user_id) VALUES ($1) RETURNING id`, userID).Scan(&id); err != nil {
		return 0, fmt.Errorf("create user cart: %w", err)
	}
	return id, nil
}

// EnsureForToken returns the guest cart behind token. An empty or unknown token
// gets a fresh cart and a fresh token; created reports that case.
func (r *Repo) EnsureForToken(ctx context.Context, token string) (id int64, tok string, created bool, err error) {
	if token != "" {
		err = r.DB.QueryRow(ctx, `SELECT id FROM carts WHERE token = $1`, token).Scan(&id)
		if err == nil {
			return id, token, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, "", false, fmt.Errorf("query guest cart: %w", err)
		}
	}
	tok = NewGuestToken()
	if err = r.DB.QueryRow(ctx, `INSERT INTO carts (token) VALUES ($1) RETURNING id`, tok).Scan(&id); err != nil {
		return 0, "", false, fmt.Errorf("create guest cart: %w", err)
	}
	return id, tok, true, nil
}

// AddItem adds qty to the line of variationID (creating it), capped at MaxQuantity.
func (r *Repo) AddItem(ctx context.Context, cartID, variationID int64, qty int) error {
	if err := r.checkVariation(ctx, variationID); err != nil {
		return err
	}

	_, err := r.DB.Exec(ctx, `
		INSERT INTO cart_lines (cart_id, variation_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, variation_id)
		DO UPDATE SET quantity = LEAST(cart_lines.quantity + EXCLUDED.quantity, $4)`,
		cartID, variationID, CapQuantity(AddQuantity(qty)), MaxQuantity)
	if err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	return r.touch(ctx, cartID)
}

// checkVariation rejects unknown and inactive variations.
func (r *Repo) checkVariation(ctx context.Context, variationID int64) error {
	var active bool
	err := r.DB.QueryRow(ctx, `SELECT is_active FROM variations WHERE id = $1`, variationID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
		return ErrUnknownVariation
	}
	if err != nil {
		return fmt.Errorf("query variation: %w", err)
	}
	return nil
}

// SetQuantity fixes the quantity of a line; qty <= 0 removes it.
func (r *Repo) SetQuantity(ctx context.Context, cartID, variationID int64, qty int) error {
	if qty <= 0 {
		return r.RemoveItem(ctx, cartID, variationID)
	}
	if err := r.checkVariation(ctx, variationID); err != nil {
		return err
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO cart_lines (cart_id, variation_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, variation_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		cartID, variationID, CapQuantity(qty))
	if err != nil {
		return fmt.Errorf("set cart line quantity: %w", err)
	}
	return r.touch(ctx, cartID)
}

func (r *Repo) RemoveItem(ctx context.Context, cartID, variationID int64) error {
	if _, err := r.DB.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1 AND variation_id = $2`, cartID, variationID); err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return r.touch(ctx, cartID)
}

func (r *Repo) Snapshot(ctx context.Context, cartID int64) (Snapshot, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT cl.variation_id, cl.quantity, v.sku, COALESCE(v.size, ''), COALESCE(v.color, ''), v.stock,
		       p.id, p.name, COALESCE(v.price, p.price)
		FROM cart_lines cl
		JOIN variations v ON v.id = cl.variation_id
		JOIN products p   ON p.id = v.product_id
		WHERE cl.cart_id = $1
		ORDER BY p.name, v.size, v.color`, cartID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query cart snapshot: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.VariationID, &it.Quantity, &it.SKU, &it.Size, &it.Color, &it.Stock,
			&it.ProductID, &it.ProductName, &it.UnitPrice); err != nil {
			return Snapshot{}, fmt.Errorf("scan cart item: %w", err)
		}
		it.LineTotal = money.LineTotal(it.UnitPrice, it.Quantity)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(cartID, items), nil
}

func (r *Repo) touch(ctx context.Context, cartID int64) error {
	if _, err := r.DB.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

// MergeGuest moves the guest cart behind token into the user's cart. With no
// user cart the guest cart is adopted as is; otherwise its lines are added to the
// user cart (capped at MaxQuantity) and the guest cart is deleted. Unknown tokens
// are ignored. Run it inside a transaction.
func (r *Repo) MergeGuest(ctx context.Context, token string, userID int64) error {
	if token == "" {
		return nil
	}
	var guestID int64
	err := r.DB.QueryRow(ctx, `SELECT id FROM carts WHERE token = $1 FOR UPDATE`, token).Scan(&guestID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query guest cart: %w", err)
	}

	userCartID, err := r.UserCartID(ctx, userID)
	if errors.Is(err, ErrNoCart) {
		if _, err := r.DB.Exec(ctx, `UPDATE carts SET user_id = $2, token = NULL, updated_at = now() WHERE id = $1`, guestID, userID); err != nil {
			return fmt.Errorf("adopt guest cart: %w", err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.DB.Exec(ctx, `
		INSERT INTO cart_lines (cart_id, variation_id, quantity)
		SELECT $1, variation_id, quantity FROM cart_lines WHERE cart_id = $2
		ON CONFLICT (cart_id, variation_id)
		DO UPDATE SET quantity = LEAST(cart_lines.quantity + EXCLUDED.quantity, $3)`,
		userCartID, guestID, MaxQuantity)
	if err != nil {
		return fmt.Errorf("merge guest lines: %w", err)
	}
	if _, err := r.DB.Exec(ctx, `DELETE FROM carts WHERE id = $1`, guestID); err != nil {
		return fmt.Errorf("delete guest cart: %w", err)
	}
	return r.touch(ctx, userCartID)
}

// Merger runs MergeGuest in a transaction of its own.
type Merger struct{ Pool *pgxpool.Pool }

func (m *Merger) MergeGuest(ctx context.Context, token string, userID int64) error {
	return postgres.InTx(ctx, m.Pool, func(tx pgx.Tx) error {
		return (&Repo{DB: tx}).MergeGuest(ctx, token, userID)
	})
}
