package httpx

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/auth"
	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/go-chi/chi/v5"
)

const (
	cartCookie    = "cart_token"
	cartCookieAge = 365 * 24 * time.Hour
)

var guestTokenRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

type CartStore interface {
	EnsureForUser(ctx context.Context, userID int64) (int64, error)
	EnsureForToken(ctx context.Context, token string) (id int64, tok string, created bool, err error)
	AddItem(ctx context.Context, cartID, variationID int64, qty int) error
	SetQuantity(ctx context.Context, cartID, variationID int64, qty int) error
	RemoveItem(ctx context.Context, cartID, variationID int64) error
	Clear(ctx context.Context, cartID int64) error
	Snapshot(ctx context.Context, cartID int64) (cart.Snapshot, error)
}

type CartHandler struct {
	Carts CartStore
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.clear)
		r.Post("/items", h.addItem)
		r.Patch("/items/{variationID}", h.updateItem)
		r.Delete("/items/{variationID}", h.removeItem)
	})
}

type addItemReq struct {
	VariationID int64 `json:"variation_id"`
	Qty         *int  `json:"qty"`
}

type setQtyReq struct {
	Qty int `json:"qty"`
}

type cartItemResp struct {
	VariationID int64  `json:"variation_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	SKU         string `json:"sku"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
	Stock       int    `json:"stock"`
	Qty         int    `json:"qty"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

type cartTotalsResp struct {
	CountItems  int    `json:"count_items"`
	TotalQty    int    `json:"total_qty"`
	TotalAmount string `json:"total_amount"`
}

// resolveCart finds the caller's cart: the user's one when authenticated, else
// the guest cart of the cart_token cookie, minting a new token if needed.
func (h *CartHandler) resolveCart(ctx context.Context, w http.ResponseWriter, r *http.Request) (int64, error) {
	if id, ok := auth.FromContext(r.Context()); ok {
		return h.Carts.EnsureForUser(ctx, id.UserID)
	}
	var token string
	if c, err := r.Cookie(cartCookie); err == nil && guestTokenRe.MatchString(c.Value) {
		token = c.Value
	}
	cartID, tok, created, err := h.Carts.EnsureForToken(ctx, token)
	if err != nil {
		return 0, err
	}
	if created || tok != token {
		http.SetCookie(w, &http.Cookie{
			Name:     cartCookie,
			Value:    tok,
			Path:     "/",
			MaxAge:   int(cartCookieAge.Seconds()),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return cartID, nil
}

// respond resolves the cart, applies op (if any) and writes the fresh snapshot.
func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, cartID int64) error) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	cartID, err := h.resolveCart(ctx, w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	if op != nil {
		if err := op(ctx, cartID); err != nil {
			if errors.Is(err, cart.ErrUnknownVariation) {
				writeError(w, http.StatusNotFound, "not_found", map[string]any{"message": "unknown variation"})
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", nil)
			return
		}
	}
	snap, err := h.Carts.Snapshot(ctx, cartID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	writeOK(w, http.StatusOK, snapshotBody(snap))
}

func snapshotBody(s cart.Snapshot) map[string]any {
	items := make([]cartItemResp, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, cartItemResp{
			VariationID: it.VariationID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			Size:        it.Size,
			Color:       it.Color,
			Stock:       it.Stock,
			Qty:         it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(money.Places),
			LineTotal:   it.LineTotal.StringFixed(money.Places),
		})
	}
	return map[string]any{
		"items": items,
		"totals": cartTotalsResp{
			CountItems:  s.CountItems,
			TotalQty:    s.TotalQty,
			TotalAmount: s.TotalAmount.StringFixed(money.Places),
		},
	}
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, nil)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Carts.Clear)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if req.VariationID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", map[string]any{"message": "variation_id missing"})
		return
	}
	qty := 1
	if req.Qty != nil {
		qty = cart.AddQuantity(*req.Qty)
	}
	h.respond(w, r, func(ctx context.Context, cartID int64) error {
		return h.Carts.AddItem(ctx, cartID, req.VariationID, qty)
	})
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	variationID, ok := int64Param(r, "variationID")
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	var req setQtyReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	h.respond(w, r, func(ctx context.Context, cartID int64) error {
		return h.Carts.SetQuantity(ctx, cartID, variationID, req.Qty)
	})
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	variationID, ok := int64Param(r, "variationID")
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	h.respond(w, r, func(ctx context.Context, cartID int64) error {
		return h.Carts.RemoveItem(ctx, cartID, variationID)
	})
}
