package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/auth"
	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
)

type OrderReader interface {
	Get(ctx context.Context, orderID int64) (*orders.Order, error)
	ListForUser(ctx context.Context, userID int64) ([]orders.Summary, error)
	Lines(ctx context.Context, orderID int64) ([]orders.Line, error)
	Payments(ctx context.Context, orderID int64) ([]orders.Payment, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID int64) (redisx.StatusEntry, error)
	Set(ctx context.Context, e redisx.StatusEntry) error
}

type OrdersHandler struct {
	Orders OrderReader
	Status StatusCache // optional
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/api/orders", h.listOrders)
	r.Get("/api/orders/{id}", h.getOrder)
	r.Get("/api/orders/{id}/status", h.getStatus)
}

type orderSummaryResp struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	Total     string    `json:"total"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

type orderResp struct {
	ID        int64          `json:"id"`
	Status    string         `json:"status"`
	Total     string         `json:"total"`
	Currency  string         `json:"currency"`
	Shipping  orders.Address `json:"shipping"`
	Billing   orders.Address `json:"billing"`
	Paid      bool           `json:"paid"`
	CreatedAt time.Time      `json:"created_at"`
}

type lineResp struct {
	VariationID    int64  `json:"variation_id"`
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	VariationLabel string `json:"variation_label,omitempty"`
	UnitPrice      string `json:"unit_price"`
	Quantity       int    `json:"qty"`
	LineTotal      string `json:"line_total"`
}

type paymentResp struct {
	ID             int64     `json:"id"`
	Amount         string    `json:"amount"`
	Method         string    `json:"method"`
	Status         string    `json:"status"`
	Provider       string    `json:"provider"`
	TransactionRef string    `json:"transaction_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListForUser(ctx, id.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	items := make([]orderSummaryResp, 0, len(list))
	for _, s := range list {
		items = append(items, orderSummaryResp{
			ID:        s.ID,
			Status:    string(s.Status),
			Total:     s.Total.StringFixed(money.Places),
			Currency:  s.Currency,
			CreatedAt: s.CreatedAt,
		})
	}
	writeOK(w, http.StatusOK, map[string]any{"items": items})
}

// loadOwned fetches an order the caller may read and writes the error response
// when it may not.
func (h *OrdersHandler) loadOwned(ctx context.Context, w http.ResponseWriter, r *http.Request, id auth.Identity) (*orders.Order, bool) {
	orderID, ok := int64Param(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return nil, false
	}
	o, err := h.Orders.Get(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", nil)
		return nil, false
	}
	if o.UserID != id.UserID && !id.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", nil)
		return nil, false
	}
	return o, true
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, ok := h.loadOwned(ctx, w, r, id)
	if !ok {
		return
	}
	lines, err := h.Orders.Lines(ctx, o.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	payments, err := h.Orders.Payments(ctx, o.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", nil)
		return
	}

	items := make([]lineResp, 0, len(lines))
	for _, l := range lines {
		items = append(items, lineResp{
			VariationID:    l.VariationID,
			ProductID:      l.ProductID,
			ProductName:    l.ProductName,
			VariationLabel: l.VariationLabel,
			UnitPrice:      l.UnitPrice.StringFixed(money.Places),
			Quantity:       l.Quantity,
			LineTotal:      l.LineTotal.StringFixed(money.Places),
		})
	}
	pays := make([]paymentResp, 0, len(payments))
	for _, p := range payments {
		pays = append(pays, paymentResp{
			ID:             p.ID,
			Amount:         p.Amount.StringFixed(money.Places),
			Method:         p.Method,
			Status:         string(p.Status),
			Provider:       p.Provider,
			TransactionRef: p.TransactionRef,
			CreatedAt:      p.CreatedAt,
		})
	}
	writeOK(w, http.StatusOK, map[string]any{
		"order": orderResp{
			ID:        o.ID,
			Status:    string(o.Status),
			Total:     o.Total.StringFixed(money.Places),
			Currency:  o.Currency,
			Shipping:  o.Shipping,
			Billing:   o.Billing,
			Paid:      orders.IsPaid(payments),
			CreatedAt: o.CreatedAt,
		},
		"items":    items,
		"payments": pays,
	})
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := int64Param(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Status != nil {
		if e, err := h.Status.Get(ctx, orderID); err == nil {
			if e.UserID != id.UserID && !id.IsAdmin() {
				writeError(w, http.StatusForbidden, "forbidden", nil)
				return
			}
			writeOK(w, http.StatusOK, map[string]any{"order_id": e.OrderID, "status": e.Status, "source": "cache"})
			return
		}
	}

	// 2) fallback DB
	o, ok := h.loadOwned(ctx, w, r, id)
	if !ok {
		return
	}
	if h.Status != nil {
		_ = h.Status.Set(ctx, redisx.StatusEntry{OrderID: o.ID, UserID: o.UserID, Status: string(o.Status), UpdatedAt: o.UpdatedAt})
	}
	writeOK(w, http.StatusOK, map[string]any{"order_id": o.ID, "status": string(o.Status), "source": "db"})
}
