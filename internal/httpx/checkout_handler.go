package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (checkout.Result, error)
	Settle(ctx context.Context, req checkout.SettleRequest) (checkout.SettleResult, error)
}

// IdempotencyStore replays checkout results per (user, Idempotency-Key).
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID int64, key string) (redisx.CheckoutReplay, bool, error)
	Remember(ctx context.Context, userID int64, key string, r redisx.CheckoutReplay) error
}

type CheckoutHandler struct {
	Service     Checkouter
	Idempotency IdempotencyStore // optional
	Metrics     *metrics.Metrics
	ServiceName string
}

type CheckoutReq struct {
	Shipping  orders.Address  `json:"shipping"`
	Billing   *orders.Address `json:"billing,omitempty"`
	PromoCode string          `json:"promo_code"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/api/checkout", h.checkout)
	r.Post("/api/orders/{id}/pay", h.pay)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		h.Metrics.RecordOperation("checkout", checkout.CodeUnauthenticated)
		return
	}
	var req CheckoutReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" && h.Idempotency != nil {
		replay, found, err := h.Idempotency.Lookup(ctx, id.UserID, idemKey)
		if err != nil {
			// the database stays the source of truth; carry on without replay
			logging.Log(logging.Fields{Service: h.ServiceName, UserID: id.UserID, Step: "idempotency_lookup", Status: "error", Error: err.Error()})
		}
		if found {
			h.Metrics.RecordOperation("checkout", "replayed")
			writeOK(w, http.StatusCreated, map[string]any{"order_id": replay.OrderID, "total": replay.Total, "idempotent": true})
			return
		}
	}

	res, err := h.Service.Checkout(ctx, checkout.Request{
		UserID:    id.UserID,
		Shipping:  req.Shipping,
		Billing:   req.Billing,
		PromoCode: req.PromoCode,
		TraceID:   middleware.GetReqID(r.Context()),
	})
	if err != nil {
		h.Metrics.RecordOperation("checkout", checkout.Code(err))
		writeCheckoutError(w, err)
		return
	}
	h.Metrics.RecordOperation("checkout", "success")

	total := res.Total.StringFixed(money.Places)
	if idemKey != "" && h.Idempotency != nil {
		if err := h.Idempotency.Remember(ctx, id.UserID, idemKey, redisx.CheckoutReplay{OrderID: res.OrderID, Total: total}); err != nil {
			logging.Log(logging.Fields{Service: h.ServiceName, UserID: id.UserID, OrderID: res.OrderID, Step: "idempotency_store", Status: "error", Error: err.Error()})
		}
	}
	writeOK(w, http.StatusCreated, map[string]any{"order_id": res.OrderID, "total": total, "idempotent": false})
}

func (h *CheckoutHandler) pay(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		h.Metrics.RecordOperation("settle", checkout.CodeUnauthenticated)
		return
	}
	orderID, ok := int64Param(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, checkout.CodeNotFound, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Service.Settle(ctx, checkout.SettleRequest{
		OrderID: orderID,
		UserID:  id.UserID,
		TraceID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		h.Metrics.RecordOperation("settle", checkout.Code(err))
		writeCheckoutError(w, err)
		return
	}
	outcome := "success"
	if res.AlreadyPaid {
		outcome = "already_paid"
	}
	h.Metrics.RecordOperation("settle", outcome)
	writeOK(w, http.StatusOK, map[string]any{"paid": res.Paid, "already_paid": res.AlreadyPaid})
}

// writeCheckoutError maps checkout and settlement errors to their HTTP form.
// Server errors carry no detail; the service has already logged it.
func writeCheckoutError(w http.ResponseWriter, err error) {
	code := checkout.Code(err)
	switch code {
	case checkout.CodeUnauthenticated:
		writeError(w, http.StatusUnauthorized, code, nil)
	case checkout.CodeInvalidAddress:
		var addrErr *checkout.AddressError
		errors.As(err, &addrErr)
		writeError(w, http.StatusUnprocessableEntity, code, map[string]any{"address": addrErr.Address, "missing": addrErr.Field})
	case checkout.CodeCartEmpty:
		writeError(w, http.StatusBadRequest, code, nil)
	case checkout.CodeOutOfStock:
		var stockErr *checkout.OutOfStockError
		errors.As(err, &stockErr)
		writeError(w, http.StatusConflict, code, map[string]any{"variation_id": stockErr.VariationID})
	case checkout.CodeNotFound:
		writeError(w, http.StatusNotFound, code, nil)
	case checkout.CodeForbidden:
		writeError(w, http.StatusForbidden, code, nil)
	case checkout.CodeInvalidStatus:
		writeError(w, http.StatusConflict, code, nil)
	default:
		writeError(w, http.StatusInternalServerError, checkout.CodeServerError, nil)
	}
}
