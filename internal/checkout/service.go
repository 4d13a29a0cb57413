package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Publisher is the async Kafka producer seen from checkout.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type StatusCache interface {
	Set(ctx context.Context, e redisx.StatusEntry) error
}

type Service struct {
	Store  Store
	Placed Publisher   // shop.order.placed, optional
	Paid   Publisher   // shop.order.paid, optional
	Status StatusCache // optional

	Currency        string
	DefaultCountry  string
	PaymentProvider string
	ServiceName     string
}

type Request struct {
	UserID    int64
	Shipping  orders.Address
	Billing   *orders.Address // nil means same as Shipping
	PromoCode string
	TraceID   string
}

type Result struct {
	OrderID int64
	Total   decimal.Decimal
}

// Subtotal is round(Σ unit × qty, 2) over the cart lines.
func Subtotal(lines []cart.Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return money.Round(total)
}

// checkStock rejects the first line whose quantity is outside [1, stock].
func checkStock(lines []cart.Line) error {
	for _, l := range lines {
		if l.Quantity < 1 || l.Quantity > l.Stock {
			return &OutOfStockError{VariationID: l.VariationID, Requested: l.Quantity, Available: l.Stock}
		}
	}
	return nil
}

// Checkout turns the caller's cart into a pending order. Validation happens
// before any write; every write happens in one transaction.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if req.UserID == 0 {
		return Result{}, ErrUnauthenticated
	}

	shipping := normalizeAddress(req.Shipping, s.DefaultCountry)
	billing := shipping
	if req.Billing != nil {
		billing = normalizeAddress(*req.Billing, s.DefaultCountry)
	}
	if err := validateAddresses(shipping, billing); err != nil {
		return Result{}, err
	}
	promoCode := strings.TrimSpace(req.PromoCode)

	var (
		res   Result
		lines []cart.Line
	)
	err := s.Store.WithTx(ctx, func(tx Tx) error {
		cartID, err := tx.UserCartID(ctx, req.UserID)
		if errors.Is(err, cart.ErrNoCart) {
			return ErrCartEmpty
		}
		if err != nil {
			return fmt.Errorf("resolve cart: %w", err)
		}

		lines, err = tx.CartLines(ctx, cartID)
		if err != nil {
			return fmt.Errorf("load cart lines: %w", err)
		}
		if len(lines) == 0 {
			return ErrCartEmpty
		}
		if err := checkStock(lines); err != nil {
			return err
		}

		total := Subtotal(lines)
		if promoCode != "" {
			rule, ok, err := tx.Promotion(ctx, promoCode)
			if err != nil {
				return fmt.Errorf("resolve promotion: %w", err)
			}
			if ok {
				total = rule.Apply(total)
			}
		}

		orderID, err := tx.CreateOrder(ctx, orders.NewOrder{
			UserID:   req.UserID,
			CartID:   cartID,
			Total:    total,
			Currency: s.Currency,
			Shipping: shipping,
			Billing:  billing,
		})
		if err != nil {
			return err
		}

		for _, l := range lines {
			if err := tx.InsertLine(ctx, orderID, orders.Line{
				ProductID:      l.ProductID,
				VariationID:    l.VariationID,
				ProductName:    l.ProductName,
				VariationLabel: l.VariationLabel,
				UnitPrice:      l.UnitPrice,
				Quantity:       l.Quantity,
				LineTotal:      money.LineTotal(l.UnitPrice, l.Quantity),
			}); err != nil {
				return err
			}
			if err := tx.DecrementStock(ctx, l.VariationID, l.Quantity); err != nil {
				if errors.Is(err, orders.ErrInsufficientStock) {
					// another checkout took the stock after our read
					return &OutOfStockError{VariationID: l.VariationID, Requested: l.Quantity, Raced: true}
				}
				return err
			}
		}

		if err := tx.InsertPendingPayment(ctx, orderID, total, s.PaymentProvider); err != nil {
			return err
		}
		if err := tx.ClearCart(ctx, cartID); err != nil {
			return err
		}

		res = Result{OrderID: orderID, Total: total}
		return nil
	})
	if err != nil {
		s.logFailure("checkout", req.UserID, 0, req.TraceID, start, err)
		return Result{}, err
	}

	logging.Log(logging.Fields{
		Service:    s.ServiceName,
		RequestID:  req.TraceID,
		UserID:     req.UserID,
		OrderID:    res.OrderID,
		Step:       "checkout",
		Status:     "committed",
		DurationMS: logging.Since(start),
	})
	s.publishPlaced(ctx, req, res, lines, promoCode)
	s.cacheStatus(ctx, res.OrderID, req.UserID, orders.StatusPending)
	return res, nil
}

// logFailure records unexpected failures with their internal detail; client
// errors are logged without it.
func (s *Service) logFailure(step string, userID, orderID int64, traceID string, start time.Time, err error) {
	f := logging.Fields{
		Service:    s.ServiceName,
		RequestID:  traceID,
		UserID:     userID,
		OrderID:    orderID,
		Step:       step,
		Status:     Code(err),
		DurationMS: logging.Since(start),
	}
	if f.Status == CodeServerError {
		f.Message = "rolled back"
		f.Error = err.Error()
	}
	logging.Log(f)
}

func (s *Service) cacheStatus(ctx context.Context, orderID, userID int64, st orders.Status) {
	if s.Status == nil {
		return
	}
	err := s.Status.Set(ctx, redisx.StatusEntry{
		OrderID:   orderID,
		UserID:    userID,
		Status:    string(st),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		logging.Log(logging.Fields{Service: s.ServiceName, OrderID: orderID, Step: "status_cache", Status: "error", Error: err.Error()})
	}
}
