package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SettleRequest struct {
	OrderID int64
	UserID  int64
	TraceID string
}

type SettleResult struct {
	Paid bool
	// AlreadyPaid is set when the order was paid before this call; nothing was written.
	AlreadyPaid bool
}

func NewTransactionRef() string { return "pi_" + uuid.NewString() }

// Settle marks a pending order paid and records a validated payment for its
// total. The order row stays locked for the whole transaction, so concurrent
// calls for one order run one after the other and only the first one writes.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (SettleResult, error) {
	start := time.Now()
	if req.UserID == 0 {
		return SettleResult{}, ErrUnauthenticated
	}

	var (
		res    SettleResult
		amount decimal.Decimal
		ref    string
	)
	err := s.Store.WithTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, req.OrderID)
		if errors.Is(err, orders.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if o.UserID != req.UserID {
			return ErrForbidden
		}
		if o.Status == orders.StatusPaid {
			res = SettleResult{Paid: true, AlreadyPaid: true}
			return nil
		}
		if !orders.CanTransition(o.Status, orders.StatusPaid) {
			return ErrIllegalStatus
		}

		if err := tx.SetOrderStatus(ctx, o.ID, orders.StatusPaid); err != nil {
			return err
		}
		ref = NewTransactionRef()
		if err := tx.InsertValidatedPayment(ctx, o.ID, o.Total, s.PaymentProvider, ref); err != nil {
			return err
		}
		amount = o.Total
		res = SettleResult{Paid: true}
		return nil
	})
	if err != nil {
		s.logFailure("settle", req.UserID, req.OrderID, req.TraceID, start, err)
		return SettleResult{}, err
	}

	status := "committed"
	if res.AlreadyPaid {
		status = "already_paid"
	}
	logging.Log(logging.Fields{
		Service:    s.ServiceName,
		RequestID:  req.TraceID,
		UserID:     req.UserID,
		OrderID:    req.OrderID,
		Step:       "settle",
		Status:     status,
		DurationMS: logging.Since(start),
	})
	if !res.AlreadyPaid {
		s.publishPaid(ctx, req, amount, ref)
		s.cacheStatus(ctx, req.OrderID, req.UserID, orders.StatusPaid)
	}
	return res, nil
}
