package checkout

import (
	"context"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/money"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Events go out after commit only; a rolled back checkout never announces itself.

func (s *Service) publishPlaced(_ context.Context, req Request, res Result, lines []cart.Line, promoCode string) {
	if s.Placed == nil {
		return
	}
	evLines := make([]orders.EventLine, 0, len(lines))
	for _, l := range lines {
		evLines = append(evLines, orders.EventLine{
			VariationID: l.VariationID,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.StringFixed(money.Places),
		})
	}
	payload := kafkax.MustMarshal(orders.OrderPlacedPayload{
		OrderID:  res.OrderID,
		UserID:   req.UserID,
		Status:   orders.StatusPending,
		Total:    res.Total.StringFixed(money.Places),
		Currency: s.Currency,
		Promo:    promoCode,
		Lines:    evLines,
	})
	ev := orders.NewEnvelope(orders.EventOrderPlaced, s.ServiceName, req.TraceID, res.OrderID, payload)
	s.Placed.Publish(orders.PartitionKey(res.OrderID), kafkax.MustMarshal(ev), eventHeaders(orders.EventOrderPlaced)...)
}

func (s *Service) publishPaid(_ context.Context, req SettleRequest, amount decimal.Decimal, ref string) {
	if s.Paid == nil {
		return
	}
	payload := kafkax.MustMarshal(orders.OrderPaidPayload{
		OrderID:        req.OrderID,
		UserID:         req.UserID,
		Status:         orders.StatusPaid,
		Amount:         amount.StringFixed(money.Places),
		Provider:       s.PaymentProvider,
		TransactionRef: ref,
	})
	ev := orders.NewEnvelope(orders.EventOrderPaid, s.ServiceName, req.TraceID, req.OrderID, payload)
	s.Paid.Publish(orders.PartitionKey(req.OrderID), kafkax.MustMarshal(ev), eventHeaders(orders.EventOrderPaid)...)
}

func eventHeaders(eventType string) []kafkago.Header {
	return []kafkago.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte("1")},
	}
}
