package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Service projects order events into the Redis status cache.
type Service struct {
	Redis       *redis.Client
	Status      *redisx.StatusCache
	Metrics     *metrics.Metrics
	ServiceName string
}

// HandleOrderEvent is installed as the consumer handler for both order topics.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	start := time.Now()

	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, commit and move on
		logging.Log(logging.Fields{Service: s.ServiceName, Step: "decode", Status: "skipped", Error: err.Error()})
		return nil
	}
	var (
		orderID, userID int64
		status          orders.Status
	)
	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, userID, status = p.OrderID, p.UserID, orders.StatusPending
	case orders.EventOrderPaid:
		p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID, userID, status = p.OrderID, p.UserID, orders.StatusPaid
	default:
		return nil // ignore
	}

	// 2) dedup via Redis (event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		s.Metrics.RecordOperation("project", "duplicate")
		return nil
	}

	// 3) never move a cached status backwards
	if err := s.apply(ctx, orderID, userID, status, env.OccurredAt); err != nil {
		s.Metrics.RecordOperation("project", "error")
		return err
	}
	if _, err := redisx.FirstSeen(ctx, s.Redis, s.ServiceName, env.EventID); err != nil {
		return err
	}

	s.Metrics.RecordOperation("project", string(status))
	logging.Log(logging.Fields{
		Service:    s.ServiceName,
		RequestID:  env.TraceID,
		UserID:     userID,
		OrderID:    orderID,
		Step:       "project_" + env.EventType,
		Status:     string(status),
		DurationMS: logging.Since(start),
	})
	return nil
}

func (s *Service) apply(ctx context.Context, orderID, userID int64, status orders.Status, at time.Time) error {
	cur, err := s.Status.Get(ctx, orderID)
	switch {
	case err == nil:
		if orders.Status(cur.Status) == status || !orders.CanTransition(orders.Status(cur.Status), status) {
			return nil
		}
	case !errors.Is(err, redisx.ErrCacheMiss):
		return err
	}
	return s.Status.Set(ctx, redisx.StatusEntry{OrderID: orderID, UserID: userID, Status: string(status), UpdatedAt: at})
}
