package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced = "OrderPlaced"
	EventOrderPaid   = "OrderPaid"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, traceID string, orderID int64, payload json.RawMessage) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: string(PartitionKey(orderID)),
		Payload:       payload,
	}
}

type EventLine struct {
	VariationID int64  `json:"variation_id"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

type OrderPlacedPayload struct {
	OrderID  int64       `json:"order_id"`
	UserID   int64       `json:"user_id"`
	Status   Status      `json:"status"`
	Total    string      `json:"total"`
	Currency string      `json:"currency"`
	Promo    string      `json:"promo_code,omitempty"`
	Lines    []EventLine `json:"lines"`
}

type OrderPaidPayload struct {
	OrderID        int64  `json:"order_id"`
	UserID         int64  `json:"user_id"`
	Status         Status `json:"status"`
	Amount         string `json:"amount"`
	Provider       string `json:"provider"`
	TransactionRef string `json:"transaction_ref"`
}
