package redisx

import "time"

const (
	// Replay of a checkout submission: idem:checkout:{user_id}:{idempotency_key} -> CheckoutReplay JSON
	KeyIdemCheckout = "idem:checkout:%d:%s"

	// Cache status order: order_status:{order_id} -> StatusEntry JSON
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
