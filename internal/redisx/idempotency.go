package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CheckoutReplay is what a repeated checkout submission gets back.
type CheckoutReplay struct {
	OrderID int64  `json:"order_id"`
	Total   string `json:"total"`
}

type Idempotency struct {
	Client *redis.Client
}

// Lookup returns the stored result for (userID, key), ok=false on a miss.
func (i *Idempotency) Lookup(ctx context.Context, userID int64, key string) (CheckoutReplay, bool, error) {
	var r CheckoutReplay
	b, err := i.Client.Get(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return r, false, nil
	}
	if err != nil {
		return r, false, err
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, false, err
	}
	return r, true, nil
}

// Remember stores the first result only; a later call for the same key is ignored.
func (i *Idempotency) Remember(ctx context.Context, userID int64, key string, r CheckoutReplay) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return i.Client.SetNX(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key), b, TTLIdempotency).Err()
}

// FirstSeen marks key for service as processed and reports whether this call
// was the first one to do so.
func FirstSeen(ctx context.Context, rdb *redis.Client, service, key string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, key), "1", TTLDedup).Result()
}
