package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type StatusEntry struct {
	OrderID   int64     `json:"order_id"`
	UserID    int64     `json:"user_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusCache keeps the latest known status of each order for fast reads.
type StatusCache struct {
	Client *redis.Client
}

func (c *StatusCache) Get(ctx context.Context, orderID int64) (StatusEntry, error) {
	var e StatusEntry
	b, err := c.Client.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return e, ErrCacheMiss
	}
	if err != nil {
		return e, fmt.Errorf("redis get status: %w", err)
	}
	if err := json.Unmarshal(b, &e); err != nil {
		return e, fmt.Errorf("decode status: %w", err)
	}
	return e, nil
}

func (c *StatusCache) Set(ctx context.Context, e StatusEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, fmt.Sprintf(KeyOrderStatus, e.OrderID), b, TTLStatusCache).Err()
}
