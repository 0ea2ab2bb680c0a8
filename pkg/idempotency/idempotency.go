package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard serializes concurrent deliveries of the same gateway callback. The
// database unique index on the payment reference is the source of truth;
// the guard only keeps duplicate deliveries from racing each other into
// lock contention.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Guard{client: client, ttl: ttl}
}

// Acquire takes the per-key lock. It returns false when another delivery of
// the same key is still in flight.
func (g *Guard) Acquire(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, "idem:"+key, 1, g.ttl).Result()
}

// Release drops the lock so retries after a failure are not blocked for the
// full TTL.
func (g *Guard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, "idem:"+key).Err()
}
