package services

import (
	"context"
	"time"
)

const orderLockPrefix = "payment:lock:"

// OrderLocker serializes gateway-facing work on a single order across
// processes using a Redis SetNX lock. The TTL guards against a crashed
// holder; correctness does not depend on the lock (the store's conditional
// update does that), it only prevents duplicate gateway calls.
type OrderLocker struct {
	cache *RedisCache
	ttl   time.Duration
}

func NewOrderLocker(cache *RedisCache) *OrderLocker {
	return &OrderLocker{cache: cache, ttl: 30 * time.Second}
}

// Acquire takes the per-order lock. Returns false when another operation on
// the same order is in flight.
func (l *OrderLocker) Acquire(ctx context.Context, orderID string) (bool, error) {
	return l.cache.SetNX(ctx, orderLockPrefix+orderID, 1, l.ttl)
}

// Release frees the per-order lock. Best effort: an expired or missing key
// is not an error.
func (l *OrderLocker) Release(ctx context.Context, orderID string) {
	_ = l.cache.Delete(ctx, orderLockPrefix+orderID)
}
