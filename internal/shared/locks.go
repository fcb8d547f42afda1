package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RecurringTickLockKey names the critical section guarding a scheduler tick.
func RecurringTickLockKey() string {
	return "ledger:recurring:tick:lock"
}

// ReconcileLockKey names the critical section guarding balance reconciliation.
func ReconcileLockKey() string {
	return "ledger:reconcile:lock"
}

// TickLock is a best-effort distributed lock so overlapping worker ticks do
// not process the same due transactions twice. Correctness does not depend on
// it; the idempotence key does. It only avoids wasted work.
type TickLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewTickLock constructs a lock for the given key.
func NewTickLock(client *redis.Client, key string, ttl time.Duration) *TickLock {
	return &TickLock{client: client, key: key, ttl: ttl}
}

// Acquire attempts to take the lock. It returns false when another holder owns it.
func (l *TickLock) Acquire(ctx context.Context) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, l.key, fmt.Sprintf("%d", time.Now().UnixNano()), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("shared: acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release drops the lock.
func (l *TickLock) Release(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, l.key).Err()
}
