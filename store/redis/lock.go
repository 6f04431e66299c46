package redis

import (
	"context"
	"fmt"
	"time"
)

// AcquireLock attempts to take the named lock for the given TTL. SET NX
// with a TTL is the whole implementation: a held lock blocks the set, an
// expired one has already been evicted.
func (s *Store) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockKey(name), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("courier/redis: acquire lock %q: %w", name, err)
	}
	return ok, nil
}

// ReleaseLock frees the named lock. Releasing an unheld lock is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, lockKey(name)).Err(); err != nil {
		return fmt.Errorf("courier/redis: release lock %q: %w", name, err)
	}
	return nil
}
