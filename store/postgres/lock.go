package postgres

import (
	"context"
	"fmt"
	"time"
)

// AcquireLock attempts to take the named lock for the given TTL.
// Returns false without error when another holder has an unexpired
// lock. An expired lock is taken over in the same statement.
func (s *Store) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO courier_locks (name, expires_at)
		VALUES ($1, NOW() + $2::interval)
		ON CONFLICT (name) DO UPDATE
		SET expires_at = EXCLUDED.expires_at
		WHERE courier_locks.expires_at <= NOW()`,
		name, ttl.String(),
	)
	if err != nil {
		return false, fmt.Errorf("courier/postgres: acquire lock %q: %w", name, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseLock frees the named lock. Releasing an unheld lock is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM courier_locks WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("courier/postgres: release lock %q: %w", name, err)
	}
	return nil
}
