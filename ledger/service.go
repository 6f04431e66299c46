package ledger

import (
	"context"
	"log/slog"
	"time"
)

// Ledger provides claim and sweep operations over a Store.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// New creates a ledger. A nil logger falls back to slog.Default.
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

// Claim attempts to claim key for the given TTL. The first claimant
// inside the window gets true and proceeds; every later claimant gets
// false and must skip the side effect. A non-positive ttl falls back to
// DefaultTTL. Claim returns an error only on storage failure, never for
// a lost claim.
func (l *Ledger) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now().UTC()
	won, err := l.store.ClaimKey(ctx, &Record{
		Key:       key,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return false, err
	}
	if !won {
		l.logger.Debug("duplicate operation skipped", slog.String("key", key))
	}
	return won, nil
}

// Cleanup removes expired claim records. The engine schedules it as a
// recurring maintenance job. Returns the number removed.
func (l *Ledger) Cleanup(ctx context.Context) (int64, error) {
	deleted, err := l.store.SweepExpiredClaims(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		l.logger.Debug("swept expired claims", slog.Int64("deleted", deleted))
	}
	return deleted, nil
}

// Count returns the number of live claim records.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	return l.store.CountClaims(ctx)
}
