package ledger

import (
	"context"
	"time"
)

// Store defines the persistence contract for idempotency claims.
type Store interface {
	// ClaimKey atomically inserts the record unless an unexpired record
	// with the same key already exists. Returns true when the insert
	// won. Implementations must enforce uniqueness at the storage layer
	// (insert-or-fail); a read-check-then-write sequence is a race and
	// is not a valid implementation. A record whose TTL has lapsed may
	// be taken over atomically even if the sweep has not removed it yet.
	ClaimKey(ctx context.Context, rec *Record) (bool, error)

	// GetClaim retrieves a claim record by key, expired or not.
	// Returns nil without error when no record exists.
	GetClaim(ctx context.Context, key string) (*Record, error)

	// SweepExpiredClaims removes records whose ExpiresAt is at or before
	// now. Returns the number removed.
	SweepExpiredClaims(ctx context.Context, now time.Time) (int64, error)

	// CountClaims returns the number of live claim records.
	CountClaims(ctx context.Context) (int64, error)
}
