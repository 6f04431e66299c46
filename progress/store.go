package progress

import (
	"context"
	"time"
)

// Store defines the persistence contract for the singleton progress
// record. Implementations hold at most one run at a time.
type Store interface {
	// SaveProgress persists the run, replacing any existing record.
	SaveProgress(ctx context.Context, run *Run) error

	// GetProgress returns the current run record, or
	// courier.ErrNoActiveSync when none exists.
	GetProgress(ctx context.Context) (*Run, error)

	// ClearProgress removes the current run record. Clearing an already
	// empty slot is not an error.
	ClearProgress(ctx context.Context) error
}

// Locker is the named atomic lock primitive the tracker serializes
// counter mutations with. AcquireLock is try-acquire: it returns
// immediately with false when the lock is held. The ttl bounds how long
// a crashed holder can keep the lock. The tracker layers its bounded
// wait on top by polling.
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}
