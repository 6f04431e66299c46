package store

import (
	"context"
	"time"

	"github.com/waveline/courier/broadcast"
	"github.com/waveline/courier/cron"
	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/ledger"
	"github.com/waveline/courier/progress"
)

// LockStore is the named atomic lock primitive. AcquireLock is
// try-acquire: it returns immediately with false when the lock is held
// by someone else. The ttl bounds how long a crashed holder can keep
// the lock; an expired lock may be taken over atomically. Callers that
// need to wait layer their own polling on top.
type LockStore interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, redis, memory) implements all of them.
type Store interface {
	job.Store
	dlq.Store
	ledger.Store
	progress.Store
	broadcast.Store
	cron.Store
	LockStore

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
