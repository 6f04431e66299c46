package dlq

import (
	"context"
	"time"

	"github.com/waveline/courier/id"
)

// ListOpts controls pagination and filtering for DLQ list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Hook filters by hook name. Empty means all hooks.
	Hook string
	// Reason filters by dead-letter reason. Empty means all reasons.
	Reason Reason
}

// Store defines the persistence contract for the dead letter store.
type Store interface {
	// PushDLQ adds a failed job entry to the dead letter store.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries matching the given options, newest
	// failures first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ retrieves an entry by ID.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// MarkReplayedDLQ increments the entry's replay count and stamps
	// ReplayedAt. The actual re-enqueue is handled at the service layer.
	MarkReplayedDLQ(ctx context.Context, entryID id.DLQID) error

	// DeleteDLQ removes a single entry by ID.
	DeleteDLQ(ctx context.Context, entryID id.DLQID) error

	// PurgeDLQ removes entries with FailedAt before the given time.
	// Returns the number of entries removed.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	// CountDLQ returns the total number of entries in the dead letter store.
	CountDLQ(ctx context.Context) (int64, error)
}
