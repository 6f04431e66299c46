package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/waveline/courier"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/progress"
)

// SaveProgress persists the run, replacing any existing record. The
// table's CHECK pins the slot column to 1, so the upsert keeps the run
// a singleton.
func (s *Store) SaveProgress(ctx context.Context, run *progress.Run) error {
	items, err := json.Marshal(run.FailedItems)
	if err != nil {
		return fmt.Errorf("courier/postgres: encode failed items: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO courier_sync_progress (
			slot, sync_id, status, total_items, processed, succeeded, failed,
			failed_items, started_at, updated_at, completed_at, failure_reason
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (slot) DO UPDATE SET
			sync_id = EXCLUDED.sync_id,
			status = EXCLUDED.status,
			total_items = EXCLUDED.total_items,
			processed = EXCLUDED.processed,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			failed_items = EXCLUDED.failed_items,
			started_at = EXCLUDED.started_at,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			failure_reason = EXCLUDED.failure_reason`,
		run.SyncID.String(), string(run.Status),
		run.TotalItems, run.Processed, run.Succeeded, run.Failed,
		items, run.StartedAt, run.UpdatedAt, run.CompletedAt, run.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: save progress: %w", err)
	}
	return nil
}

// GetProgress returns the current run record, or courier.ErrNoActiveSync
// when none exists.
func (s *Store) GetProgress(ctx context.Context) (*progress.Run, error) {
	var (
		run       progress.Run
		syncIDStr string
		statusStr string
		items     []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			sync_id, status, total_items, processed, succeeded, failed,
			failed_items, started_at, updated_at, completed_at, failure_reason
		FROM courier_sync_progress
		WHERE slot = 1`,
	).Scan(
		&syncIDStr, &statusStr, &run.TotalItems, &run.Processed,
		&run.Succeeded, &run.Failed,
		&items, &run.StartedAt, &run.UpdatedAt, &run.CompletedAt, &run.FailureReason,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrNoActiveSync
		}
		return nil, fmt.Errorf("courier/postgres: get progress: %w", err)
	}

	run.Status = progress.Status(statusStr)

	parsedID, parseErr := id.ParseSyncID(syncIDStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/postgres: parse sync id %q: %w", syncIDStr, parseErr)
	}
	run.SyncID = parsedID

	if err := json.Unmarshal(items, &run.FailedItems); err != nil {
		return nil, fmt.Errorf("courier/postgres: decode failed items: %w", err)
	}

	return &run, nil
}

// ClearProgress removes the current run record. Clearing an already
// empty slot is not an error.
func (s *Store) ClearProgress(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM courier_sync_progress WHERE slot = 1`)
	if err != nil {
		return fmt.Errorf("courier/postgres: clear progress: %w", err)
	}
	return nil
}
