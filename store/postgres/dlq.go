package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/waveline/courier"
	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// PushDLQ adds a failed job entry to the dead letter store.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO courier_dlq (
			id, job_id, hook, fingerprint, lane, payload,
			reason, message, attempt, max_attempts,
			failed_at, replay_count, replayed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID.String(), entry.JobID.String(), entry.Hook,
		entry.Fingerprint, string(entry.Lane), entry.Payload,
		string(entry.Reason), entry.Message, entry.Attempt, entry.MaxAttempts,
		entry.FailedAt, entry.ReplayCount, entry.ReplayedAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries matching the given options, newest failures
// first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `
		SELECT
			id, job_id, hook, fingerprint, lane, payload,
			reason, message, attempt, max_attempts,
			failed_at, replay_count, replayed_at, created_at
		FROM courier_dlq
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Hook != "" {
		query += fmt.Sprintf(" AND hook = $%d", argIdx)
		args = append(args, opts.Hook)
		argIdx++
	}
	if opts.Reason != "" {
		query += fmt.Sprintf(" AND reason = $%d", argIdx)
		args = append(args, string(opts.Reason))
		argIdx++
	}

	query += " ORDER BY failed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/postgres: scan dlq row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/postgres: iterate dlq rows: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, job_id, hook, fingerprint, lane, payload,
			reason, message, attempt, max_attempts,
			failed_at, replay_count, replayed_at, created_at
		FROM courier_dlq
		WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrDLQNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get dlq: %w", err)
	}
	return e, nil
}

// MarkReplayedDLQ increments the entry's replay count and stamps
// ReplayedAt.
func (s *Store) MarkReplayedDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE courier_dlq SET replay_count = replay_count + 1, replayed_at = NOW() WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: mark replayed dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrDLQNotFound
	}
	return nil
}

// DeleteDLQ removes a single entry by ID.
func (s *Store) DeleteDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM courier_dlq WHERE id = $1`, entryID.String())
	if err != nil {
		return fmt.Errorf("courier/postgres: delete dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes entries with FailedAt before the given time.
// Returns the number of entries removed.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM courier_dlq WHERE failed_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("courier/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries in the dead letter store.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM courier_dlq`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("courier/postgres: count dlq: %w", err)
	}
	return count, nil
}

// scanDLQ scans a single dead letter entry row.
func scanDLQ(row pgx.Row) (*dlq.Entry, error) {
	var (
		e         dlq.Entry
		idStr     string
		jobIDStr  string
		laneStr   string
		reasonStr string
	)
	err := row.Scan(
		&idStr, &jobIDStr, &e.Hook, &e.Fingerprint, &laneStr, &e.Payload,
		&reasonStr, &e.Message, &e.Attempt, &e.MaxAttempts,
		&e.FailedAt, &e.ReplayCount, &e.ReplayedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Lane = job.Lane(laneStr)
	e.Reason = dlq.Reason(reasonStr)

	parsedID, parseErr := id.ParseDLQID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/postgres: parse dlq id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedJobID, jobParseErr := id.ParseJobID(jobIDStr)
	if jobParseErr != nil {
		return nil, fmt.Errorf("courier/postgres: parse job id %q: %w", jobIDStr, jobParseErr)
	}
	e.JobID = parsedJobID

	return &e, nil
}
