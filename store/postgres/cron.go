package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/waveline/courier"
	"github.com/waveline/courier/cron"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// RegisterCron persists a new cron entry. Returns
// courier.ErrDuplicateCron if the name already exists.
func (s *Store) RegisterCron(ctx context.Context, entry *cron.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO courier_cron_entries (
			id, name, schedule, hook, lane, args,
			last_run_at, next_run_at, enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID.String(), entry.Name, entry.Schedule, entry.Hook,
		string(entry.Lane), entry.Args,
		entry.LastRunAt, entry.NextRunAt, entry.Enabled,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return courier.ErrDuplicateCron
		}
		return fmt.Errorf("courier/postgres: register cron: %w", err)
	}
	return nil
}

// GetCron retrieves a cron entry by ID.
func (s *Store) GetCron(ctx context.Context, entryID id.CronID) (*cron.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, name, schedule, hook, lane, args,
			last_run_at, next_run_at, enabled, created_at, updated_at
		FROM courier_cron_entries
		WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanCron(row)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrCronNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get cron: %w", err)
	}
	return e, nil
}

// GetCronByName retrieves a cron entry by its unique name.
func (s *Store) GetCronByName(ctx context.Context, name string) (*cron.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, name, schedule, hook, lane, args,
			last_run_at, next_run_at, enabled, created_at, updated_at
		FROM courier_cron_entries
		WHERE name = $1`,
		name,
	)

	e, err := scanCron(row)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrCronNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get cron by name: %w", err)
	}
	return e, nil
}

// ListCrons returns all cron entries.
func (s *Store) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			id, name, schedule, hook, lane, args,
			last_run_at, next_run_at, enabled, created_at, updated_at
		FROM courier_cron_entries
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: list crons: %w", err)
	}
	defer rows.Close()

	var entries []*cron.Entry
	for rows.Next() {
		e, scanErr := scanCron(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/postgres: scan cron row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/postgres: iterate cron rows: %w", err)
	}
	return entries, nil
}

// UpdateCronLastRun records when a cron entry last fired.
func (s *Store) UpdateCronLastRun(ctx context.Context, entryID id.CronID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE courier_cron_entries
		SET last_run_at = $2, updated_at = NOW()
		WHERE id = $1`,
		entryID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: update cron last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrCronNotFound
	}
	return nil
}

// UpdateCronEntry updates a cron entry (Enabled, NextRunAt, etc.).
func (s *Store) UpdateCronEntry(ctx context.Context, entry *cron.Entry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE courier_cron_entries SET
			name = $2, schedule = $3, hook = $4, lane = $5, args = $6,
			last_run_at = $7, next_run_at = $8,
			enabled = $9, updated_at = NOW()
		WHERE id = $1`,
		entry.ID.String(), entry.Name, entry.Schedule, entry.Hook,
		string(entry.Lane), entry.Args,
		entry.LastRunAt, entry.NextRunAt,
		entry.Enabled,
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: update cron entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrCronNotFound
	}
	return nil
}

// DeleteCron removes a cron entry by ID.
func (s *Store) DeleteCron(ctx context.Context, entryID id.CronID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM courier_cron_entries WHERE id = $1`, entryID.String())
	if err != nil {
		return fmt.Errorf("courier/postgres: delete cron: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrCronNotFound
	}
	return nil
}

// scanCron scans a single cron entry row.
func scanCron(row pgx.Row) (*cron.Entry, error) {
	var (
		e       cron.Entry
		idStr   string
		laneStr string
	)
	err := row.Scan(
		&idStr, &e.Name, &e.Schedule, &e.Hook, &laneStr, &e.Args,
		&e.LastRunAt, &e.NextRunAt, &e.Enabled, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Lane = job.Lane(laneStr)

	parsedID, parseErr := id.ParseCronID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/postgres: parse cron id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	return &e, nil
}
