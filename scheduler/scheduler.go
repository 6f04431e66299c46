package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/cron"
	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/ext"
	"github.com/waveline/courier/job"
)

// Service is the caller-facing scheduling facade. It validates work before
// it is persisted, fans enqueue notifications out to extensions, and
// exposes the pending/cancel/stats queries callers use to reason about
// in-flight work.
//
// All failures surface as returned errors. A rejected schedule never
// panics and never leaves a half-built job behind.
type Service struct {
	store      job.Store
	crons      cron.Store
	dlqStore   dlq.Store
	extensions *ext.Registry
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCronStore enables ScheduleRecurring by providing cron persistence.
func WithCronStore(cs cron.Store) Option {
	return func(s *Service) { s.crons = cs }
}

// WithDLQStore lets FailedJobs merge dead letter entries into its view.
func WithDLQStore(ds dlq.Store) Option {
	return func(s *Service) { s.dlqStore = ds }
}

// WithExtensions wires an extension registry for enqueue notifications.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Service) { s.extensions = r }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a scheduling service over the given job store.
func New(store job.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule enqueues a job for the given hook. The args are serialized into
// the job payload and fingerprinted so IsPending and Cancel can match on
// identity later. Execution is always asynchronous: with no delay option
// the job becomes eligible at the next worker pickup.
func (s *Service) Schedule(ctx context.Context, hook string, args any, opts ...job.Option) (*job.Job, error) {
	j, err := job.New(hook, args, opts...)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	if err := s.store.EnqueueJob(ctx, j); err != nil {
		return nil, fmt.Errorf("scheduler: enqueue %q: %w", hook, err)
	}

	if s.extensions != nil {
		s.extensions.EmitJobEnqueued(ctx, j)
	}

	s.logger.Info("job scheduled",
		slog.String("job_id", j.ID.String()),
		slog.String("hook", j.Hook),
		slog.String("lane", string(j.Lane)),
		slog.Time("run_at", j.RunAt))

	return j, nil
}

// ScheduleRecurring registers a recurring schedule that enqueues the hook
// every interval. One recurring schedule exists per hook: registering the
// same hook again returns the existing entry, so process restarts can
// re-declare their schedules without error.
//
// The entry is persisted only; the cron scheduler picks it up on its next
// tick and fires it on every interval boundary from then on.
func (s *Service) ScheduleRecurring(ctx context.Context, hook string, args any, every time.Duration, lane job.Lane) (*cron.Entry, error) {
	if s.crons == nil {
		return nil, fmt.Errorf("scheduler: recurring unavailable: no cron store configured")
	}
	if every <= 0 {
		return nil, fmt.Errorf("scheduler: recurring interval must be positive, got %s", every)
	}

	entry, err := cron.NewEntry(hook, "@every "+every.String(), hook, args, lane)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	if err := s.crons.RegisterCron(ctx, entry); err != nil {
		if errors.Is(err, courier.ErrDuplicateCron) {
			return s.crons.GetCronByName(ctx, hook)
		}
		return nil, fmt.Errorf("scheduler: register recurring %q: %w", hook, err)
	}

	s.logger.Info("recurring schedule registered",
		slog.String("entry_id", entry.ID.String()),
		slog.String("hook", hook),
		slog.String("schedule", entry.Schedule),
		slog.String("lane", string(lane)))

	return entry, nil
}

// Cancel removes every pending and retrying job for the hook and returns
// how many were cancelled. Jobs already running are never interrupted;
// they finish (or fail) on their own.
func (s *Service) Cancel(ctx context.Context, hook string) (int64, error) {
	return s.cancel(ctx, hook, "")
}

// CancelMatching removes pending and retrying jobs for the hook whose args
// match the given ones, and returns how many were cancelled.
func (s *Service) CancelMatching(ctx context.Context, hook string, args any) (int64, error) {
	fp, err := job.Fingerprint(hook, args)
	if err != nil {
		return 0, fmt.Errorf("scheduler: %w", err)
	}
	return s.cancel(ctx, hook, fp)
}

func (s *Service) cancel(ctx context.Context, hook, fingerprint string) (int64, error) {
	n, err := s.store.CancelJobs(ctx, hook, fingerprint)
	if err != nil {
		return 0, fmt.Errorf("scheduler: cancel %q: %w", hook, err)
	}
	if n > 0 {
		s.logger.Info("jobs cancelled",
			slog.String("hook", hook),
			slog.Int64("count", n))
	}
	return n, nil
}

// IsPending reports whether a job for the hook with these exact args is
// waiting or retrying. Running and terminal jobs do not count.
func (s *Service) IsPending(ctx context.Context, hook string, args any) (bool, error) {
	fp, err := job.Fingerprint(hook, args)
	if err != nil {
		return false, fmt.Errorf("scheduler: %w", err)
	}
	return s.store.HasPendingJob(ctx, hook, fp)
}

// Stats returns per-lane job counts broken down by state.
func (s *Service) Stats(ctx context.Context) (map[job.Lane]job.LaneStats, error) {
	return s.store.JobStatsByLane(ctx)
}
