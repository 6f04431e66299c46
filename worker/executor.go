// Package worker provides the job execution engine: an Executor that
// invokes registered handlers through middleware, and a Pool that
// manages concurrent worker goroutines polling the lanes for jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/waveline/courier/backoff"
	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/ext"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/middleware"
)

// Executor runs a single job through middleware and the registered handler,
// then handles retry logic, dead-letter routing, state updates, and
// lifecycle events.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	dlqService *dlq.Service
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	dlqService *dlq.Service,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		dlqService: dlqService,
		backoff:    bo,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a job through the middleware chain and handler.
//
// The payload envelope is decoded exactly once, here. Jobs whose envelope
// cannot be decoded, or whose hook has no registered handler, can never
// execute and are dead-lettered as poison without burning attempts.
//
// On success: marks completed, emits JobCompleted.
// On retryable failure with attempts remaining: marks retrying with
// backoff, emits JobRetrying.
// On exhausted attempts: marks failed, pushes to the dead letter store
// with reason MAX_RETRIES, emits JobFailed + JobDLQ. Permanent failures
// take the same path immediately with reason POISON.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	env, decodeErr := job.DecodeEnvelope(j.Payload)
	if decodeErr != nil {
		if errors.Is(decodeErr, job.ErrBadEnvelope) {
			j.LastError = decodeErr.Error()
			return e.sendToDLQ(ctx, j, decodeErr, dlq.ReasonPoison)
		}
		return decodeErr
	}

	handler, ok := e.registry.Get(j.Hook)
	if !ok {
		noHandler := fmt.Errorf("no handler registered for hook %q", j.Hook)
		j.LastError = noHandler.Error()
		return e.sendToDLQ(ctx, j, noHandler, dlq.ReasonPoison)
	}

	start := time.Now()

	// The terminal handler that calls the registered hook handler with
	// the unwrapped args.
	terminal := func(ctx context.Context) error {
		return handler(ctx, env.Args)
	}

	// Run through middleware chain.
	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	now := time.Now().UTC()
	j.UpdatedAt = now

	if err != nil {
		return e.handleFailure(ctx, j, err, now)
	}

	return e.handleSuccess(ctx, j, now, elapsed)
}

// handleSuccess marks the job as completed and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, now time.Time, elapsed time.Duration) error {
	j.State = job.StateCompleted
	j.CompletedAt = &now

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job after success",
			slog.String("job_id", j.ID.String()),
			slog.String("hook", j.Hook),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleFailure consumes an attempt and either retries or dead-letters.
// Permanent errors skip the remaining attempt budget.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error, now time.Time) error {
	j.Attempt++
	j.LastError = handlerErr.Error()

	if job.IsPermanent(handlerErr) {
		e.logger.Warn("job failed permanently, skipping retries",
			slog.String("job_id", j.ID.String()),
			slog.String("hook", j.Hook),
			slog.Int("attempt", j.Attempt),
			slog.String("error", handlerErr.Error()),
		)
		return e.sendToDLQ(ctx, j, handlerErr, dlq.ReasonPoison)
	}

	if !j.Exhausted() {
		return e.scheduleRetry(ctx, j, now)
	}

	return e.sendToDLQ(ctx, j, handlerErr, dlq.ReasonMaxRetries)
}

// scheduleRetry sets the job to StateRetrying with a backoff delay.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, now time.Time) error {
	delay := e.backoff.Delay(j.Attempt)
	nextRunAt := now.Add(delay)
	j.RunAt = nextRunAt
	j.State = job.StateRetrying

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobRetrying(ctx, j, j.Attempt, nextRunAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("hook", j.Hook),
		slog.Int("attempt", j.Attempt),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s attempt %d/%d: %w", j.Hook, j.Attempt, j.MaxAttempts, fmt.Errorf("%s", j.LastError))
}

// sendToDLQ marks the job as failed, pushes it to the dead letter store,
// and emits events.
func (e *Executor) sendToDLQ(ctx context.Context, j *job.Job, handlerErr error, reason dlq.Reason) error {
	j.State = job.StateFailed

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job as failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	if e.dlqService != nil {
		if _, dlqErr := e.dlqService.Push(ctx, j, reason, handlerErr); dlqErr != nil {
			e.logger.Error("failed to push job to dead letter store",
				slog.String("job_id", j.ID.String()),
				slog.String("error", dlqErr.Error()),
			)
		}
	}

	e.extensions.EmitJobFailed(ctx, j, handlerErr)
	e.extensions.EmitJobDLQ(ctx, j, handlerErr)

	e.logger.Warn("job moved to dead letter store",
		slog.String("job_id", j.ID.String()),
		slog.String("hook", j.Hook),
		slog.String("reason", string(reason)),
		slog.Int("attempt", j.Attempt),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}
