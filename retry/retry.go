// Package retry provides bounded in-call retry policies for outbound
// dependency calls made from job handlers.
//
// Retry here is a separate concern from job-level re-runs: the worker
// pool re-schedules a whole job on failure with its own backoff, while a
// retry.Policy absorbs short transient blips (network resets, rate
// limits) inside a single handler invocation. Policies are parameterized
// per dependency; payment confirmation calls run a more aggressive
// policy than best-effort notification sends.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/waveline/courier/backoff"
	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/job"
)

// Policy is a bounded-attempt retry loop with pluggable backoff and
// error classification.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Backoff computes the delay before each retry.
	Backoff backoff.Strategy

	// Classify reports whether an error is worth retrying. Nil means
	// DefaultClassify.
	Classify func(error) bool
}

// DefaultClassify retries everything except permanent failures, open
// circuits, and caller cancellation. An open circuit means the
// dependency is known-down; retrying inside the same call would only
// hammer the probe window.
func DefaultClassify(err error) bool {
	switch {
	case job.IsPermanent(err):
		return false
	case errors.Is(err, breaker.ErrOpen):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// DefaultPolicy returns the baseline policy: 3 attempts with jittered
// exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     backoff.DefaultStrategy(),
	}
}

// Aggressive returns the policy for must-deliver calls such as payment
// confirmations: 5 attempts, fast initial retry.
func Aggressive() Policy {
	return Policy{
		MaxAttempts: 5,
		Backoff:     backoff.NewExponentialWithJitter(500*time.Millisecond, 10*time.Second),
	}
}

// BestEffort returns the policy for low-stakes sends such as
// re-engagement nudges: 2 attempts, short fixed pause.
func BestEffort() Policy {
	return Policy{
		MaxAttempts: 2,
		Backoff:     backoff.NewConstant(time.Second),
	}
}

// Do runs op until it succeeds, exhausts the attempt budget, or fails
// with a non-retryable error. The error from the final attempt is
// returned unwrapped so callers can classify it themselves.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	strategy := p.Backoff
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}
	classify := p.Classify
	if classify == nil {
		classify = DefaultClassify
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if !classify(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		if delay := strategy.Delay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return err
}
