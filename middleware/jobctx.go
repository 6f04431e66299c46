package middleware

import (
	"context"

	"github.com/waveline/courier/job"
)

type jobCtxKey struct{}

// JobContext returns middleware that injects the executing job into the
// handler context. Code deep inside a handler (outbound clients, batch
// helpers) can recover the job identity with [FromContext] to tag logs
// and idempotency keys without threading the job through every call.
func JobContext() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx = context.WithValue(ctx, jobCtxKey{}, j)
		return next(ctx)
	}
}

// FromContext returns the job injected by [JobContext], if any.
func FromContext(ctx context.Context) (*job.Job, bool) {
	j, ok := ctx.Value(jobCtxKey{}).(*job.Job)
	return j, ok
}
