package job

import "time"

// Options configures per-job behavior such as retries, lane, and timeout.
type Options struct {
	// MaxAttempts is the total number of execution attempts before the
	// job is sent to the dead letter store.
	MaxAttempts int

	// Lane is the priority lane this job dispatches through.
	Lane Lane

	// Timeout is the maximum duration a job may run before being cancelled.
	Timeout time.Duration

	// RunAt schedules the job for future execution. Zero means immediate.
	RunAt time.Time
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Lane:        LaneNormal,
		Timeout:     5 * time.Minute,
	}
}

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithMaxAttempts sets the total number of execution attempts.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithLane sets the priority lane for the job.
func WithLane(l Lane) Option {
	return func(o *Options) {
		o.Lane = l
	}
}

// WithTimeout sets the maximum execution duration for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithRunAt schedules the job for execution at a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) {
		o.RunAt = t
	}
}

// WithDelay schedules the job for execution after the given duration.
// Zero or negative means "next worker pickup", never synchronous.
func WithDelay(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.RunAt = time.Now().UTC().Add(d)
		}
	}
}
