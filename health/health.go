// Package health aggregates queue depth, dead letter backlog, stale
// workers, and circuit state into a single verdict suitable for both
// an admin endpoint and standalone polling.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/job"
)

// Thresholds set the limits beyond which a Report turns unhealthy.
type Thresholds struct {
	// MaxDLQBacklog is the dead letter backlog tolerated before the
	// system is reported unhealthy. Zero disables the check.
	MaxDLQBacklog int64

	// MaxStuckJobs is the number of stale running jobs tolerated before
	// the system is reported unhealthy.
	MaxStuckJobs int

	// StuckAfter is how long a running job may go without a heartbeat
	// before it counts as stuck.
	StuckAfter time.Duration

	// MaxFailureRate is the failed over finished ratio tolerated before
	// the system is reported unhealthy. Zero disables the check.
	MaxFailureRate float64

	// FailureSampleMin is the minimum number of finished jobs before
	// the failure rate is considered meaningful.
	FailureSampleMin int64
}

// DefaultThresholds returns the limits used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxDLQBacklog:    100,
		MaxStuckJobs:     0,
		StuckAfter:       5 * time.Minute,
		MaxFailureRate:   0.5,
		FailureSampleMin: 20,
	}
}

// Report is a point-in-time snapshot of delivery health.
type Report struct {
	Healthy      bool                       `json:"healthy"`
	Reasons      []string                   `json:"reasons,omitempty"`
	Lanes        map[job.Lane]job.LaneStats `json:"lanes"`
	DLQBacklog   int64                      `json:"dlq_backlog"`
	StuckJobs    int                        `json:"stuck_jobs"`
	OpenBreakers []string                   `json:"open_breakers,omitempty"`
	CheckedAt    time.Time                  `json:"checked_at"`
}

// Checker runs the health probes. Construct with New.
type Checker struct {
	jobs       job.Store
	dead       dlq.Store
	breakers   *breaker.Registry
	thresholds Thresholds
	logger     *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithDLQStore enables the dead letter backlog probe.
func WithDLQStore(s dlq.Store) Option {
	return func(c *Checker) { c.dead = s }
}

// WithBreakers enables the open circuit probe.
func WithBreakers(r *breaker.Registry) Option {
	return func(c *Checker) { c.breakers = r }
}

// WithThresholds overrides DefaultThresholds.
func WithThresholds(t Thresholds) Option {
	return func(c *Checker) { c.thresholds = t }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// New creates a health checker over the given job store. Probes whose
// dependencies are not configured are skipped.
func New(jobs job.Store, opts ...Option) *Checker {
	c := &Checker{
		jobs:       jobs,
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Check runs every configured probe and returns the aggregate report.
// Probe failures never abort the check; they are folded into the report
// as reasons so the caller can still serve a degraded verdict.
func (c *Checker) Check(ctx context.Context) *Report {
	r := &Report{CheckedAt: time.Now().UTC()}

	stats, err := c.jobs.JobStatsByLane(ctx)
	if err != nil {
		c.logger.Warn("health: lane stats unavailable", slog.String("error", err.Error()))
		r.Reasons = append(r.Reasons, fmt.Sprintf("job store: %v", err))
	} else {
		r.Lanes = stats
		c.checkFailureRate(r, stats)
	}

	c.checkStuck(ctx, r)
	c.checkBacklog(ctx, r)
	c.checkBreakers(r)

	r.Healthy = len(r.Reasons) == 0
	return r
}

func (c *Checker) checkFailureRate(r *Report, stats map[job.Lane]job.LaneStats) {
	if c.thresholds.MaxFailureRate <= 0 {
		return
	}

	var completed, failed int64
	for _, s := range stats {
		completed += s.Completed
		failed += s.Failed
	}
	finished := completed + failed
	if finished < c.thresholds.FailureSampleMin {
		return
	}

	rate := float64(failed) / float64(finished)
	if rate > c.thresholds.MaxFailureRate {
		r.Reasons = append(r.Reasons, fmt.Sprintf(
			"failure rate %.0f%% exceeds %.0f%% over %d finished jobs",
			rate*100, c.thresholds.MaxFailureRate*100, finished))
	}
}

func (c *Checker) checkStuck(ctx context.Context, r *Report) {
	stale, err := c.jobs.ReapStaleJobs(ctx, c.thresholds.StuckAfter)
	if err != nil {
		c.logger.Warn("health: stale job probe failed", slog.String("error", err.Error()))
		r.Reasons = append(r.Reasons, fmt.Sprintf("stale job probe: %v", err))
		return
	}

	r.StuckJobs = len(stale)
	if r.StuckJobs > c.thresholds.MaxStuckJobs {
		r.Reasons = append(r.Reasons, fmt.Sprintf(
			"%d running jobs with stale heartbeats", r.StuckJobs))
	}
}

func (c *Checker) checkBacklog(ctx context.Context, r *Report) {
	if c.dead == nil {
		return
	}

	backlog, err := c.dead.CountDLQ(ctx)
	if err != nil {
		c.logger.Warn("health: dead letter probe failed", slog.String("error", err.Error()))
		r.Reasons = append(r.Reasons, fmt.Sprintf("dead letter probe: %v", err))
		return
	}

	r.DLQBacklog = backlog
	if c.thresholds.MaxDLQBacklog > 0 && backlog > c.thresholds.MaxDLQBacklog {
		r.Reasons = append(r.Reasons, fmt.Sprintf(
			"dead letter backlog %d exceeds %d", backlog, c.thresholds.MaxDLQBacklog))
	}
}

func (c *Checker) checkBreakers(r *Report) {
	if c.breakers == nil {
		return
	}

	open := c.breakers.Open()
	sort.Strings(open)
	r.OpenBreakers = open
	for _, name := range open {
		r.Reasons = append(r.Reasons, fmt.Sprintf("circuit %q open", name))
	}
}
