// Package engine wires all courier subsystems together. It creates the
// extension registry, job registry, middleware chain, worker pool, cron
// scheduler, and the delivery-reliability services (dead letters,
// idempotency ledger, sync progress, circuit breakers, health).
//
// This package exists to break the import cycle: the root courier package
// defines Entity (imported by job, dlq, broadcast, etc.) and so cannot
// import those packages back. The engine package sits above all subsystem
// packages and below the application layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/waveline/courier"
	"github.com/waveline/courier/backoff"
	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/cron"
	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/ext"
	"github.com/waveline/courier/health"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/ledger"
	mw "github.com/waveline/courier/middleware"
	"github.com/waveline/courier/observability"
	"github.com/waveline/courier/progress"
	"github.com/waveline/courier/queue"
	sched "github.com/waveline/courier/scheduler"
	"github.com/waveline/courier/store"
	"github.com/waveline/courier/worker"
)

// extSyncNotifier adapts *ext.Registry to satisfy progress.Notifier.
// This breaks the import cycle: progress defines the interface,
// ext.Registry provides the implementation, and the engine layer
// plugs them together.
type extSyncNotifier struct {
	r *ext.Registry
}

func (a *extSyncNotifier) SyncStarted(ctx context.Context, run *progress.Run) {
	a.r.EmitSyncStarted(ctx, run)
}

func (a *extSyncNotifier) SyncCompleted(ctx context.Context, run *progress.Run, elapsed time.Duration) {
	a.r.EmitSyncCompleted(ctx, run, elapsed)
}

func (a *extSyncNotifier) SyncFailed(ctx context.Context, run *progress.Run, reason string) {
	a.r.EmitSyncFailed(ctx, run, reason)
}

// Engine wraps a Courier with typed subsystem access.
// Use Build() to create one from a Courier.
type Engine struct {
	c          *courier.Courier
	store      store.Store
	extensions *ext.Registry
	registry   *job.Registry
	jobs       *sched.Service
	dlqService *dlq.Service
	claims     *ledger.Ledger
	tracker    *progress.Tracker
	breakers   *breaker.Registry
	checker    *health.Checker
	bo         backoff.Strategy
	pool       *worker.Pool
	scheduler  *cron.Scheduler
	mws        []mw.Middleware
	logger     *slog.Logger

	// Lane subsystem.
	laneConfigs  []queue.Config
	queueManager *queue.Manager

	// Breaker and health thresholds (optional; nil means defaults).
	breakerDefaults  *breaker.Settings
	healthThresholds *health.Thresholds

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy for the engine.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithLaneConfig registers lane-level rate limiting and concurrency
// configurations. Lanes not listed have no limits.
func WithLaneConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.laneConfigs = append(eng.laneConfigs, configs...)
	}
}

// WithBreakerDefaults sets the default settings inherited by every
// breaker created through the engine's registry. If not set,
// breaker.DefaultSettings is used.
func WithBreakerDefaults(s breaker.Settings) Option {
	return func(eng *Engine) {
		eng.breakerDefaults = &s
	}
}

// WithHealthThresholds overrides the health checker's thresholds.
func WithHealthThresholds(t health.Thresholds) Option {
	return func(eng *Engine) {
		eng.healthThresholds = &t
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Courier.
// The Courier's store must implement store.Store.
func Build(c *courier.Courier, opts ...Option) (*Engine, error) {
	logger := c.Logger()
	st := c.Store()

	if st == nil {
		return nil, courier.ErrNoStore
	}

	// Type-assert the store to get the aggregate store.Store interface.
	ss, ok := st.(store.Store)
	if !ok {
		return nil, fmt.Errorf("courier: store does not implement store.Store")
	}

	eng := &Engine{
		c:          c,
		store:      ss,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	// Default backoff strategy if none provided.
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	// Create the job scheduling facade. It doubles as the DLQ replay
	// enqueuer and the cron enqueue function.
	eng.jobs = sched.New(ss,
		sched.WithCronStore(ss),
		sched.WithDLQStore(ss),
		sched.WithExtensions(eng.extensions),
		sched.WithLogger(logger),
	)

	// Create the DLQ service.
	eng.dlqService = dlq.NewService(ss, eng.jobs)

	// Create the idempotency ledger.
	eng.claims = ledger.New(ss, logger)

	// Create the breaker registry. State transitions flow to extensions.
	bd := breaker.DefaultSettings("")
	if eng.breakerDefaults != nil {
		bd = *eng.breakerDefaults
	}
	eng.breakers = breaker.NewRegistry(bd, func(change breaker.StateChange) {
		eng.extensions.EmitBreakerStateChange(context.Background(), change)
	})

	// Create the sync progress tracker. The store provides both the
	// progress slot and the named lock that serializes syncs.
	eng.tracker = progress.New(ss, ss, logger,
		progress.WithNotifier(&extSyncNotifier{r: eng.extensions}),
	)

	// Create the health checker.
	healthOpts := []health.Option{
		health.WithDLQStore(ss),
		health.WithBreakers(eng.breakers),
		health.WithLogger(logger),
	}
	if eng.healthThresholds != nil {
		healthOpts = append(healthOpts, health.WithThresholds(*eng.healthThresholds))
	}
	eng.checker = health.New(ss, healthOpts...)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/waveline/courier")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/waveline/courier")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/waveline/courier/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Build default middleware stack: recover → tracing → metrics → logging → jobctx → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.JobContext(),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	// Create executor and pool.
	config := c.Config()
	executor := worker.NewExecutor(eng.registry, eng.extensions, ss, eng.dlqService, eng.bo, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPollInterval(config.PollInterval),
		worker.WithFairnessCycle(config.FairnessCycle),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithStaleJobThreshold(config.StaleJobThreshold),
	}

	// Create queue manager if lane configs were provided.
	if len(eng.laneConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.laneConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}

	eng.pool = worker.NewPool(
		ss,
		executor,
		eng.extensions,
		logger,
		poolOpts...,
	)

	// Wire back into the Courier.
	c.SetPool(eng.pool)
	c.SetHooks(eng.extensions)

	// Create the cron scheduler. Due entries flow through the job
	// scheduling facade so that enqueue hooks fire for cron jobs too.
	eng.scheduler = cron.NewScheduler(ss, ss, eng.jobs.EnqueueRaw, eng.extensions, logger)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Schedule creates and enqueues a job through the scheduling facade.
func (eng *Engine) Schedule(ctx context.Context, hook string, args any, opts ...job.Option) (*job.Job, error) {
	return eng.jobs.Schedule(ctx, hook, args, opts...)
}

// Start begins job processing by starting the cron scheduler and the
// worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	// Start the cron scheduler before the pool so due entries are
	// already flowing when workers come up.
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start cron scheduler: %w", err)
	}

	return eng.c.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	// Stop the cron scheduler first so nothing new is enqueued while
	// the pool drains.
	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("cron scheduler stop error", slog.String("error", err.Error()))
	}

	return eng.c.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Courier returns the underlying Courier.
func (eng *Engine) Courier() *courier.Courier { return eng.c }

// Store returns the aggregate store.
func (eng *Engine) Store() store.Store { return eng.store }

// Jobs returns the job scheduling facade.
func (eng *Engine) Jobs() *sched.Service { return eng.jobs }

// DLQService returns the engine's dead letter service for replay and
// inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// Claims returns the idempotency ledger.
func (eng *Engine) Claims() *ledger.Ledger { return eng.claims }

// Progress returns the sync progress tracker.
func (eng *Engine) Progress() *progress.Tracker { return eng.tracker }

// Breakers returns the circuit breaker registry.
func (eng *Engine) Breakers() *breaker.Registry { return eng.breakers }

// Health returns the health checker.
func (eng *Engine) Health() *health.Checker { return eng.checker }

// Scheduler returns the cron scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// QueueManager returns the queue manager, or nil if no lane configs
// were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// RegisterRecurring registers a typed cron definition with the engine.
// It validates the schedule expression, computes the initial NextRunAt,
// and persists the entry. Re-registration of the same name is idempotent.
func RegisterRecurring[T any](ctx context.Context, eng *Engine, def *cron.Definition[T]) error {
	entry, err := cron.NewEntry(def.Name, def.Schedule, def.Hook, def.Args, def.Lane)
	if err != nil {
		return fmt.Errorf("cron definition %q: %w", def.Name, err)
	}

	if err := eng.store.RegisterCron(ctx, entry); err != nil {
		// Idempotent: ignore duplicate cron entries.
		if errors.Is(err, courier.ErrDuplicateCron) {
			return nil
		}
		return fmt.Errorf("register cron %q: %w", def.Name, err)
	}

	eng.logger.Info("cron registered",
		slog.String("name", def.Name),
		slog.String("schedule", def.Schedule),
		slog.String("hook", def.Hook),
	)

	return nil
}
