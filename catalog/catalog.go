package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/ledger"
	"github.com/waveline/courier/progress"
	"github.com/waveline/courier/retry"
)

// HookSyncBatch is the job hook that processes one catalog sync batch.
const HookSyncBatch = "catalog_sync_batch"

// Item is one catalog entry headed for the outbound commerce catalog.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	ImageURL    string `json:"image_url,omitempty"`
	Available   bool   `json:"available"`
}

// Source enumerates the items eligible for sync. Implementations return
// at most limit items; the syncer passes its safety ceiling plus one so
// it can detect and log truncation.
type Source interface {
	ListItems(ctx context.Context, limit int) ([]Item, error)
}

// Pusher upserts one item into the outbound catalog API. Pushes are
// keyed by item ID on the remote side, so re-pushing an item is safe.
type Pusher interface {
	PushItem(ctx context.Context, item Item) error
}

// Scheduler dispatches batch jobs. The scheduler service satisfies this.
type Scheduler interface {
	Schedule(ctx context.Context, hook string, args any, opts ...job.Option) (*job.Job, error)
}

// Syncer runs full catalog syncs: it enumerates the source, opens one
// tracked run, and fans the items out as bulk batch jobs. The batch
// handler does the pushing; see HandleBatch.
type Syncer struct {
	source  Source
	pusher  Pusher
	tracker *progress.Tracker
	claims  *ledger.Ledger
	sched   Scheduler
	guard   *breaker.Breaker
	policy  retry.Policy
	logger  *slog.Logger

	batchSize int
	maxItems  int
	claimTTL  time.Duration
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithBatchSize sets how many items each batch job carries.
func WithBatchSize(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMaxItems sets the enumeration safety ceiling. Enumerations larger
// than this are truncated with a warning rather than processed whole.
func WithMaxItems(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.maxItems = n
		}
	}
}

// WithBreaker sets the circuit breaker guarding pushes.
func WithBreaker(b *breaker.Breaker) Option {
	return func(s *Syncer) {
		if b != nil {
			s.guard = b
		}
	}
}

// WithRetryPolicy sets the in-call retry policy for pushes.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Syncer) { s.policy = p }
}

// WithClaimTTL sets the idempotency claim lifetime for item outcomes.
func WithClaimTTL(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.claimTTL = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSyncer creates a catalog syncer. The breaker defaults to a
// "catalog" circuit with baseline settings and the retry policy to the
// default bounded policy.
func NewSyncer(source Source, pusher Pusher, tracker *progress.Tracker, claims *ledger.Ledger, sched Scheduler, opts ...Option) *Syncer {
	s := &Syncer{
		source:    source,
		pusher:    pusher,
		tracker:   tracker,
		claims:    claims,
		sched:     sched,
		policy:    retry.DefaultPolicy(),
		logger:    slog.Default(),
		batchSize: 50,
		maxItems:  10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.guard == nil {
		s.guard = breaker.New(breaker.DefaultSettings("catalog"))
	}
	return s
}

// Run starts a full catalog sync: enumerate, open one tracked run, chunk,
// and dispatch one bulk job per chunk. It returns the run's sync ID.
//
// A source that yields zero items is an error; no empty run is created.
// If a run is already in progress, Run returns its ID wrapped in
// courier.ErrSyncInProgress. A dispatch failure partway through fails
// the run rather than leaving it to stall; batches dispatched before the
// failure still execute and their updates are dropped against the failed
// run.
func (s *Syncer) Run(ctx context.Context) (id.SyncID, error) {
	items, err := s.enumerate(ctx)
	if err != nil {
		return id.Nil, err
	}
	if len(items) == 0 {
		return id.Nil, fmt.Errorf("catalog: no items eligible for sync")
	}

	syncID, started, err := s.tracker.Start(ctx, len(items))
	if err != nil {
		return id.Nil, fmt.Errorf("catalog: start sync: %w", err)
	}
	if !started {
		return syncID, fmt.Errorf("catalog: sync %s already running: %w", syncID, courier.ErrSyncInProgress)
	}

	batches := chunkItems(items, s.batchSize)
	for i, batch := range batches {
		args := BatchArgs{
			SyncID:  syncID,
			Batch:   i + 1,
			Batches: len(batches),
			Items:   batch,
		}
		if _, err := s.sched.Schedule(ctx, HookSyncBatch, args, job.WithLane(job.LaneBulk)); err != nil {
			reason := fmt.Sprintf("dispatch batch %d/%d: %v", i+1, len(batches), err)
			if _, failErr := s.tracker.Fail(ctx, syncID, reason); failErr != nil {
				s.logger.Error("could not mark sync failed",
					slog.String("sync_id", syncID.String()),
					slog.String("error", failErr.Error()))
			}
			return syncID, fmt.Errorf("catalog: %s", reason)
		}
	}

	s.logger.Info("catalog sync dispatched",
		slog.String("sync_id", syncID.String()),
		slog.Int("items", len(items)),
		slog.Int("batches", len(batches)))
	return syncID, nil
}

// Progress returns the current run snapshot, or courier.ErrNoActiveSync
// when no run record exists.
func (s *Syncer) Progress(ctx context.Context) (*progress.Snapshot, error) {
	return s.tracker.Snapshot(ctx)
}

func (s *Syncer) enumerate(ctx context.Context) ([]Item, error) {
	items, err := s.source.ListItems(ctx, s.maxItems+1)
	if err != nil {
		return nil, fmt.Errorf("catalog: enumerate items: %w", err)
	}
	if len(items) > s.maxItems {
		s.logger.Warn("catalog enumeration hit the safety ceiling, truncating",
			slog.Int("ceiling", s.maxItems))
		items = items[:s.maxItems]
	}
	return items, nil
}

func chunkItems(items []Item, size int) [][]Item {
	var batches [][]Item
	for size < len(items) {
		batches = append(batches, items[:size:size])
		items = items[size:]
	}
	return append(batches, items)
}
