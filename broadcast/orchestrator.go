package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/ext"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/ledger"
	"github.com/waveline/courier/retry"
)

// HookSendBatch is the job hook that sends one broadcast batch.
const HookSendBatch = "send_broadcast_batch"

// Recipient is one audience member of a campaign.
type Recipient struct {
	Phone string            `json:"phone"`
	Name  string            `json:"name,omitempty"`
	Vars  map[string]string `json:"vars,omitempty"`
}

// Audience enumerates the recipients eligible for a campaign.
// Implementations return at most limit recipients; the orchestrator
// passes its safety ceiling plus one so it can detect truncation.
type Audience interface {
	ListRecipients(ctx context.Context, limit int) ([]Recipient, error)
}

// Sender delivers a template message to one recipient.
type Sender interface {
	Send(ctx context.Context, template string, r Recipient) error
}

// Scheduler dispatches batch jobs. The scheduler service satisfies this.
type Scheduler interface {
	Schedule(ctx context.Context, hook string, args any, opts ...job.Option) (*job.Job, error)
}

// Orchestrator fans a campaign out to its audience as bulk batch jobs
// and owns the campaign record's lifecycle.
type Orchestrator struct {
	audience   Audience
	sender     Sender
	store      Store
	claims     *ledger.Ledger
	sched      Scheduler
	guard      *breaker.Breaker
	policy     retry.Policy
	extensions *ext.Registry
	logger     *slog.Logger

	batchSize     int
	maxRecipients int
	claimTTL      time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets how many recipients each batch job carries.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithMaxRecipients sets the audience safety ceiling. Larger audiences
// are truncated with a warning rather than processed whole.
func WithMaxRecipients(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRecipients = n
		}
	}
}

// WithBreaker sets the circuit breaker guarding sends.
func WithBreaker(b *breaker.Breaker) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.guard = b
		}
	}
}

// WithRetryPolicy sets the in-call retry policy for sends.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithClaimTTL sets the idempotency claim lifetime for recipient sends.
func WithClaimTTL(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.claimTTL = d
		}
	}
}

// WithExtensions wires an extension registry for campaign lifecycle
// notifications.
func WithExtensions(r *ext.Registry) Option {
	return func(o *Orchestrator) { o.extensions = r }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates a broadcast orchestrator. The breaker defaults
// to a "whatsapp" circuit with baseline settings and the retry policy to
// the best-effort preset; a promotional send is not worth hammering a
// struggling messaging API.
func NewOrchestrator(audience Audience, sender Sender, store Store, claims *ledger.Ledger, sched Scheduler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		audience:      audience,
		sender:        sender,
		store:         store,
		claims:        claims,
		sched:         sched,
		policy:        retry.BestEffort(),
		logger:        slog.Default(),
		batchSize:     50,
		maxRecipients: 10000,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.guard == nil {
		o.guard = breaker.New(breaker.DefaultSettings("whatsapp"))
	}
	return o
}

// Start launches a campaign: enumerate the audience, persist the
// campaign record, chunk, and dispatch one bulk job per chunk. An empty
// audience is an error; no campaign record is created for it. A dispatch
// failure partway through fails the campaign; batches dispatched before
// the failure still send.
func (o *Orchestrator) Start(ctx context.Context, name, template string) (*Campaign, error) {
	if name == "" {
		return nil, fmt.Errorf("broadcast: empty campaign name")
	}
	if template == "" {
		return nil, fmt.Errorf("broadcast: empty template for campaign %q", name)
	}

	recipients, err := o.enumerate(ctx)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("broadcast: no eligible recipients for campaign %q", name)
	}

	c := &Campaign{
		Entity:          courier.NewEntity(),
		ID:              id.NewCampaignID(),
		Name:            name,
		Template:        template,
		State:           StateRunning,
		TotalRecipients: len(recipients),
		StartedAt:       time.Now().UTC(),
	}
	if err := o.store.CreateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("broadcast: create campaign %q: %w", name, err)
	}

	if o.extensions != nil {
		o.extensions.EmitCampaignStarted(ctx, c.ID, len(recipients))
	}

	batches := chunkRecipients(recipients, o.batchSize)
	for i, batch := range batches {
		args := BatchArgs{
			CampaignID: c.ID,
			Template:   template,
			Batch:      i + 1,
			Batches:    len(batches),
			Recipients: batch,
		}
		if _, err := o.sched.Schedule(ctx, HookSendBatch, args, job.WithLane(job.LaneBulk)); err != nil {
			reason := fmt.Sprintf("dispatch batch %d/%d: %v", i+1, len(batches), err)
			if _, failErr := o.store.FailCampaign(ctx, c.ID, reason); failErr != nil {
				o.logger.Error("could not mark campaign failed",
					slog.String("campaign_id", c.ID.String()),
					slog.String("error", failErr.Error()))
			}
			return nil, fmt.Errorf("broadcast: %s", reason)
		}
		if _, err := o.store.IncrementCampaignCounters(ctx, c.ID, int64(len(batch)), 0, 0, 0); err != nil {
			o.logger.Warn("could not record queued count",
				slog.String("campaign_id", c.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	o.logger.Info("campaign dispatched",
		slog.String("campaign_id", c.ID.String()),
		slog.String("name", name),
		slog.Int("recipients", len(recipients)),
		slog.Int("batches", len(batches)))

	return o.store.GetCampaign(ctx, c.ID)
}

// Get returns one campaign by ID.
func (o *Orchestrator) Get(ctx context.Context, campaignID id.CampaignID) (*Campaign, error) {
	return o.store.GetCampaign(ctx, campaignID)
}

// List returns campaigns matching the options, newest first.
func (o *Orchestrator) List(ctx context.Context, opts ListOpts) ([]*Campaign, error) {
	return o.store.ListCampaigns(ctx, opts)
}

func (o *Orchestrator) enumerate(ctx context.Context) ([]Recipient, error) {
	recipients, err := o.audience.ListRecipients(ctx, o.maxRecipients+1)
	if err != nil {
		return nil, fmt.Errorf("broadcast: enumerate audience: %w", err)
	}
	if len(recipients) > o.maxRecipients {
		o.logger.Warn("audience hit the safety ceiling, truncating",
			slog.Int("ceiling", o.maxRecipients))
		recipients = recipients[:o.maxRecipients]
	}
	return recipients, nil
}

func chunkRecipients(recipients []Recipient, size int) [][]Recipient {
	var batches [][]Recipient
	for size < len(recipients) {
		batches = append(batches, recipients[:size:size])
		recipients = recipients[size:]
	}
	return append(batches, recipients)
}
