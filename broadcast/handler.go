package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/ledger"
)

// BatchArgs is the payload for one broadcast batch job.
type BatchArgs struct {
	CampaignID id.CampaignID `json:"campaign_id"`
	Template   string        `json:"template"`
	Batch      int           `json:"batch"`
	Batches    int           `json:"batches"`
	Recipients []Recipient   `json:"recipients"`
}

// Definition returns the batch job definition for registration with the
// job registry.
func (o *Orchestrator) Definition() *job.Definition[BatchArgs] {
	return job.NewDefinition(HookSendBatch, o.HandleBatch,
		job.WithLane(job.LaneBulk),
		job.WithMaxAttempts(3),
		job.WithTimeout(10*time.Minute))
}

// HandleBatch sends one batch of recipients and reports the outcomes to
// the campaign's counters.
//
// A per-recipient claim is taken before the send, so a customer is
// never messaged twice no matter how often the batch re-runs. Sent and
// Failed are exact: only the attempt that wins a recipient's claim
// records their send outcome. Skipped counts sends suppressed by an
// existing claim, so a redelivered batch re-accounts its recipients as
// skipped and the campaign still converges on completion. Counters are
// flushed in one atomic increment at the end of the attempt; an attempt
// that fails partway reports nothing and leaves the accounting to its
// retry.
//
// An open circuit defers the batch instead of burning claims against a
// messaging API that is known-down. Recipient-level send failures are
// tolerated and counted; only infrastructure errors propagate to the
// host retry path.
func (o *Orchestrator) HandleBatch(ctx context.Context, args BatchArgs) error {
	if len(args.Recipients) == 0 {
		return nil
	}

	var sent, failed, skipped int64
	for i, r := range args.Recipients {
		if o.guard.State() == breaker.StateOpen {
			return fmt.Errorf("broadcast: batch %d/%d deferred after %d of %d recipients: %w",
				args.Batch, args.Batches, i, len(args.Recipients), breaker.ErrOpen)
		}

		key := ledger.Key("broadcast_send", args.CampaignID.String(), r.Phone)
		won, err := o.claims.Claim(ctx, key, o.claimTTL)
		if err != nil {
			return fmt.Errorf("broadcast: claim recipient %s: %w", r.Phone, err)
		}
		if !won {
			skipped++
			continue
		}

		sendErr := o.send(ctx, args.Template, r)
		if sendErr == nil {
			sent++
			continue
		}
		if errors.Is(sendErr, breaker.ErrOpen) {
			// The circuit opened between the state check and the send.
			// The recipient stays claimed and unaccounted here; the
			// retry records them as skipped.
			return fmt.Errorf("broadcast: batch %d/%d deferred after %d of %d recipients: %w",
				args.Batch, args.Batches, i, len(args.Recipients), breaker.ErrOpen)
		}

		failed++
		o.logger.Warn("send failed",
			slog.String("campaign_id", args.CampaignID.String()),
			slog.String("recipient", r.Phone),
			slog.String("error", sendErr.Error()))
	}

	c, err := o.store.IncrementCampaignCounters(ctx, args.CampaignID, 0, sent, failed, skipped)
	if err != nil {
		return fmt.Errorf("broadcast: record batch %d/%d outcomes: %w", args.Batch, args.Batches, err)
	}

	o.maybeComplete(ctx, c)
	return nil
}

// maybeComplete finishes the campaign once every recipient is accounted
// for. The store-side state transition admits exactly one finisher, so
// concurrent batch completions produce a single notification.
func (o *Orchestrator) maybeComplete(ctx context.Context, c *Campaign) {
	if c.State != StateRunning || c.Accounted() < int64(c.TotalRecipients) {
		return
	}

	changed, err := o.store.CompleteCampaign(ctx, c.ID)
	if err != nil {
		o.logger.Error("could not complete campaign",
			slog.String("campaign_id", c.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	if !changed {
		return
	}

	o.logger.Info("campaign completed",
		slog.String("campaign_id", c.ID.String()),
		slog.Int64("sent", c.Sent),
		slog.Int64("failed", c.Failed),
		slog.Int64("skipped", c.Skipped))
	if o.extensions != nil {
		o.extensions.EmitCampaignFinished(ctx, c.ID, c.Sent, c.Failed, c.Skipped)
	}
}

func (o *Orchestrator) send(ctx context.Context, template string, r Recipient) error {
	return o.policy.Do(ctx, func(ctx context.Context) error {
		return o.guard.Do(ctx, func(ctx context.Context) error {
			return o.sender.Send(ctx, template, r)
		})
	})
}
