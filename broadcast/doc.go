// Package broadcast fans template messages out to an audience in
// batches, tracked as a campaign.
//
// [Orchestrator.Start] enumerates the audience (bounded by a safety
// ceiling), persists a [Campaign] record, and dispatches one bulk-lane
// job per fixed-size chunk of recipients. The batch handler claims a
// per-recipient idempotency key before each send, so re-running a batch
// never messages the same customer twice; already-claimed recipients
// count toward the campaign's Skipped counter instead.
//
// Campaign counters are incremented atomically at the store layer as
// batches report in, and the campaign completes when Sent + Failed +
// Skipped accounts for every recipient. The completion transition is a
// store-side compare-and-set, so exactly one of many concurrent batch
// completions emits the finished notification.
package broadcast
