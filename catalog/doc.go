// Package catalog syncs the product catalog to the outbound commerce
// API in batches.
//
// A sync is one tracked run: [Syncer.Run] enumerates the source (with a
// hard safety ceiling), opens a single progress run, partitions the
// items into fixed-size chunks, and dispatches one bulk-lane job per
// chunk. The batch handler pushes items through a circuit breaker and
// bounded retry policy, claims an item-scoped idempotency key per item
// so batch re-runs never double-count, and reports per-item outcomes to
// the progress tracker. The run auto-completes when every item is
// accounted for.
//
// Two failure classes are kept apart on purpose. Item failures (a push
// the remote rejected) are counted against the run and sampled into its
// failed-items list; they never fail the batch. Batch failures
// (claim storage down, circuit open) return an error to the host retry
// path so the whole batch comes back later, resuming at the first item
// whose outcome is not yet claimed.
package catalog
