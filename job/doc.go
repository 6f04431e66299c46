// Package job defines the job entity, priority lanes, payload envelope,
// typed definitions, and store interface.
//
// # Job Entity
//
// A [Job] represents a unit of work. It embeds [courier.Entity] for
// timestamps, carries an envelope-wrapped payload (JSON), and progresses
// through a state machine:
//
//	pending → running → completed
//	pending → running → retrying → running → ...
//	pending → running → failed
//	pending → running → failed → dlq
//	pending → cancelled
//
// Fields of note:
//   - Hook: the registered handler name this job invokes
//   - Fingerprint: stable hash of hook+args, used for pending checks
//     and cancellation matching
//   - Lane: one of five fixed priority lanes (critical highest)
//   - MaxAttempts / Attempt: controls the retry budget
//   - RunAt: earliest time the job may be dequeued
//   - Timeout: per-job execution deadline (zero = unlimited)
//
// # Lanes
//
// Dispatch prefers higher-weight lanes but workers periodically drain the
// low lanes so bulk and maintenance work is never starved. Within one lane
// jobs dispatch in RunAt order.
//
// # Payload Envelope
//
// Every payload is wrapped in a versioned [Envelope] carrying the caller's
// args plus metadata (lane, attempt, enqueue time). [EncodeEnvelope] and
// [DecodeEnvelope] are the only encode/decode pair; a payload that fails
// to decode is poison and is routed to the dead letter store rather than
// retried.
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The args are JSON-serialized at
// schedule time and deserialized before the handler runs:
//
//	var SendReceipt = job.NewDefinition("send_receipt",
//	    func(ctx context.Context, input ReceiptInput) error {
//	        return notifier.Send(input.Phone, input.OrderID)
//	    },
//	)
//
// # Registry
//
// [Registry] maps hook names to type-erased [HandlerFunc] values.
// Register definitions at startup via [RegisterDefinition]:
//
//	job.RegisterDefinition(registry, SendReceipt)
//	job.RegisterDefinition(registry, SyncCatalogBatch)
//
// The engine package provides higher-level engine.Register and
// engine.Schedule wrappers.
package job
