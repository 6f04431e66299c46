// Package courier is the delivery-reliability core for a conversational
// commerce platform: an embeddable job queue with five fixed priority
// lanes, a dead letter store with replay, an idempotency ledger, an
// atomic bulk-sync progress tracker, and circuit-broken outbound calls.
//
// Courier is designed as a library, not a service. Import it, configure
// a store, register job handlers as ordinary Go functions, and let the
// worker pool drive them.
//
// # Quick Start
//
//	c, err := courier.New(
//	    courier.WithStore(pgStore),
//	    courier.WithConcurrency(8),
//	)
//
// # Architecture
//
// Courier follows a composable store pattern where each subsystem (job,
// dlq, ledger, progress, broadcast, cron) defines its own store
// interface. A single backend implements all of them.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package courier
