// Package queue enforces per-lane and per-hook dispatch limits.
//
// Lanes are the five fixed priority classes jobs dispatch through. The
// worker pool consults the [Manager] at dequeue time so lane-level
// back-pressure is independent: a saturated bulk lane cannot crowd out
// critical sends, and a rate-limited outbound API slows only the hooks
// that call it.
//
// # Per-Lane Configuration
//
// Use [Config] to set per-lane rate limits and concurrency caps:
//
//	queue.Config{
//	    Lane:           job.LaneBulk,
//	    MaxConcurrency: 5,      // max 5 concurrent bulk jobs
//	    RateLimit:      10,     // max 10 bulk jobs/s dequeued
//	    RateBurst:      20,     // allow bursts up to 20
//	}
//
// # Per-Hook Configuration
//
// Outbound API quotas are per dependency, not per lane, so hook limits
// apply across lanes. A broadcast send hook capped at the WhatsApp
// messaging rate stays capped whether a job arrives on the bulk lane or
// is replayed on the normal lane:
//
//	m.SetHookConfig(queue.HookConfig{
//	    Hook:      "send_broadcast_batch",
//	    RateLimit: 40,
//	    RateBurst: 40,
//	})
//
// # Manager
//
// [Manager] enforces both levels at dequeue time. It uses a
// token-bucket rate limiter (golang.org/x/time/rate) and an
// active-count gate for concurrency limits.
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(j.Lane, j.Hook) {
//	    defer m.Release(j.Lane, j.Hook)
//	    // process the job
//	}
//
// Lanes and hooks without a config have no limits beyond the pool-wide
// concurrency.
package queue
