// Package dlq provides the dead letter store for jobs that have failed
// permanently. It supports inspection, replay, dismissal, and retention
// sweeps.
//
// When a job exhausts its attempt budget the executor calls
// [Service.Push] with reason MAX_RETRIES; undecodable payloads and
// handler-declared permanent failures arrive with reason POISON;
// operators can park jobs by hand with reason MANUAL. The original
// payload, error message, and attempt counts are preserved for
// debugging.
//
// # Entry
//
// An [Entry] captures:
//   - JobID / Hook / Fingerprint / Lane: original job identity
//   - Payload: the raw envelope bytes at time of failure
//   - Reason: why the job was dead-lettered
//   - Message: the final error message
//   - Attempt / MaxAttempts: the exhausted budget
//   - FailedAt: when the terminal failure occurred
//   - ReplayCount: how many replay attempts this entry has survived
//
// # Replay and Dismiss
//
// Replaying an entry re-submits the original hook and payload as a
// fresh job on the normal lane and removes the entry once the enqueue
// succeeds, so an entry is always in exactly one of two places: the
// dead letter store or the active job table. Dismissing deletes the
// entry without creating a job.
//
// # Retention
//
// [Service.Cleanup] deletes entries older than a retention window. The
// engine schedules it as a recurring maintenance job.
//
// # Admin API
//
// The dead letter store is exposed via the HTTP admin API:
//   - GET    /v1/dlq                  list entries
//   - GET    /v1/dlq/count            entry count
//   - GET    /v1/dlq/{entryID}        get a single entry
//   - POST   /v1/dlq/{entryID}/replay replay one entry
//   - DELETE /v1/dlq/{entryID}        dismiss one entry
//   - POST   /v1/dlq/cleanup          run a retention sweep now
package dlq
