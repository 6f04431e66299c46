// Package observability provides an OpenTelemetry-based metrics
// extension. MetricsExtension implements the lifecycle hooks to record
// system-wide counters for job enqueue, completion, failure, retry, and
// dead-letter events, sync runs, campaign outcomes, breaker transitions,
// and cron fires.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
