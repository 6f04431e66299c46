package redis

// Redis key naming conventions for courier data.
// All keys are prefixed with "courier:" to avoid collisions.

const keyPrefix = "courier:"

// ── Job keys ──

// jobKey returns the key for a job entity: courier:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// laneKey returns the Sorted Set key for a lane, scored by due time:
// courier:lane:{name}
func laneKey(name string) string { return keyPrefix + "lane:" + name }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// ── Dead letter keys ──

// dlqKey returns the key for a dead letter entity: courier:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIDsKey is the Set tracking all dead letter IDs for enumeration.
const dlqIDsKey = keyPrefix + "dlq_ids"

// dlqByFailureKey is the Sorted Set of dead letter IDs scored by
// failure time, for newest-first listing.
const dlqByFailureKey = keyPrefix + "dlq_by_failure"

// ── Cron keys ──

// cronKey returns the key for a cron entry entity: courier:cron:{id}
func cronKey(id string) string { return keyPrefix + "cron:" + id }

// cronIDsKey is the Set tracking all cron IDs for enumeration.
const cronIDsKey = keyPrefix + "cron_ids"

// cronNamesKey maps cron names to IDs for duplicate detection.
const cronNamesKey = keyPrefix + "cron_names"

// ── Idempotency keys ──

// claimKey returns the key for an idempotency claim: courier:claim:{key}
// Claims carry a Redis TTL, so expiry and takeover are native.
func claimKey(key string) string { return keyPrefix + "claim:" + key }

// claimPrefix matches every claim key for SCAN-based counting.
const claimPrefix = keyPrefix + "claim:"

// ── Lock keys ──

// lockKey returns the key for a named lock: courier:lock:{name}
func lockKey(name string) string { return keyPrefix + "lock:" + name }

// ── Progress keys ──

// progressKey holds the singleton sync progress run as JSON.
const progressKey = keyPrefix + "sync:run"

// ── Campaign keys ──

// campaignKey returns the key for a campaign entity: courier:campaign:{id}
// Campaigns are Hashes so counters can be HINCRBY'd atomically.
func campaignKey(id string) string { return keyPrefix + "campaign:" + id }

// campaignIDsKey is the Set tracking all campaign IDs for enumeration.
const campaignIDsKey = keyPrefix + "campaign_ids"
