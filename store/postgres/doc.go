// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED lane dequeue, conditional-upsert idempotency
// claims and named locks, atomic campaign counters, embedded SQL
// migrations.
package postgres
