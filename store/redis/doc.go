// Package redis implements store.Store using Redis for high-throughput
// deployments. Jobs use per-lane Sorted Sets scored by due time,
// idempotency claims and named locks ride on SET NX with native TTLs,
// campaign counters are HINCRBY'd in place, and all entities are stored
// as Redis Hashes.
//
// The caller owns the Redis client lifecycle; the store never closes it.
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
