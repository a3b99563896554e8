// Package kv provides the only storage primitive the orchestrator core
// depends on: key/value, hash, and sorted-set operations with TTL, behind
// one interface implemented by a networked store (Redis, production) and
// an in-process fallback (tests and degraded operation).
package kv

import (
	"context"
	"time"
)

// Z is one member of a sorted set, paired with its ranking score. The shape
// mirrors redis.Z so the networked implementation needs no translation.
type Z struct {
	Score  float64
	Member string
}

// Store is the storage contract every rate-limit, persona-cache, and
// conversation-history component is built against. All mutating operations
// are atomic at the key level; Pipeline applies a batch as a unit.
type Store interface {
	// Get returns the value at key, or ErrNotFound if it does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key with no expiry.
	Set(ctx context.Context, key, value string) error

	// SetEx stores value at key with the given TTL.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes one or more keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// HSet sets a single field within the hash at key.
	HSet(ctx context.Context, key, field, value string) error

	// HGet returns a single field's value, or ErrNotFound if absent.
	HGet(ctx context.Context, key, field string) (string, error)

	// ZAdd adds (or updates the score of) one member in the sorted set at key.
	ZAdd(ctx context.Context, key string, z Z) error

	// ZRangeByScore returns members with score in [lo, hi], ordered
	// ascending by score, ties broken lexically by member.
	ZRangeByScore(ctx context.Context, key string, lo, hi float64) ([]string, error)

	// ZRemRangeByScore removes all members scored in [lo, hi] and returns
	// the count removed.
	ZRemRangeByScore(ctx context.Context, key string, lo, hi float64) (int64, error)

	// ZCount returns the number of members scored in [lo, hi].
	ZCount(ctx context.Context, key string, lo, hi float64) (int64, error)

	// Expire sets (or refreshes) the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Pipeline runs fn against a batched Pipeliner; all queued commands
	// execute as a unit when fn returns without error.
	Pipeline(ctx context.Context, fn func(Pipeliner) error) error

	// Close releases any underlying connection resources.
	Close() error
}

// Pipeliner queues commands for atomic batched execution. Queued ZRangeByScore
// and ZCount reads are not meaningful inside a write pipeline — pipelines in
// this abstraction are for batching mutations that must land together (e.g.
// trim-then-add on the sliding window), not for reading back results mid-batch.
type Pipeliner interface {
	Set(key, value string)
	SetEx(key, value string, ttl time.Duration)
	Del(keys ...string)
	HSet(key, field, value string)
	ZAdd(key string, z Z)
	ZRemRangeByScore(key string, lo, hi float64)
	Expire(key string, ttl time.Duration)
}
