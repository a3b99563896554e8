// Package kv provides the storage primitive (§4.1) every rate-limit,
// persona-cache, and conversation-history component in the orchestrator is
// built against: key/value, hash, and sorted-set operations with TTL,
// exposed through one interface (Store) with two implementations —
// RedisStore for production and MemoryStore as a degraded-mode or
// test-only fallback. Both implementations provide identical sorted-set
// ordering and TTL eviction semantics, so callers never branch on which one
// is active.
package kv
