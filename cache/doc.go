// Package cache provides the bounded entry store at the heart of the
// plancache engine: a thread-safe key to entry map with TTL-aware freshness
// and least-recently-used eviction.
//
// # Entry Store
//
// Store[V] maps logical keys (collection name plus query parameters, e.g.
// "goals:2024" or "timeBlocks:2024-01-15..2024-01-21") to entries carrying
// the value, the time it was stored, its TTL, and its last touch. Recency
// counts reads and writes alike; the store keeps a doubly-linked recency
// list so the eviction victim is found in O(1).
//
// The store is bounded: inserting a new key beyond capacity evicts the
// least recently used entries first, so Size() never exceeds the configured
// maximum. Eviction order is deterministic - oldest last touch first, with
// ties resolved by touch order and then insertion order.
//
// # TTL Policy
//
// Policy holds the per-collection TTL table. Freshness is a pure function
// over timestamps: an entry is fresh iff now - storedAt < ttl. Stale entries
// remain servable for stale-while-revalidate reads. Unknown collections are
// rejected with a configuration error because a missing TTL mapping is a
// programming error, not a runtime condition to paper over.
//
// # Statistics
//
// Statistics are always collected (hits, misses, sets, deletes, evictions,
// size, hit ratio) and can additionally be exported as Prometheus metrics
// with WithMetrics.
package cache
