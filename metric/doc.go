// Package metric provides Prometheus metrics registration and the diagnostics
// HTTP server for the plancache engine.
//
// The MetricsRegistry wraps a private prometheus.Registry and namespaces
// registrations as "component.metric" so two components cannot silently
// clobber each other's collectors. The cache store, worker pool and sync
// queue all register through it.
//
// The Server exposes three endpoints:
//
//   - the metrics path (default /metrics): Prometheus exposition
//   - /health: liveness probe
//   - /stats: JSON snapshot of engine statistics (hits, misses, evictions,
//     hit rate, pending writes) for UI diagnostics
package metric
