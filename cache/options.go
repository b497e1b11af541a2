package cache

import (
	"time"

	"github.com/dayplan/plancache/metric"
)

// Option configures store behavior using the functional options pattern.
type Option[V any] func(*storeOptions[V])

// storeOptions holds internal configuration for store instances.
// Stats are always collected; Prometheus export is opt-in via WithMetrics.
type storeOptions[V any] struct {
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	evictCallback EvictCallback[V]
	nowFn         func() time.Time
}

// WithMetrics enables Prometheus metrics export for store statistics.
// If registry is nil or prefix is empty, the option is ignored.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *storeOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback invoked with the key and value of
// each evicted entry. Callbacks run outside the store lock.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *storeOptions[V]) {
		opts.evictCallback = callback
	}
}

// WithClock overrides the store's time source. Tests use this to make
// freshness and recency deterministic.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(opts *storeOptions[V]) {
		if now != nil {
			opts.nowFn = now
		}
	}
}

// applyOptions applies functional options to create final store configuration.
func applyOptions[V any](options ...Option[V]) *storeOptions[V] {
	opts := &storeOptions[V]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
