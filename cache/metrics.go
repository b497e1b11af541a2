package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dayplan/plancache/metric"
)

// storeMetrics holds Prometheus metrics for entry store operations.
type storeMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	deletes   prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

// newStoreMetrics creates and registers store metrics with the provided registry.
func newStoreMetrics(registry *metric.MetricsRegistry, prefix string) (*storeMetrics, error) {
	m := &storeMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "plancache",
			Subsystem:   "store",
			Name:        "hits_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "plancache",
			Subsystem:   "store",
			Name:        "misses_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of cache misses",
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "plancache",
			Subsystem:   "store",
			Name:        "sets_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of store operations",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "plancache",
			Subsystem:   "store",
			Name:        "deletes_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of delete operations",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "plancache",
			Subsystem:   "store",
			Name:        "evictions_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of LRU evictions",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "plancache",
			Subsystem:   "store",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current number of entries in the store",
		}),
	}

	if err := registry.RegisterCounter(prefix, "store_hits", m.hits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "store_misses", m.misses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "store_sets", m.sets); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "store_deletes", m.deletes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "store_evictions", m.evictions); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "store_size", m.size); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *storeMetrics) recordHit() {
	m.hits.Inc()
}

func (m *storeMetrics) recordMiss() {
	m.misses.Inc()
}

func (m *storeMetrics) recordSet() {
	m.sets.Inc()
}

func (m *storeMetrics) recordDelete() {
	m.deletes.Inc()
}

func (m *storeMetrics) recordEviction() {
	m.evictions.Inc()
}

func (m *storeMetrics) updateSize(size int) {
	m.size.Set(float64(size))
}
