package syncqueue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dayplan/plancache/metric"
)

// queueMetrics exports queue depth and replay outcomes.
type queueMetrics struct {
	pendingDepth   prometheus.Gauge
	abandonedDepth prometheus.Gauge
	applied        prometheus.Counter
	abandoned      prometheus.Counter
}

func newQueueMetrics(registry *metric.MetricsRegistry) (*queueMetrics, error) {
	m := &queueMetrics{
		pendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "plancache",
			Subsystem: "syncqueue",
			Name:      "pending_operations",
			Help:      "Operations waiting to be replayed",
		}),
		abandonedDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "plancache",
			Subsystem: "syncqueue",
			Name:      "abandoned_operations",
			Help:      "Operations that exhausted their retry budget",
		}),
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plancache",
			Subsystem: "syncqueue",
			Name:      "applied_total",
			Help:      "Operations successfully replayed against the backend",
		}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plancache",
			Subsystem: "syncqueue",
			Name:      "abandoned_total",
			Help:      "Operations abandoned after repeated failures",
		}),
	}

	if err := registry.RegisterGauge("syncqueue", "pending_operations", m.pendingDepth); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("syncqueue", "abandoned_operations", m.abandonedDepth); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("syncqueue", "applied_total", m.applied); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("syncqueue", "abandoned_total", m.abandoned); err != nil {
		return nil, err
	}
	return m, nil
}
