package syncqueue

import (
	"log/slog"
	"time"

	"github.com/dayplan/plancache/metric"
	"github.com/dayplan/plancache/pkg/retry"
)

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxAttempts sets the retry budget per operation before abandonment.
func WithMaxAttempts(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithRetryConfig sets the backoff schedule used between replay attempts.
func WithRetryConfig(cfg retry.Config) QueueOption {
	return func(q *Queue) {
		q.retryCfg = cfg
	}
}

// WithDrainWorkers bounds how many key lanes replay concurrently.
func WithDrainWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.drainWorkers = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithClock overrides the queue's time source for tests.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.nowFn = now
		}
	}
}

// WithMetricsRegistry enables Prometheus metrics for queue depth and
// replay outcomes.
func WithMetricsRegistry(registry *metric.MetricsRegistry) QueueOption {
	return func(q *Queue) {
		if registry != nil {
			if m, err := newQueueMetrics(registry); err == nil {
				q.metrics = m
			}
		}
	}
}
