package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dayplan/plancache/errors"
)

// ProbeFunc checks reachability of the backend. A nil return is a successful
// probe; any error counts as a failure.
type ProbeFunc func(ctx context.Context) error

// Monitor tracks whether the backend is reachable and notifies subscribers
// on transitions. State changes are debounced: a single dropped probe does
// not flip the engine offline, and a single lucky one does not flip it back.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	subs      []chan bool
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
	failures  int
	successes int

	probe            ProbeFunc
	interval         time.Duration
	failureThreshold int
	successThreshold int
	heartbeatURL     string
	logger           *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithProbe sets the reachability probe. Without one the monitor only
// changes state through SetOnline and the heartbeat.
func WithProbe(probe ProbeFunc) MonitorOption {
	return func(m *Monitor) {
		m.probe = probe
	}
}

// WithInterval sets how often the probe runs.
func WithInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithThresholds sets how many consecutive probe failures flip the monitor
// offline and how many consecutive successes flip it back online.
func WithThresholds(failure, success int) MonitorOption {
	return func(m *Monitor) {
		if failure > 0 {
			m.failureThreshold = failure
		}
		if success > 0 {
			m.successThreshold = success
		}
	}
}

// WithHeartbeat sets a websocket heartbeat endpoint. While the socket is
// connected its liveness feeds the same debounce counters as the probe.
func WithHeartbeat(url string) MonitorOption {
	return func(m *Monitor) {
		m.heartbeatURL = url
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMonitor creates a connectivity monitor. It starts optimistic: online
// until evidence says otherwise, so a cold start with a healthy network
// never routes reads through the offline path.
func NewMonitor(options ...MonitorOption) *Monitor {
	m := &Monitor{
		online:           true,
		interval:         15 * time.Second,
		failureThreshold: 2,
		successThreshold: 1,
		logger:           slog.Default(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline forces the connectivity state, bypassing the debounce. Used by
// callers with out-of-band knowledge (platform network events) and by tests.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	m.failures = 0
	m.successes = 0
	changed := m.online != online
	m.online = online
	var subs []chan bool
	if changed {
		subs = append(subs, m.subs...)
	}
	m.mu.Unlock()

	if changed {
		m.logger.Info("connectivity state changed", "online", online, "source", "manual")
		notify(subs, online)
	}
}

// Subscribe returns a channel that receives the new state on every
// transition. The channel is buffered; if a subscriber lags, intermediate
// transitions are dropped and only the fact of a change is guaranteed.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Start launches the probe loop and, when configured, the heartbeat
// listener. Returns ErrAlreadyStarted on a second call.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.ErrAlreadyStarted
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
	if m.heartbeatURL != "" {
		go m.runHeartbeat(ctx)
	}
	return nil
}

// Stop terminates the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	if m.probe == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.probe(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.recordFailure("probe", err)
			} else {
				m.recordSuccess("probe")
			}
		}
	}
}

// recordFailure counts a consecutive failure and flips offline once the
// threshold is reached.
func (m *Monitor) recordFailure(source string, err error) {
	m.mu.Lock()
	m.successes = 0
	m.failures++
	changed := m.online && m.failures >= m.failureThreshold
	if changed {
		m.online = false
	}
	var subs []chan bool
	if changed {
		subs = append(subs, m.subs...)
	}
	m.mu.Unlock()

	if changed {
		m.logger.Warn("connectivity lost", "source", source, "error", err)
		notify(subs, false)
	}
}

// recordSuccess counts a consecutive success and flips online once the
// threshold is reached.
func (m *Monitor) recordSuccess(source string) {
	m.mu.Lock()
	m.failures = 0
	m.successes++
	changed := !m.online && m.successes >= m.successThreshold
	if changed {
		m.online = true
	}
	var subs []chan bool
	if changed {
		subs = append(subs, m.subs...)
	}
	m.mu.Unlock()

	if changed {
		m.logger.Info("connectivity restored", "source", source)
		notify(subs, true)
	}
}

func notify(subs []chan bool, online bool) {
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Drain the stale value so the latest state lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}
