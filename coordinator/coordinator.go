package coordinator

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dayplan/plancache/cache"
	"github.com/dayplan/plancache/connectivity"
	"github.com/dayplan/plancache/errors"
	"github.com/dayplan/plancache/remote"
	"github.com/dayplan/plancache/syncqueue"
)

// Config carries the coordinator's collaborators. Source, Store, Policy,
// Queue, and Monitor are required.
type Config struct {
	Source  remote.Source
	Store   *cache.Store[[]byte]
	Policy  *cache.Policy
	Queue   *syncqueue.Queue
	Monitor *connectivity.Monitor
	Logger  *slog.Logger

	// DrainTimeout bounds one replay pass after connectivity returns.
	DrainTimeout time.Duration

	// RevalidateTimeout bounds one background revalidation fetch. Wire it
	// to the remote request timeout so background refreshes never outlive
	// what a foreground fetch is allowed.
	RevalidateTimeout time.Duration
}

// Coordinator is the cache-aside layer between callers and the backend:
// cache-first reads with stale-while-revalidate, write-through invalidation
// while online, durable queueing while offline, and automatic replay when
// connectivity returns.
type Coordinator struct {
	source  remote.Source
	store   *cache.Store[[]byte]
	policy  *cache.Policy
	queue   *syncqueue.Queue
	monitor *connectivity.Monitor
	logger  *slog.Logger

	drainTimeout      time.Duration
	revalidateTimeout time.Duration

	// flight coalesces concurrent fetches of one key, including background
	// revalidations racing foreground misses.
	flight singleflight.Group

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates the wiring and builds a coordinator.
func New(cfg Config) (*Coordinator, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "coordinator", "New", "remote source is required")
	case cfg.Store == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "coordinator", "New", "entry store is required")
	case cfg.Policy == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "coordinator", "New", "TTL policy is required")
	case cfg.Queue == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "coordinator", "New", "sync queue is required")
	case cfg.Monitor == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "coordinator", "New", "connectivity monitor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	drainTimeout := cfg.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 2 * time.Minute
	}
	revalidateTimeout := cfg.RevalidateTimeout
	if revalidateTimeout <= 0 {
		revalidateTimeout = 10 * time.Second
	}

	return &Coordinator{
		source:            cfg.Source,
		store:             cfg.Store,
		policy:            cfg.Policy,
		queue:             cfg.Queue,
		monitor:           cfg.Monitor,
		logger:            logger,
		drainTimeout:      drainTimeout,
		revalidateTimeout: revalidateTimeout,
	}, nil
}

// Start subscribes to connectivity transitions. Coming back online triggers
// a replay of the sync queue; if the engine starts online with a restored
// backlog, that backlog drains immediately.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.ErrAlreadyStarted
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	transitions := c.monitor.Subscribe()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case online := <-transitions:
				if online {
					c.drain(ctx)
				}
			}
		}
	}()

	if c.monitor.Online() && c.queue.PendingCount() > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.drain(ctx)
		}()
	}
	return nil
}

// Stop cancels background work and waits up to timeout for it to finish.
func (c *Coordinator) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return errors.ErrNotStarted
	}
	c.started = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapTransient(errors.ErrShuttingDown, "coordinator", "Stop",
			"waiting for background work")
	}
}

// drain replays the sync queue through the same mutation + invalidation
// path online writes use, so confirmed server state lands in the cache.
func (c *Coordinator) drain(ctx context.Context) {
	if c.queue.PendingCount() == 0 {
		return
	}

	drainCtx, cancel := context.WithTimeout(ctx, c.drainTimeout)
	defer cancel()

	result, err := c.queue.Drain(drainCtx, func(ctx context.Context, op syncqueue.PendingOperation) error {
		_, mutErr := c.source.Mutate(ctx, op.Collection, op.Type, op.Payload)
		if mutErr != nil {
			return mutErr
		}
		c.invalidateAfterMutation(op.Collection, op.Key, op.Type)
		return nil
	})
	if err != nil && !stderrors.Is(err, syncqueue.ErrDrainInProgress) {
		c.logger.Warn("queue drain incomplete", "error", err,
			"applied", result.Applied, "failed", result.Failed, "abandoned", result.Abandoned)
	}
}

// Stats is the engine-level statistics snapshot exposed to diagnostics
// surfaces and the /stats endpoint.
type Stats struct {
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	Evictions       int64   `json:"evictions"`
	HitRate         float64 `json:"hit_rate"`
	Entries         int64   `json:"entries"`
	PendingWrites   int     `json:"pending_writes"`
	AbandonedWrites int     `json:"abandoned_writes"`
	Online          bool    `json:"online"`
}

// Stats returns the current snapshot.
func (c *Coordinator) Stats() Stats {
	s := c.store.Stats()
	return Stats{
		Hits:            s.Hits(),
		Misses:          s.Misses(),
		Evictions:       s.Evictions(),
		HitRate:         s.HitRatio(),
		Entries:         s.CurrentSize(),
		PendingWrites:   c.queue.PendingCount(),
		AbandonedWrites: c.queue.AbandonedCount(),
		Online:          c.monitor.Online(),
	}
}
