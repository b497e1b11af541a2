package syncqueue

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dayplan/plancache/errors"
	"github.com/dayplan/plancache/pkg/retry"
	"github.com/dayplan/plancache/pkg/worker"
	"github.com/dayplan/plancache/storage"
)

// ErrDrainInProgress is returned when Drain is called while another drain
// is still running.
var ErrDrainInProgress = stderrors.New("drain already in progress")

// ApplyFunc replays one operation against the backend. A nil return removes
// the operation from the queue; a transient error schedules a retry; an
// invalid (non-retryable) error abandons it immediately.
type ApplyFunc func(ctx context.Context, op PendingOperation) error

// Result summarizes one drain pass.
type Result struct {
	Applied   int `json:"applied"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}

// Queue is the durable offline sync queue. Operations enqueue in global
// order; replay groups them into per-key lanes so mutations to one record
// stay strictly FIFO while independent records replay concurrently.
type Queue struct {
	mu        sync.Mutex
	pending   []PendingOperation
	abandoned []PendingOperation
	nextSeq   uint64

	drainMu sync.Mutex

	store        storage.QueueStore
	maxAttempts  int
	retryCfg     retry.Config
	drainWorkers int
	logger       *slog.Logger
	nowFn        func() time.Time
	metrics      *queueMetrics
}

// New builds a queue and restores any persisted state, so pending mutations
// survive a restart.
func New(store storage.QueueStore, options ...QueueOption) (*Queue, error) {
	if store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "syncqueue", "New",
			"queue store cannot be nil")
	}

	q := &Queue{
		store:        store,
		maxAttempts:  5,
		retryCfg:     retry.Replay(),
		drainWorkers: 4,
		logger:       slog.Default(),
		nowFn:        time.Now,
		nextSeq:      1,
	}
	for _, opt := range options {
		if opt != nil {
			opt(q)
		}
	}

	snapshot, err := store.Load(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "syncqueue", "New", "restoring queue state")
	}
	for _, rec := range snapshot.Pending {
		q.pending = append(q.pending, fromRecord(rec))
	}
	for _, rec := range snapshot.Abandoned {
		q.abandoned = append(q.abandoned, fromRecord(rec))
	}
	if snapshot.NextSeq > q.nextSeq {
		q.nextSeq = snapshot.NextSeq
	}

	if len(q.pending) > 0 || len(q.abandoned) > 0 {
		q.logger.Info("sync queue restored",
			"pending", len(q.pending), "abandoned", len(q.abandoned))
	}
	q.updateMetricsLocked()
	return q, nil
}

// Enqueue appends a mutation and persists the queue before acknowledging.
// The stored operation (with assigned ID, sequence, and timestamp) is
// returned. If persistence fails the operation is not enqueued.
func (q *Queue) Enqueue(ctx context.Context, op PendingOperation) (PendingOperation, error) {
	if !op.Type.Valid() {
		return PendingOperation{}, errors.WrapInvalid(errors.ErrUnknownOperationType,
			"syncqueue", "Enqueue", fmt.Sprintf("operation %q", op.Type))
	}
	if op.Collection == "" || op.Key == "" {
		return PendingOperation{}, errors.WrapInvalid(errors.ErrInvalidData,
			"syncqueue", "Enqueue", "collection and key are required")
	}

	q.mu.Lock()
	op.ID = uuid.New()
	op.Seq = q.nextSeq
	op.CreatedAt = q.nowFn()
	op.Attempts = 0
	op.LastError = ""
	q.nextSeq++
	q.pending = append(q.pending, op)
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	if err := q.store.Persist(ctx, snapshot); err != nil {
		// Write-ahead failed: roll the enqueue back so the caller knows
		// the mutation is not safe.
		q.mu.Lock()
		q.removeLocked(op.ID)
		q.mu.Unlock()
		return PendingOperation{}, errors.Wrap(err, "syncqueue", "Enqueue", "persisting queue")
	}

	q.mu.Lock()
	q.updateMetricsLocked()
	q.mu.Unlock()

	q.logger.Debug("operation enqueued",
		"id", op.ID, "seq", op.Seq, "type", op.Type, "key", op.Key)
	return op, nil
}

// PendingCount returns the number of queued operations.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// AbandonedCount returns the number of abandoned operations.
func (q *Queue) AbandonedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.abandoned)
}

// Snapshot returns copies of the pending and abandoned lists.
func (q *Queue) Snapshot() (pending, abandoned []PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending = append([]PendingOperation(nil), q.pending...)
	abandoned = append([]PendingOperation(nil), q.abandoned...)
	return pending, abandoned
}

// lane is the FIFO replay sequence for one record key.
type lane struct {
	key string
	ops []PendingOperation
}

// Drain replays pending operations through apply. Lanes for distinct keys
// run concurrently across a bounded worker pool; within a lane order is
// strict and a still-failing operation blocks everything behind it. Only
// one drain runs at a time.
func (q *Queue) Drain(ctx context.Context, apply ApplyFunc) (Result, error) {
	if !q.drainMu.TryLock() {
		return Result{}, ErrDrainInProgress
	}
	defer q.drainMu.Unlock()

	lanes := q.buildLanes()
	if len(lanes) == 0 {
		return Result{}, nil
	}

	q.logger.Info("draining sync queue", "lanes", len(lanes), "pending", q.PendingCount())

	var (
		resultMu sync.Mutex
		result   Result
		wg       sync.WaitGroup
	)

	pool := worker.NewPool(q.drainWorkers, len(lanes), func(_ context.Context, l *lane) error {
		defer wg.Done()
		laneResult := q.drainLane(ctx, l, apply)
		resultMu.Lock()
		result.Applied += laneResult.Applied
		result.Failed += laneResult.Failed
		result.Abandoned += laneResult.Abandoned
		resultMu.Unlock()
		return nil
	})
	// The pool runs on a background context so every submitted lane is
	// consumed even after ctx ends. Workers exiting on ctx.Done would leave
	// queued lanes unprocessed and wg.Wait below would never return.
	// drainLane checks ctx itself and fast-fails once it is done.
	if err := pool.Start(context.Background()); err != nil {
		return Result{}, errors.Wrap(err, "syncqueue", "Drain", "starting lane workers")
	}

	for _, l := range lanes {
		wg.Add(1)
		if err := pool.Submit(l); err != nil {
			wg.Done()
			q.logger.Warn("lane not scheduled", "key", l.key, "error", err)
		}
	}
	wg.Wait()
	_ = pool.Stop(5 * time.Second)

	// One final persist so attempt counts from failed lanes are durable.
	q.persist(ctx)

	q.logger.Info("drain complete",
		"applied", result.Applied, "failed", result.Failed, "abandoned", result.Abandoned)
	return result, ctx.Err()
}

// buildLanes groups pending operations by key, preserving enqueue order
// within each lane.
func (q *Queue) buildLanes() []*lane {
	q.mu.Lock()
	defer q.mu.Unlock()

	byKey := make(map[string]*lane)
	var lanes []*lane
	for _, op := range q.pending {
		l, ok := byKey[op.Key]
		if !ok {
			l = &lane{key: op.Key}
			byKey[op.Key] = l
			lanes = append(lanes, l)
		}
		l.ops = append(l.ops, op)
	}
	return lanes
}

// laneOutcome is the fate of one operation during a drain.
type laneOutcome int

const (
	opApplied laneOutcome = iota
	opAbandoned
	opStillFailing
)

// drainLane replays one lane in FIFO order. A transient failure retries the
// same operation with exponential backoff until it succeeds, is abandoned,
// or the context ends; later operations in the lane never overtake it.
func (q *Queue) drainLane(ctx context.Context, l *lane, apply ApplyFunc) Result {
	var result Result

	for i := range l.ops {
		switch q.replayOp(ctx, l.ops[i], apply) {
		case opApplied:
			result.Applied++
		case opAbandoned:
			result.Abandoned++
		case opStillFailing:
			// The lane stops here: everything behind this operation for
			// the same key waits for the next drain.
			result.Failed++
			return result
		}
	}
	return result
}

// replayOp drives one operation to a terminal outcome, or to opStillFailing
// when the context ends with retry budget left.
func (q *Queue) replayOp(ctx context.Context, op PendingOperation, apply ApplyFunc) laneOutcome {
	for {
		if ctx.Err() != nil {
			return opStillFailing
		}

		// Backoff before every attempt after the first.
		if op.Attempts > 0 {
			if !sleepCtx(ctx, q.retryCfg.Delay(op.Attempts+1)) {
				return opStillFailing
			}
		}

		op.Attempts++
		err := apply(ctx, op)
		if err == nil {
			q.markApplied(ctx, op)
			return opApplied
		}

		op.LastError = err.Error()

		switch {
		case errors.IsInvalid(err) || retry.IsNonRetryable(err):
			// The backend understood and rejected it; retrying the same
			// payload cannot succeed.
			q.markAbandoned(ctx, op)
			return opAbandoned
		case op.Attempts >= q.maxAttempts:
			q.markAbandoned(ctx, op)
			return opAbandoned
		default:
			q.recordFailure(op)
			q.logger.Warn("replay attempt failed",
				"key", op.Key, "seq", op.Seq, "attempts", op.Attempts, "error", err)
		}
	}
}

// markApplied removes a successfully replayed operation and persists.
func (q *Queue) markApplied(ctx context.Context, op PendingOperation) {
	q.mu.Lock()
	q.removeLocked(op.ID)
	q.updateMetricsLocked()
	q.mu.Unlock()
	if q.metrics != nil {
		q.metrics.applied.Inc()
	}
	q.persist(ctx)
	q.logger.Debug("operation applied", "id", op.ID, "seq", op.Seq, "key", op.Key)
}

// markAbandoned moves an operation to the abandoned list and persists. The
// record is retained for inspection rather than silently dropped.
func (q *Queue) markAbandoned(ctx context.Context, op PendingOperation) {
	q.mu.Lock()
	q.removeLocked(op.ID)
	q.abandoned = append(q.abandoned, op)
	q.updateMetricsLocked()
	q.mu.Unlock()
	if q.metrics != nil {
		q.metrics.abandoned.Inc()
	}
	q.persist(ctx)
	q.logger.Error("operation abandoned",
		"id", op.ID, "seq", op.Seq, "key", op.Key,
		"attempts", op.Attempts, "last_error", op.LastError,
		"error", errors.ErrOperationAbandoned)
}

// recordFailure writes the updated attempt count back to the pending list.
func (q *Queue) recordFailure(op PendingOperation) {
	q.mu.Lock()
	for i := range q.pending {
		if q.pending[i].ID == op.ID {
			q.pending[i].Attempts = op.Attempts
			q.pending[i].LastError = op.LastError
			break
		}
	}
	q.mu.Unlock()
}

// removeLocked deletes an operation from the pending list by ID.
func (q *Queue) removeLocked(id uuid.UUID) {
	for i := range q.pending {
		if q.pending[i].ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// snapshotLocked builds the durable snapshot. Caller holds the mutex.
func (q *Queue) snapshotLocked() storage.Snapshot {
	snapshot := storage.Snapshot{NextSeq: q.nextSeq}
	for _, op := range q.pending {
		snapshot.Pending = append(snapshot.Pending, op.record())
	}
	for _, op := range q.abandoned {
		snapshot.Abandoned = append(snapshot.Abandoned, op.record())
	}
	return snapshot
}

// persist writes the current state. Persistence failures during replay are
// logged, not propagated: the in-memory queue remains authoritative and the
// next successful persist catches up.
func (q *Queue) persist(ctx context.Context) {
	q.mu.Lock()
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	if err := q.store.Persist(ctx, snapshot); err != nil && ctx.Err() == nil {
		q.logger.Error("queue persist failed", "error", err)
	}
}

func (q *Queue) updateMetricsLocked() {
	if q.metrics != nil {
		q.metrics.pendingDepth.Set(float64(len(q.pending)))
		q.metrics.abandonedDepth.Set(float64(len(q.abandoned)))
	}
}

// sleepCtx sleeps for d, returning false if the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
