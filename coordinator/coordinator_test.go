package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayplan/plancache/cache"
	"github.com/dayplan/plancache/connectivity"
	"github.com/dayplan/plancache/errors"
	"github.com/dayplan/plancache/pkg/retry"
	"github.com/dayplan/plancache/remote"
	"github.com/dayplan/plancache/storage/badgerstore"
	"github.com/dayplan/plancache/syncqueue"
)

type mutation struct {
	Collection string
	Op         remote.OperationType
	Payload    string
}

// fakeSource is an in-memory backend with failure injection and an
// optional gate for coalescing tests.
type fakeSource struct {
	mu        sync.Mutex
	fetches   int
	deadlines []time.Time // per-fetch ctx deadline, zero when unbounded
	mutations []mutation
	fetchErr  error
	mutateErr error
	gate      chan struct{}
	data      map[string][]byte
}

func (f *fakeSource) Fetch(ctx context.Context, collection, query string) ([]byte, error) {
	deadline, _ := ctx.Deadline()

	f.mu.Lock()
	f.fetches++
	f.deadlines = append(f.deadlines, deadline)
	gate := f.gate
	err := f.fetchErr
	value, ok := f.data[collection+"?"+query]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		value = []byte(`[]`)
	}
	return value, nil
}

func (f *fakeSource) Mutate(_ context.Context, collection string, op remote.OperationType, payload []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return nil, f.mutateErr
	}
	f.mutations = append(f.mutations, mutation{collection, op, string(payload)})
	return []byte(`{"ok":true}`), nil
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeSource) fetchDeadlines() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.deadlines...)
}

func (f *fakeSource) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mutations)
}

func (f *fakeSource) set(collection, query string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[collection+"?"+query] = value
}

type testEngine struct {
	coord   *Coordinator
	source  *fakeSource
	store   *cache.Store[[]byte]
	policy  *cache.Policy
	queue   *syncqueue.Queue
	monitor *connectivity.Monitor
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	store, err := cache.NewStore[[]byte](100)
	require.NoError(t, err)

	policy, err := cache.NewPolicy(map[string]time.Duration{
		"goals":      24 * time.Hour,
		"habits":     12 * time.Hour,
		"habitLogs":  5 * time.Minute,
		"timeBlocks": time.Millisecond,
	})
	require.NoError(t, err)

	queueStore, err := badgerstore.New(badgerstore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { queueStore.Close() })

	queue, err := syncqueue.New(queueStore,
		syncqueue.WithRetryConfig(retry.Config{
			MaxAttempts:  5,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1.0,
		}))
	require.NoError(t, err)

	source := &fakeSource{}
	monitor := connectivity.NewMonitor()

	coord, err := New(Config{
		Source:  source,
		Store:   store,
		Policy:  policy,
		Queue:   queue,
		Monitor: monitor,
	})
	require.NoError(t, err)

	return &testEngine{coord: coord, source: source, store: store, policy: policy, queue: queue, monitor: monitor}
}

func TestRead_FreshHitSkipsNetwork(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.source.set("goals", "year=2024", []byte(`[{"id":"g1"}]`))

	first, err := e.coord.Read(ctx, "goals", "goals:2024", "year=2024")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"g1"}]`, string(first))
	assert.Equal(t, 1, e.source.fetchCount())

	second, err := e.coord.Read(ctx, "goals", "goals:2024", "year=2024")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, e.source.fetchCount(), "fresh hit must not refetch")
}

func TestRead_UnknownCollectionFailsFast(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.coord.Read(context.Background(), "unknownCollection", "unknownCollection", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownCollection)
	assert.Equal(t, 0, e.source.fetchCount())
}

func TestRead_MissOfflineReturnsOfflineNoData(t *testing.T) {
	e := newTestEngine(t)
	e.monitor.SetOnline(false)

	_, err := e.coord.Read(context.Background(), "goals", "goals:2024", "year=2024")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrOfflineNoData)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 0, e.source.fetchCount())
}

func TestRead_StaleServedOfflineWithoutRevalidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.source.set("timeBlocks", "date=2024-01-15", []byte(`[{"id":"t1"}]`))

	_, err := e.coord.Read(ctx, "timeBlocks", "timeBlocks:2024-01-15", "date=2024-01-15")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond) // past the 1ms TTL

	e.monitor.SetOnline(false)
	value, err := e.coord.Read(ctx, "timeBlocks", "timeBlocks:2024-01-15", "date=2024-01-15")
	require.NoError(t, err, "stale data beats no data while offline")
	assert.Equal(t, `[{"id":"t1"}]`, string(value))
	assert.Equal(t, 1, e.source.fetchCount())
}

func TestRead_StaleWhileRevalidate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.source.set("timeBlocks", "date=2024-01-15", []byte(`[{"id":"t1"}]`))

	_, err := e.coord.Read(ctx, "timeBlocks", "timeBlocks:2024-01-15", "date=2024-01-15")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	// The backend has moved on.
	e.source.set("timeBlocks", "date=2024-01-15", []byte(`[{"id":"t1"},{"id":"t2"}]`))

	stale, err := e.coord.Read(ctx, "timeBlocks", "timeBlocks:2024-01-15", "date=2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"t1"}]`, string(stale), "stale value served immediately")

	// Revalidation lands in the background.
	require.Eventually(t, func() bool {
		entry, ok := e.store.Peek("timeBlocks:2024-01-15")
		return ok && string(entry.Value) == `[{"id":"t1"},{"id":"t2"}]`
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRead_RevalidationBoundedByConfiguredTimeout(t *testing.T) {
	e := newTestEngine(t)
	coord, err := New(Config{
		Source:            e.source,
		Store:             e.store,
		Policy:            e.policy,
		Queue:             e.queue,
		Monitor:           e.monitor,
		RevalidateTimeout: 250 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx := context.Background()
	e.source.set("timeBlocks", "date=2024-01-15", []byte(`[{"id":"t1"}]`))

	_, err = coord.Read(ctx, "timeBlocks", "timeBlocks:2024-01-15", "date=2024-01-15")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond) // past the 1ms TTL

	before := time.Now()
	_, err = coord.Read(ctx, "timeBlocks", "timeBlocks:2024-01-15", "date=2024-01-15")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(e.source.fetchDeadlines()) == 2
	}, 2*time.Second, 5*time.Millisecond, "stale read must trigger a revalidation fetch")

	deadlines := e.source.fetchDeadlines()
	assert.True(t, deadlines[0].IsZero(), "foreground fetch runs on the caller's context")
	require.False(t, deadlines[1].IsZero(), "revalidation fetch must carry a deadline")
	assert.WithinDuration(t, before.Add(250*time.Millisecond), deadlines[1], time.Second,
		"revalidation deadline follows the configured timeout")
}

func TestRead_ConcurrentMissesShareOneFetch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.source.set("habits", "", []byte(`[{"id":"h1"}]`))
	e.source.gate = make(chan struct{})

	const readers = 10
	var wg sync.WaitGroup
	results := make([][]byte, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.coord.Read(ctx, "habits", "habits", "")
		}(i)
	}

	// Let the readers pile up on the in-flight fetch, then release it.
	time.Sleep(50 * time.Millisecond)
	close(e.source.gate)
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, `[{"id":"h1"}]`, string(results[i]))
	}
	assert.Equal(t, 1, e.source.fetchCount(), "coalesced reads must share one fetch")
}

func TestRead_FetchFailurePropagates(t *testing.T) {
	e := newTestEngine(t)
	e.source.fetchErr = errors.WrapTransient(errors.ErrRemoteFetch, "test", "fetch", "down")

	_, err := e.coord.Read(context.Background(), "goals", "goals:2024", "year=2024")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRemoteFetch)

	// Nothing was cached for the failed key.
	_, ok := e.store.Peek("goals:2024")
	assert.False(t, ok)
}

func TestWrite_OnlineConfirmsAndInvalidates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Seed caches for the mutated and a related collection.
	e.source.set("habits", "", []byte(`[{"id":"h1"}]`))
	e.source.set("habitLogs", "week=3", []byte(`[]`))
	e.source.set("goals", "year=2024", []byte(`[]`))
	_, err := e.coord.Read(ctx, "habits", "habits", "")
	require.NoError(t, err)
	_, err = e.coord.Read(ctx, "habitLogs", "habitLogs:week3", "week=3")
	require.NoError(t, err)
	_, err = e.coord.Read(ctx, "goals", "goals:2024", "year=2024")
	require.NoError(t, err)

	result, err := e.coord.Write(ctx, "habits", "habits:h1", remote.OpUpdate, []byte(`{"id":"h1"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, result.Status)
	assert.Equal(t, `{"ok":true}`, string(result.Response))
	assert.Nil(t, result.Pending)
	assert.Equal(t, 0, e.queue.PendingCount())

	_, habitsCached := e.store.Peek("habits")
	assert.False(t, habitsCached, "mutated collection must be invalidated")
	_, logsCached := e.store.Peek("habitLogs:week3")
	assert.False(t, logsCached, "related collection must be invalidated")
	_, goalsCached := e.store.Peek("goals:2024")
	assert.True(t, goalsCached, "unrelated collection must survive")
}

func TestWrite_OnlineFailureLeavesCacheUntouched(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.source.set("habits", "", []byte(`[{"id":"h1"}]`))
	_, err := e.coord.Read(ctx, "habits", "habits", "")
	require.NoError(t, err)

	e.source.mutateErr = errors.WrapInvalid(errors.ErrRemoteMutation, "test", "mutate", "status 422")
	_, err = e.coord.Write(ctx, "habits", "habits:h1", remote.OpUpdate, []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRemoteMutation)

	_, cached := e.store.Peek("habits")
	assert.True(t, cached, "failed mutation must not invalidate")
	assert.Equal(t, 0, e.queue.PendingCount(), "online failure must not enqueue")
}

func TestWrite_OfflineQueuesAndAppliesOptimistically(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.source.set("habits", "", []byte(`[{"id":"h1","name":"old"}]`))
	_, err := e.coord.Read(ctx, "habits", "habits", "")
	require.NoError(t, err)

	e.monitor.SetOnline(false)
	result, err := e.coord.Write(ctx, "habits", "habits:h1", remote.OpUpdate,
		[]byte(`{"id":"h1","name":"new"}`))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, result.Status)
	require.NotNil(t, result.Pending)
	assert.Equal(t, uint64(1), result.Pending.Seq)
	assert.Equal(t, 1, e.queue.PendingCount())
	assert.Equal(t, 0, e.source.mutationCount())

	// The item key shows the optimistic value; the list key is gone.
	entry, ok := e.store.Peek("habits:h1")
	require.True(t, ok)
	assert.Equal(t, `{"id":"h1","name":"new"}`, string(entry.Value))
	_, listCached := e.store.Peek("habits")
	assert.False(t, listCached)
}

func TestWrite_OfflineDeleteRemovesItemKey(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.monitor.SetOnline(false)

	_, err := e.coord.Write(ctx, "habits", "habits:h1", remote.OpCreate, []byte(`{"id":"h1"}`))
	require.NoError(t, err)
	_, ok := e.store.Peek("habits:h1")
	require.True(t, ok)

	_, err = e.coord.Write(ctx, "habits", "habits:h1", remote.OpDelete, []byte(`{"id":"h1"}`))
	require.NoError(t, err)
	_, ok = e.store.Peek("habits:h1")
	assert.False(t, ok)
	assert.Equal(t, 2, e.queue.PendingCount(), "delete is queued behind the create")
}

func TestWrite_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.coord.Write(ctx, "unknownCollection", "k", remote.OpCreate, nil)
	assert.ErrorIs(t, err, errors.ErrUnknownCollection)

	_, err = e.coord.Write(ctx, "habits", "k", remote.OperationType("upsert"), nil)
	assert.ErrorIs(t, err, errors.ErrUnknownOperationType)

	_, err = e.coord.Write(ctx, "habits", "", remote.OpCreate, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestCoordinator_ReconnectDrainsQueue(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.coord.Start(ctx))
	defer e.coord.Stop(5 * time.Second)

	e.monitor.SetOnline(false)
	_, err := e.coord.Write(ctx, "habits", "habits:h1", remote.OpUpdate, []byte(`{"id":"h1"}`))
	require.NoError(t, err)
	_, err = e.coord.Write(ctx, "goals", "goals:2024", remote.OpUpdate, []byte(`{"id":"g1"}`))
	require.NoError(t, err)
	require.Equal(t, 2, e.queue.PendingCount())

	e.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		return e.queue.PendingCount() == 0
	}, 5*time.Second, 10*time.Millisecond, "reconnect must drain the queue")
	assert.Equal(t, 2, e.source.mutationCount())
}

func TestCoordinator_StartupDrainsRestoredBacklog(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.monitor.SetOnline(false)
	_, err := e.coord.Write(ctx, "habits", "habits:h1", remote.OpUpdate, []byte(`{"id":"h1"}`))
	require.NoError(t, err)
	e.monitor.SetOnline(true)

	// Start with a backlog while online, as after a reload.
	require.NoError(t, e.coord.Start(ctx))
	defer e.coord.Stop(5 * time.Second)

	require.Eventually(t, func() bool {
		return e.queue.PendingCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInvalidate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.source.set("habits", "", []byte(`[]`))
	e.source.set("habits", "active=true", []byte(`[]`))
	e.source.set("goals", "year=2024", []byte(`[]`))

	_, err := e.coord.Read(ctx, "habits", "habits", "")
	require.NoError(t, err)
	_, err = e.coord.Read(ctx, "habits", "habits:active", "active=true")
	require.NoError(t, err)
	_, err = e.coord.Read(ctx, "goals", "goals:2024", "year=2024")
	require.NoError(t, err)

	assert.Equal(t, 2, e.coord.Invalidate("habits"), "collection invalidation drops all its keys")
	assert.Equal(t, 1, e.coord.Invalidate("goals:2024"), "key invalidation drops one entry")
	assert.Equal(t, 0, e.coord.Invalidate("goals:2024"), "repeat invalidation is a no-op")
}

func TestClearAllKeepsQueue(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.monitor.SetOnline(false)

	_, err := e.coord.Write(ctx, "habits", "habits:h1", remote.OpCreate, []byte(`{"id":"h1"}`))
	require.NoError(t, err)

	e.coord.ClearAll()

	assert.Equal(t, 0, e.store.Size())
	assert.Equal(t, 1, e.queue.PendingCount(), "pending mutations survive a cache clear")
}

func TestStats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.source.set("goals", "year=2024", []byte(`[]`))

	_, err := e.coord.Read(ctx, "goals", "goals:2024", "year=2024") // miss
	require.NoError(t, err)
	_, err = e.coord.Read(ctx, "goals", "goals:2024", "year=2024") // hit
	require.NoError(t, err)

	e.monitor.SetOnline(false)
	_, err = e.coord.Write(ctx, "habits", "habits:h1", remote.OpCreate, []byte(`{}`))
	require.NoError(t, err)

	stats := e.coord.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
	assert.Equal(t, 1, stats.PendingWrites)
	assert.False(t, stats.Online)
}

func TestCoordinator_Lifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	assert.ErrorIs(t, e.coord.Stop(time.Second), errors.ErrNotStarted)
	require.NoError(t, e.coord.Start(ctx))
	assert.ErrorIs(t, e.coord.Start(ctx), errors.ErrAlreadyStarted)
	require.NoError(t, e.coord.Stop(5*time.Second))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}
