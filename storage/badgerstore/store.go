// Package badgerstore persists sync queue snapshots in BadgerDB, an
// embeddable pure-Go key-value store. One record per operation, keyed by
// zero-padded sequence number so Badger's key ordering yields enqueue order
// on iteration.
package badgerstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dayplan/plancache/errors"
	"github.com/dayplan/plancache/storage"
)

const (
	pendingPrefix   = "queue/pending/"
	abandonedPrefix = "queue/abandoned/"
	seqKey          = "queue/meta/next_seq"
)

// Config configures the badger-backed queue store.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM. Tests use this; production queues
	// need a directory to survive restarts.
	InMemory bool

	// SyncWrites forces an fsync per commit. The queue is a write-ahead
	// log, so durability beats throughput here.
	SyncWrites bool

	// GCInterval is how often the value-log garbage collector runs.
	// Zero disables GC, which is fine for in-memory stores.
	GCInterval time.Duration

	// GCDiscardRatio is passed to badger's RunValueLogGC.
	GCDiscardRatio float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Store is a storage.QueueStore backed by BadgerDB.
type Store struct {
	db     *badger.DB
	gcStop chan struct{}
	gcWg   sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New opens (or creates) the badger database and starts the GC loop.
func New(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "badgerstore", "New",
			"storage directory cannot be empty")
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err),
			"badgerstore", "New", "opening database")
	}

	s := &Store{
		db:     db,
		gcStop: make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// startGC runs badger's value-log garbage collector on an interval.
func (s *Store) startGC(interval time.Duration, discardRatio float64) {
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.gcStop:
				return
			case <-ticker.C:
				// ErrNoRewrite just means there was nothing to collect.
				for {
					if err := s.db.RunValueLogGC(discardRatio); err != nil {
						break
					}
				}
			}
		}
	}()
}

// opKey builds a prefix + zero-padded-sequence key so lexicographic order
// equals enqueue order.
func opKey(prefix string, seq uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], seq)
	return buf
}

// Persist implements storage.QueueStore. The previous state is replaced in
// a single transaction so a crash never leaves a half-written snapshot.
func (s *Store) Persist(ctx context.Context, snapshot storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefixLocked(txn, pendingPrefix); err != nil {
			return err
		}
		if err := deletePrefixLocked(txn, abandonedPrefix); err != nil {
			return err
		}

		for _, op := range snapshot.Pending {
			data, err := json.Marshal(op)
			if err != nil {
				return err
			}
			if err := txn.Set(opKey(pendingPrefix, op.Seq), data); err != nil {
				return err
			}
		}
		for _, op := range snapshot.Abandoned {
			data, err := json.Marshal(op)
			if err != nil {
				return err
			}
			if err := txn.Set(opKey(abandonedPrefix, op.Seq), data); err != nil {
				return err
			}
		}

		seqBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(seqBytes, snapshot.NextSeq)
		return txn.Set([]byte(seqKey), seqBytes)
	})
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err),
			"badgerstore", "Persist", "writing snapshot")
	}
	return nil
}

// Load implements storage.QueueStore.
func (s *Store) Load(ctx context.Context) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}

	var snapshot storage.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if snapshot.Pending, err = loadPrefixLocked(txn, pendingPrefix); err != nil {
			return err
		}
		if snapshot.Abandoned, err = loadPrefixLocked(txn, abandonedPrefix); err != nil {
			return err
		}

		item, err := txn.Get([]byte(seqKey))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				snapshot.NextSeq = binary.BigEndian.Uint64(val)
			}
			return nil
		})
	})
	if err != nil {
		return storage.Snapshot{}, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err),
			"badgerstore", "Load", "reading snapshot")
	}
	return snapshot, nil
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.gcStop)
		s.gcWg.Wait()
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func deletePrefixLocked(txn *badger.Txn, prefix string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)

	it := txn.NewIterator(opts)
	var doomed [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		doomed = append(doomed, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range doomed {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func loadPrefixLocked(txn *badger.Txn, prefix string) ([]storage.Operation, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	var ops []storage.Operation
	for it.Rewind(); it.Valid(); it.Next() {
		var op storage.Operation
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &op)
		})
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

var _ storage.QueueStore = (*Store)(nil)
