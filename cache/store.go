package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/dayplan/plancache/errors"
)

// EvictCallback is called when an entry is evicted from the store.
type EvictCallback[V any] func(key string, value V)

// Entry is a cached value with the metadata the freshness and eviction
// policies need.
type Entry[V any] struct {
	Key          string
	Value        V
	StoredAt     time.Time // last refresh
	TTL          time.Duration
	LastAccessed time.Time // read or write touch, drives LRU ordering
}

// IsFresh reports whether the entry is within its TTL at the given time.
// A stale entry is still servable under stale-while-revalidate but never
// satisfies a force-fresh read.
func (e Entry[V]) IsFresh(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// AgeLabel returns a human-readable age for diagnostics displays.
func (e Entry[V]) AgeLabel(now time.Time) string {
	age := now.Sub(e.StoredAt)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return pluralize(int(age.Minutes()), "minute")
	case age < 24*time.Hour:
		return pluralize(int(age.Hours()), "hour")
	default:
		return pluralize(int(age.Hours()/24), "day")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return itoa(n) + " " + unit + "s ago"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Store is a bounded, thread-safe key to entry map with LRU recency
// tracking. The most recently touched entry sits at the front of the
// recency list; the eviction victim is always the back.
//
// Invariant: Size() <= maxEntries after every mutating operation.
type Store[V any] struct {
	mu         sync.Mutex
	maxEntries int
	items      map[string]*list.Element // key -> list element
	order      *list.List               // recency order, MRU at front
	stats      *Statistics              // always collected
	metrics    *storeMetrics            // optional Prometheus export
	evictFn    EvictCallback[V]
	nowFn      func() time.Time
}

// NewStore creates a bounded entry store. maxEntries must be positive.
func NewStore[V any](maxEntries int, options ...Option[V]) (*Store[V], error) {
	if maxEntries <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewStore",
			"maxEntries must be positive")
	}

	opts := applyOptions(options...)

	var metrics *storeMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newStoreMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewStore", "metrics registration")
		}
	}

	nowFn := opts.nowFn
	if nowFn == nil {
		nowFn = time.Now
	}

	return &Store[V]{
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		stats:      NewStatistics(),
		metrics:    metrics,
		evictFn:    opts.evictCallback,
		nowFn:      nowFn,
	}, nil
}

// Get retrieves the entry for key. A hit updates LastAccessed and moves
// the entry to the front of the recency order.
func (s *Store[V]) Get(key string) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	element, exists := s.items[key]
	if !exists {
		s.stats.Miss()
		if s.metrics != nil {
			s.metrics.recordMiss()
		}
		return Entry[V]{}, false
	}

	entry := element.Value.(*Entry[V])
	entry.LastAccessed = s.nowFn()
	s.order.MoveToFront(element)

	s.stats.Hit()
	if s.metrics != nil {
		s.metrics.recordHit()
	}

	return *entry, true
}

// Peek returns the entry without touching recency or statistics. Used by
// diagnostics and by the coordinator to inspect staleness without skewing
// hit rates.
func (s *Store[V]) Peek(key string) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	element, exists := s.items[key]
	if !exists {
		return Entry[V]{}, false
	}
	return *element.Value.(*Entry[V]), true
}

// Put stores value under key with the given TTL, overwriting any existing
// entry. Both the overwrite and the insert count as a recency touch. If
// inserting a brand-new key would exceed capacity, the least recently used
// entries are evicted first.
func (s *Store[V]) Put(key string, value V, ttl time.Duration) {
	now := s.nowFn()

	s.mu.Lock()

	if element, exists := s.items[key]; exists {
		entry := element.Value.(*Entry[V])
		entry.Value = value
		entry.TTL = ttl
		entry.StoredAt = now
		entry.LastAccessed = now
		s.order.MoveToFront(element)

		s.stats.Set()
		if s.metrics != nil {
			s.metrics.recordSet()
		}
		s.mu.Unlock()
		return
	}

	// Make room before inserting a new key.
	evicted := s.evictUntilWithinCapacityLocked()

	entry := &Entry[V]{
		Key:          key,
		Value:        value,
		TTL:          ttl,
		StoredAt:     now,
		LastAccessed: now,
	}
	s.items[key] = s.order.PushFront(entry)

	s.stats.Set()
	s.stats.UpdateSize(int64(len(s.items)))
	if s.metrics != nil {
		s.metrics.recordSet()
		s.metrics.updateSize(len(s.items))
	}
	s.mu.Unlock()

	// Callbacks run outside the lock to prevent deadlock.
	s.notifyEvicted(evicted)
}

// Remove deletes the entry for key. Returns false if the key was absent;
// removing an absent key is a no-op, not an error.
func (s *Store[V]) Remove(key string) bool {
	s.mu.Lock()

	element, exists := s.items[key]
	if !exists {
		s.mu.Unlock()
		return false
	}

	s.removeElementLocked(element)
	s.stats.Delete()
	s.stats.UpdateSize(int64(len(s.items)))
	if s.metrics != nil {
		s.metrics.recordDelete()
		s.metrics.updateSize(len(s.items))
	}
	s.mu.Unlock()
	return true
}

// RemoveByPrefix deletes every entry whose key starts with prefix and
// returns the count. Used for bulk invalidation of a collection that spans
// multiple parameterized keys (all date ranges of "timeBlocks:", say).
func (s *Store[V]) RemoveByPrefix(prefix string) int {
	return s.RemoveFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// RemoveFunc deletes every entry whose key matches the predicate and
// returns the count.
func (s *Store[V]) RemoveFunc(match func(key string) bool) int {
	s.mu.Lock()

	var doomed []*list.Element
	for element := s.order.Front(); element != nil; element = element.Next() {
		if match(element.Value.(*Entry[V]).Key) {
			doomed = append(doomed, element)
		}
	}

	for _, element := range doomed {
		s.removeElementLocked(element)
		s.stats.Delete()
	}

	if len(doomed) > 0 {
		s.stats.UpdateSize(int64(len(s.items)))
		if s.metrics != nil {
			for range doomed {
				s.metrics.recordDelete()
			}
			s.metrics.updateSize(len(s.items))
		}
	}
	s.mu.Unlock()
	return len(doomed)
}

// Clear empties the store. Used on logout and account switch.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	s.items = make(map[string]*list.Element)
	s.order.Init()
	s.stats.UpdateSize(0)
	if s.metrics != nil {
		s.metrics.updateSize(0)
	}
	s.mu.Unlock()
}

// Size returns the current number of entries.
func (s *Store[V]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Keys returns all keys in recency order, most recently touched first.
func (s *Store[V]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.items))
	for element := s.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*Entry[V]).Key)
	}
	return keys
}

// Stats returns the store's statistics tracker.
func (s *Store[V]) Stats() *Statistics {
	return s.stats
}

// selectVictimLocked returns the eviction victim: the entry with the
// oldest LastAccessed. The recency list keeps that entry at the back;
// entries touched at the same instant keep their relative touch order and
// untouched entries keep insertion order, so selection is deterministic.
// Must be called with the mutex held.
func (s *Store[V]) selectVictimLocked() *list.Element {
	return s.order.Back()
}

// evictUntilWithinCapacityLocked evicts LRU victims until there is room
// for one pending insert. Evicting from an empty store is a no-op.
// Returns the evicted entries; the caller fires callbacks after unlocking.
func (s *Store[V]) evictUntilWithinCapacityLocked() []Entry[V] {
	var evicted []Entry[V]
	for len(s.items) > s.maxEntries-1 {
		victim := s.selectVictimLocked()
		if victim == nil {
			break
		}
		entry := victim.Value.(*Entry[V])
		evicted = append(evicted, *entry)
		s.removeElementLocked(victim)

		s.stats.Eviction()
		if s.metrics != nil {
			s.metrics.recordEviction()
		}
	}
	if len(evicted) > 0 {
		s.stats.UpdateSize(int64(len(s.items)))
		if s.metrics != nil {
			s.metrics.updateSize(len(s.items))
		}
	}
	return evicted
}

// removeElementLocked removes an element from both the list and the map.
// Must be called with the mutex held. Does not fire the eviction callback.
func (s *Store[V]) removeElementLocked(element *list.Element) {
	entry := element.Value.(*Entry[V])
	delete(s.items, entry.Key)
	s.order.Remove(element)
}

// notifyEvicted fires the eviction callback for each evicted entry.
func (s *Store[V]) notifyEvicted(evicted []Entry[V]) {
	if s.evictFn == nil {
		return
	}
	for _, entry := range evicted {
		s.evictFn(entry.Key, entry.Value)
	}
}
