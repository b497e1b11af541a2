package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/dayplan/plancache/errors"
	"github.com/dayplan/plancache/remote"
	"github.com/dayplan/plancache/syncqueue"
)

// WriteStatus reports how a write settled.
type WriteStatus string

const (
	// StatusConfirmed means the backend accepted the mutation.
	StatusConfirmed WriteStatus = "confirmed"
	// StatusPending means the mutation is queued for replay when
	// connectivity returns.
	StatusPending WriteStatus = "pending"
)

// WriteResult is the outcome of a Write.
type WriteResult struct {
	Status WriteStatus
	// Response is the backend's response body for confirmed writes.
	Response []byte
	// Pending describes the queued operation for pending writes.
	Pending *syncqueue.PendingOperation
}

// relatedCollections lists collections whose cached data is derived from,
// or aggregates, the mutated one, so a confirmed mutation invalidates them
// too. Logging a habit changes the habit's streak and the monthly rollup;
// moving a time block changes the monthly rollup; goals and their action
// plans reference each other.
var relatedCollections = map[string][]string{
	"habits":      {"habitLogs"},
	"habitLogs":   {"habits", "monthlyData"},
	"timeBlocks":  {"monthlyData"},
	"goals":       {"actionPlans"},
	"actionPlans": {"goals"},
	"categories":  {"timeBlocks"},
}

// Write applies a mutation. Online, the backend is mutated first and only a
// confirmed success touches the cache (by invalidating the affected keys);
// a rejected or failed mutation leaves the cache exactly as it was.
// Offline, the mutation is durably queued, the cache is optimistically
// updated so the app immediately reflects the user's change, and the result
// reports StatusPending.
func (c *Coordinator) Write(ctx context.Context, collection, key string, op remote.OperationType, payload []byte) (WriteResult, error) {
	if _, err := c.policy.TTLFor(collection); err != nil {
		return WriteResult{}, err
	}
	if !op.Valid() {
		return WriteResult{}, errors.WrapInvalid(errors.ErrUnknownOperationType,
			"coordinator", "Write", fmt.Sprintf("operation %q", op))
	}
	if key == "" {
		return WriteResult{}, errors.WrapInvalid(errors.ErrInvalidData,
			"coordinator", "Write", "key is required")
	}

	if !c.monitor.Online() {
		return c.writeOffline(ctx, collection, key, op, payload)
	}

	response, err := c.source.Mutate(ctx, collection, op, payload)
	if err != nil {
		return WriteResult{}, err
	}

	c.invalidateAfterMutation(collection, key, op)
	c.logger.Debug("write confirmed", "collection", collection, "key", key, "op", op)
	return WriteResult{Status: StatusConfirmed, Response: response}, nil
}

// writeOffline queues the mutation and applies it optimistically.
func (c *Coordinator) writeOffline(ctx context.Context, collection, key string, op remote.OperationType, payload []byte) (WriteResult, error) {
	queued, err := c.queue.Enqueue(ctx, syncqueue.PendingOperation{
		Type:       op,
		Collection: collection,
		Key:        key,
		Payload:    payload,
	})
	if err != nil {
		return WriteResult{}, err
	}

	// Optimistic update: the item key reflects the user's change right
	// away; list keys for the collection are dropped because their cached
	// contents no longer match.
	ttl, _ := c.policy.TTLFor(collection)
	switch op {
	case remote.OpDelete:
		c.store.Remove(key)
	default:
		c.store.Put(key, payload, ttl)
	}
	c.store.RemoveFunc(func(k string) bool {
		return k != key && keyInCollection(k, collection)
	})

	c.logger.Info("write queued for replay",
		"collection", collection, "key", key, "op", op, "seq", queued.Seq)
	return WriteResult{Status: StatusPending, Pending: &queued}, nil
}

// invalidateAfterMutation drops every cached key a confirmed mutation may
// have made wrong: the whole mutated collection plus its related
// collections. The next read refetches confirmed server state.
func (c *Coordinator) invalidateAfterMutation(collection, key string, op remote.OperationType) {
	removed := c.store.RemoveFunc(func(k string) bool {
		return keyInCollection(k, collection)
	})
	for _, rel := range relatedCollections[collection] {
		removed += c.store.RemoveFunc(func(k string) bool {
			return keyInCollection(k, rel)
		})
	}
	c.logger.Debug("invalidated after mutation",
		"collection", collection, "key", key, "op", op, "removed", removed)
}

// Invalidate drops cached entries. A known collection name drops the whole
// collection; anything else is treated as a single cache key. Returns the
// number of entries removed; invalidating what is already absent is a
// no-op.
func (c *Coordinator) Invalidate(collectionOrKey string) int {
	if _, err := c.policy.TTLFor(collectionOrKey); err == nil {
		return c.store.RemoveFunc(func(k string) bool {
			return keyInCollection(k, collectionOrKey)
		})
	}
	if c.store.Remove(collectionOrKey) {
		return 1
	}
	return 0
}

// ClearAll empties the cache. Called on logout and account switch so no
// data leaks across users. The sync queue is left alone: pending mutations
// belong to the account that made them and still need to replay.
func (c *Coordinator) ClearAll() {
	c.store.Clear()
	c.logger.Info("cache cleared")
}

// keyInCollection reports whether cache key k belongs to collection: either
// the bare collection key or a parameterized "collection:..." key.
func keyInCollection(k, collection string) bool {
	return k == collection || strings.HasPrefix(k, collection+":")
}
