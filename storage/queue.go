// Package storage defines the durable persistence contract for the offline
// sync queue. The queue writes ahead of acknowledging an enqueue, so pending
// mutations survive process restarts.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Operation is the serialized form of a queued mutation. The payload is
// opaque JSON; the store never interprets record contents.
type Operation struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Type       string          `json:"type"`
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
}

// Snapshot is the complete durable state of the queue: pending operations
// in enqueue order, abandoned operations retained for inspection, and the
// sequence counter so restored queues keep numbering monotonically.
type Snapshot struct {
	Pending   []Operation `json:"pending"`
	Abandoned []Operation `json:"abandoned"`
	NextSeq   uint64      `json:"next_seq"`
}

// QueueStore persists queue snapshots. Persist replaces the stored state
// atomically; Load returns an empty snapshot when nothing has been stored.
type QueueStore interface {
	Persist(ctx context.Context, snapshot Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
	Close() error
}
