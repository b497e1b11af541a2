package syncqueue

import (
	"time"

	"github.com/google/uuid"

	"github.com/dayplan/plancache/remote"
	"github.com/dayplan/plancache/storage"
)

// PendingOperation is a mutation captured while offline, waiting to be
// replayed against the backend. Seq is assigned at enqueue time and is
// monotonic across restarts; per-key replay order follows it.
type PendingOperation struct {
	ID         uuid.UUID
	Seq        uint64
	Type       remote.OperationType
	Collection string
	Key        string
	Payload    []byte
	CreatedAt  time.Time
	Attempts   int
	LastError  string
}

// record converts to the durable form.
func (op PendingOperation) record() storage.Operation {
	return storage.Operation{
		ID:         op.ID.String(),
		Seq:        op.Seq,
		Type:       string(op.Type),
		Collection: op.Collection,
		Key:        op.Key,
		Payload:    op.Payload,
		CreatedAt:  op.CreatedAt,
		Attempts:   op.Attempts,
		LastError:  op.LastError,
	}
}

// fromRecord restores an operation from its durable form. A malformed ID
// gets a fresh one rather than poisoning the whole restore.
func fromRecord(rec storage.Operation) PendingOperation {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		id = uuid.New()
	}
	return PendingOperation{
		ID:         id,
		Seq:        rec.Seq,
		Type:       remote.OperationType(rec.Type),
		Collection: rec.Collection,
		Key:        rec.Key,
		Payload:    rec.Payload,
		CreatedAt:  rec.CreatedAt,
		Attempts:   rec.Attempts,
		LastError:  rec.LastError,
	}
}
