package remote

import "context"

// OperationType identifies the kind of mutation sent to the backend.
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

// Valid reports whether the operation type is one of the known kinds.
func (t OperationType) Valid() bool {
	switch t {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Source is the backend the cache fronts. Payloads and responses are opaque
// bytes; the cache never interprets record contents.
type Source interface {
	// Fetch retrieves the records for a collection. query is the raw query
	// string ("year=2024", "start=2024-01-15&end=2024-01-21"), empty for
	// unparameterized collections.
	Fetch(ctx context.Context, collection, query string) ([]byte, error)

	// Mutate applies a create, update, or delete against a collection and
	// returns the server's response body (the confirmed record, usually).
	Mutate(ctx context.Context, collection string, op OperationType, payload []byte) ([]byte, error)
}
