// Package errors provides standardized error handling patterns for plancache components.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input or configuration,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// Classification drives the engine's behavior at every boundary: the sync
// queue retries transient replay failures with backoff, the coordinator
// propagates invalid errors straight to the caller, and abandoned operations
// surface as fatal so the UI can ask the user to intervene.
//
// # Domain Errors
//
// The data-access engine exposes its error taxonomy as sentinel variables:
//
//   - ErrUnknownCollection: a collection has no TTL mapping; a programming
//     error at the call site, never silently defaulted
//   - ErrOfflineNoData: a read was requested for an absent key while offline;
//     recoverable by the caller (show an empty/placeholder state)
//   - ErrRemoteFetch / ErrFetchTimeout: backend failure during a read fetch;
//     propagated when no cached value exists, logged only during background
//     revalidation
//   - ErrRemoteMutation: the backend rejected a write while online; the cache
//     is left untouched
//   - ErrOperationAbandoned: a queued mutation exceeded its retry budget and
//     needs manual intervention
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: <underlying error>"
//
// via Wrap, WrapTransient, WrapInvalid and WrapFatal. The wrappers preserve
// the chain for errors.Is and errors.As.
package errors
