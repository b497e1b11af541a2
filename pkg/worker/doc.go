// Package worker provides a generic, bounded worker pool.
//
// Pool[T] fans work items out across a fixed number of goroutines with a
// buffered queue, non-blocking Submit, atomic statistics, and optional
// Prometheus metrics through the engine's metric registry.
//
// In plancache the sync queue is the main consumer: each work item is a
// per-record lane of pending operations, so bounded workers cap concurrent
// replay traffic against a recovering backend while ops for one record stay
// strictly ordered inside their lane.
package worker
