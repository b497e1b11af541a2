// Package syncqueue captures mutations made while offline and replays them
// when connectivity returns.
//
// Every enqueue is written through to durable storage before it is
// acknowledged, so a reload or crash never loses a pending mutation. Replay
// groups operations into per-key lanes: mutations to the same record apply
// strictly in enqueue order, while lanes for independent records drain
// concurrently across a bounded worker pool. A transiently failing
// operation retries with exponential backoff; after the retry budget
// (default 5 attempts) it moves to the abandoned list, where it is retained
// for inspection instead of blocking the records behind it. Mutations the
// backend rejects outright are abandoned without burning the budget.
package syncqueue
