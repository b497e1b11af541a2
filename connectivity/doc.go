// Package connectivity tracks whether the planner backend is reachable.
//
// The Monitor combines three signals into one debounced online/offline
// boolean: a periodic HTTP probe of the backend health endpoint, an optional
// websocket heartbeat, and manual overrides via SetOnline. Subscribers get a
// channel notification on every transition; the coordinator uses the
// offline-to-online edge to trigger a sync queue drain.
package connectivity
