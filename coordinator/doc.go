// Package coordinator implements the cache-aside protocol in front of the
// planner backend.
//
// Reads are cache-first: fresh entries never touch the network, stale
// entries are served immediately while a background revalidation refreshes
// them, and misses fetch through a per-key single-flight group so a burst
// of readers produces one request. Writes go through to the backend while
// online, invalidating the affected collections on confirmation; offline
// they are queued durably and applied to the cache optimistically. The
// coordinator watches the connectivity monitor and replays the queue the
// moment the backend is reachable again.
package coordinator
