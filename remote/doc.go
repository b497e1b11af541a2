// Package remote defines the backend data source the cache fronts and its
// REST implementation. Responses are opaque bytes; classification of
// failures (transient vs invalid) is the package's main job, because the
// coordinator and sync queue decide retry behavior from the error class
// alone.
package remote
