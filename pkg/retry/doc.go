// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff, used
// by the sync queue when replaying pending mutations against a backend that is
// recovering from an outage, and by components talking to local storage.
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Replay(): 5 attempts, 500ms-30s delay (queue replay after reconnect)
//
// # Usage Examples
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return source.Ping(ctx)
//	})
//
// Queue replay with backoff between attempts:
//
//	cfg := retry.Replay()
//	err := retry.Do(ctx, cfg, func() error {
//	    return apply(op)
//	})
//
// Errors wrapped with NonRetryable fail immediately without further attempts;
// the sync queue uses this for mutations the backend rejected as invalid.
package retry
