package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/dayplan/plancache/errors"
)

// Read returns the data for key using the cache-aside protocol:
//
//  1. fresh cached entry: returned immediately, no network;
//  2. stale cached entry: returned immediately while a background
//     revalidation refreshes it (stale-while-revalidate);
//  3. miss while online: fetched from the backend, cached, returned;
//     concurrent readers of one absent key share a single fetch;
//  4. miss while offline: ErrOfflineNoData.
//
// key is the cache key ("goals:2024"); query is the backend query string
// for the fetch. An unknown collection fails fast regardless of cache
// state: a missing TTL mapping is a configuration bug.
func (c *Coordinator) Read(ctx context.Context, collection, key, query string) ([]byte, error) {
	ttl, err := c.policy.TTLFor(collection)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if entry, ok := c.store.Get(key); ok {
		if entry.IsFresh(now) {
			return entry.Value, nil
		}
		// Stale: serve it, refresh behind the caller's back. Offline the
		// stale value is the best we have and revalidation would only
		// burn a queue of doomed requests.
		if c.monitor.Online() {
			c.revalidate(collection, key, query, ttl)
		}
		return entry.Value, nil
	}

	if !c.monitor.Online() {
		return nil, errors.WrapTransient(errors.ErrOfflineNoData, "coordinator", "Read",
			fmt.Sprintf("key %q", key))
	}

	value, err, _ := c.flight.Do(key, func() (any, error) {
		data, fetchErr := c.source.Fetch(ctx, collection, query)
		if fetchErr != nil {
			return nil, fetchErr
		}
		c.store.Put(key, data, ttl)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

// revalidate refreshes a stale entry in the background. It shares the
// single-flight group with foreground misses, so a read racing a
// revalidation never duplicates the network call. Errors are contained:
// the caller already has a servable value.
func (c *Coordinator) revalidate(collection, key, query string, ttl time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, err, shared := c.flight.Do(key, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), c.revalidateTimeout)
			defer cancel()

			data, fetchErr := c.source.Fetch(ctx, collection, query)
			if fetchErr != nil {
				return nil, fetchErr
			}
			c.store.Put(key, data, ttl)
			return data, nil
		})
		if err != nil {
			c.logger.Debug("revalidation failed, stale entry retained",
				"key", key, "shared", shared, "error", err)
		}
	}()
}
