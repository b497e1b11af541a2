package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dayplan/plancache/errors"
)

// HTTPProbe returns a ProbeFunc that issues a GET against the backend's
// health endpoint. Any 2xx or 3xx response counts as reachable; the probe
// cares about the network path, not application health.
func HTTPProbe(target string, timeout time.Duration) ProbeFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return errors.WrapInvalid(err, "connectivity", "HTTPProbe", "building request")
		}
		resp, err := client.Do(req)
		if err != nil {
			return errors.WrapTransient(err, "connectivity", "HTTPProbe", "GET "+target)
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return errors.WrapTransient(
				fmt.Errorf("probe status %d", resp.StatusCode),
				"connectivity", "HTTPProbe", "GET "+target)
		}
		return nil
	}
}
