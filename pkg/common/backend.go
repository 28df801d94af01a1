package common

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/logger"
)

// WaitForBackend attempts to reach the marketplace backend with exponential
// backoff. It retries failed reachability probes for up to 2 minutes starting
// with 2 second intervals. This handles spotty field connectivity during agent
// startup; verification and upload calls themselves are never retried
// automatically, a failed one is always re-driven by the user.
func WaitForBackend(ctx context.Context, log *logger.Logger, client *http.Client, baseURL string) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 2 * time.Minute
	expBackoff.InitialInterval = 2 * time.Second

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := client.Do(req)
		if err != nil {
			log.Warn(ctx, "backend unreachable, will retry", "base_url", baseURL, "error", err)
			return err
		}
		resp.Body.Close()

		// Any HTTP response means the backend is reachable. Authorization
		// failures are surfaced later by the actual verification call.
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return fmt.Errorf("backend not reachable after retries: %w", err)
	}

	return nil
}
