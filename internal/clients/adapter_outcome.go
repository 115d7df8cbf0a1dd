package clients

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"airdrop-backend/internal/metrics"
	"airdrop-backend/internal/types"
)

// Adapter names used as metric labels
const (
	AdapterTreeStoreSearch = "tree_store_search"
	AdapterTreeStoreFetch  = "tree_store_fetch"
	AdapterTreeStoreUpload = "tree_store_upload"
	AdapterAvailability    = "claim_availability"
	AdapterBlockTime       = "block_timestamp"
	AdapterLockupRead      = "lockup_read"
	AdapterClaimIndex      = "claim_index"
)

func observe(adapter string, start time.Time, status types.ResultStatus) {
	metrics.AdapterDuration.WithLabelValues(adapter).Observe(time.Since(start).Seconds())
	metrics.AdapterOutcomes.WithLabelValues(adapter, status.String()).Inc()
}

// HTTPStatusError non-2xx response from an upstream HTTP service
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// isTransient decides whether an HTTP-level failure is worth retrying later.
// Timeouts, connection errors, 429 and 5xx are transient; other 4xx are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
