// Package metrics exposes the Prometheus registry used by the client.
// Metrics are defined in their own packages (client, retry, batch,
// pagination, cache, ratelimit) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns an HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - api_requests_total{endpoint, status} (Counter)
//   - api_request_duration_seconds{endpoint} (Histogram)
//   - api_errors_total{class} (Counter)
//
// Retry Metrics (pkg/retry):
//   - api_retries_total{error_class} (Counter)
//   - api_retry_backoff_seconds{error_class} (Histogram)
//   - api_retry_exhausted_total{error_class} (Counter)
//
// Batch Metrics (pkg/batch):
//   - api_batch_items_total{status} (Counter)
//   - api_batch_inflight (Gauge)
//   - api_batch_aborts_total (Counter)
//
// Pagination Metrics (pkg/pagination):
//   - api_pages_fetched_total{driver} (Counter): driver is eager, lazy or parallel
//   - api_pagination_items_total{driver} (Counter)
//
// Cache Metrics (pkg/cache):
//   - api_cache_hits_total, api_cache_misses_total (Counter)
//   - api_cache_stale_total (Counter): expired entries kept for revalidation
//   - api_cache_revalidations_total{result} (Counter)
//   - api_cache_errors_total{operation} (Counter)
//
// Quota Metrics (pkg/ratelimit):
//   - api_rate_limit_remaining (Gauge): remaining requests in the server window
//   - api_rate_limit_blocks_total (Counter): requests refused locally on exhausted quota
//   - api_rate_limit_throttles_total (Counter): requests paced on low quota
//
// Example Prometheus Queries:
//
//   # Retry pressure by class
//   sum by (error_class) (rate(api_retries_total[5m]))
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(api_request_duration_seconds_bucket[5m]))
//
//   # Batch failure ratio
//   rate(api_batch_items_total{status="rejected"}[5m]) / rate(api_batch_items_total[5m])
