// Package metrics provides the centralized Prometheus registry reference
// for the gateway. All metrics are defined in their respective packages
// (gateway, cache, ratelimit, upstream, memory) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the gateway.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Gateway Metrics (pkg/gateway):
//   - promptgate_requests_total{outcome} (Counter): Requests by terminal outcome (success, denied, failed, invalid)
//   - promptgate_request_duration_seconds{outcome} (Histogram): Request duration by outcome
//   - promptgate_shared_flights_total (Counter): Requests that piggybacked on an in-flight upstream call
//   - promptgate_prompt_tokens (Histogram): Token count per inbound prompt
//
// Cache Metrics (pkg/cache):
//   - promptgate_cache_hits_total{backend} (Counter): Completion cache hits by backend
//   - promptgate_cache_misses_total{backend} (Counter): Completion cache misses by backend
//   - promptgate_cache_entries (Gauge): Entries currently held by the in-memory cache
//   - promptgate_cache_purged_entries_total (Counter): Expired entries removed by purge passes
//   - promptgate_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - promptgate_ratelimit_admitted_total{backend} (Counter): Requests admitted by the governor
//   - promptgate_ratelimit_denied_total{backend} (Counter): Requests denied by the governor
//   - promptgate_ratelimit_active_identities (Gauge): Identities with a live in-memory window
//
// Upstream Metrics (pkg/upstream):
//   - promptgate_upstream_requests_total{provider, status} (Counter): Provider requests by HTTP status
//   - promptgate_upstream_request_duration_seconds{provider} (Histogram): Provider request duration
//   - promptgate_retries_total{error_class} (Counter): Retry attempts by error class
//   - promptgate_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - promptgate_retry_exhausted_total{error_class} (Counter): Requests that exhausted max attempts
//
// Memory Metrics (pkg/memory):
//   - promptgate_heap_bytes (Gauge): Heap usage at the last sample
//   - promptgate_memory_reclamations_total (Counter): Reclamation passes triggered
//   - promptgate_memory_reclaimed_entries_total{hook} (Counter): Entries removed per purge hook
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(promptgate_cache_hits_total[5m])) /
//   (sum(rate(promptgate_cache_hits_total[5m])) + sum(rate(promptgate_cache_misses_total[5m])))
//
//   # Denial Rate
//   rate(promptgate_requests_total{outcome="denied"}[5m]) /
//   rate(promptgate_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(promptgate_request_duration_seconds_bucket[5m]))
//
//   # Retry Pressure by Error Class
//   rate(promptgate_retries_total[5m])
//
//   # Heap Headroom
//   promptgate_heap_bytes
