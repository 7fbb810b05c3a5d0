// Package metrics provides the Prometheus registry used by the ingest pipeline.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, pagination, storage) to keep packages independent.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Fetch Metrics (pkg/pagination):
//   - bama_pages_total{outcome} (Counter): Pages by outcome (success or error class)
//   - bama_page_fetch_duration_seconds (Histogram): Permit acquisition to outcome
//   - bama_records_extracted_total (Counter): Records extracted from successful pages
//   - bama_fetch_inflight (Gauge): Permits currently held
//   - bama_batches_total{result} (Counter): Batches by result (complete, invalid, aggregation_error)
//
// Request Metrics (pkg/client):
//   - bama_requests_total{status} (Counter): Requests by HTTP status, "error" or "cache"
//   - bama_request_duration_seconds (Histogram): Request duration including body read
//   - bama_errors_total{class} (Counter): Request errors by class
//
// Cache Metrics (pkg/cache):
//   - bama_page_cache_lookups_total{result} (Counter): Lookups by result (hit, miss, invalid)
//   - bama_page_cache_stored_bytes_total (Counter): Bytes of page bodies written
//   - bama_page_cache_purged_total (Counter): Pages removed by Purge
//   - bama_page_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pacer Metrics (pkg/ratelimit):
//   - bama_pacer_waits_total (Counter): Requests delayed by the pacer
//   - bama_pacer_wait_seconds (Histogram): Time spent waiting for a token
//
// Sink Metrics (pkg/storage):
//   - bama_rows_inserted_total (Counter): Rows committed
//   - bama_sink_commits_total (Counter): Batch transactions committed
//   - bama_sink_rollbacks_total (Counter): Batch transactions rolled back
//   - bama_sink_write_duration_seconds (Histogram): Batch write duration
//
// Example Prometheus Queries:
//
//   # Page failure rate
//   sum(rate(bama_pages_total{outcome!="success"}[1h])) / sum(rate(bama_pages_total[1h]))
//
//   # Records per batch
//   increase(bama_rows_inserted_total[1h]) / increase(bama_sink_commits_total[1h])
//
//   # Cache hit ratio
//   sum(rate(bama_page_cache_lookups_total{result="hit"}[1h])) / sum(rate(bama_page_cache_lookups_total[1h]))
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(bama_page_fetch_duration_seconds_bucket[5m]))
