package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bama_page_cache_lookups_total",
		Help: "Page cache lookups by result (hit, miss, invalid)",
	}, []string{"result"})

	storedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bama_page_cache_stored_bytes_total",
		Help: "Bytes of page bodies written to the cache",
	})

	purgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bama_page_cache_purged_total",
		Help: "Cached pages removed by Purge",
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bama_page_cache_errors_total",
		Help: "Page cache operation errors",
	}, []string{"operation"})
)
