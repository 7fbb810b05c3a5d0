package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bama_pages_total",
		Help: "Pages fetched by outcome (success or error class)",
	}, []string{"outcome"})

	pageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bama_page_fetch_duration_seconds",
		Help:    "Time from permit acquisition to outcome for one page",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	recordsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bama_records_extracted_total",
		Help: "Car records extracted from fetched pages",
	})

	fetchInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bama_fetch_inflight",
		Help: "Page fetches currently holding a permit",
	})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bama_batches_total",
		Help: "Batches run by result",
	}, []string{"result"}) // "complete", "aggregation_error", "invalid"
)
