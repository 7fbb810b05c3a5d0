package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/bama-ingest/pkg/client"
	"github.com/Sternrassler/bama-ingest/pkg/listing"
	"github.com/Sternrassler/bama-ingest/pkg/logging"
	"github.com/rs/zerolog"
)

var (
	// ErrAggregation is returned when collecting outcomes breaks down.
	// The accompanying BatchResult is empty.
	ErrAggregation = errors.New("batch aggregation failed")

	// ErrDuplicatePage is returned when the same page index is requested twice.
	ErrDuplicatePage = errors.New("duplicate page index")
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the number of permits: at most this many pages are
	// in flight at once
	MaxConcurrency int
	// PageTimeout bounds one page fetch after its permit is acquired
	PageTimeout time.Duration
	// PriceMode selects where record prices are read from
	PriceMode listing.PriceMode
}

// DefaultConfig returns the defaults used by the historical scraper:
// five concurrent pages, prices from the first ad.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		PageTimeout:    15 * time.Second,
		PriceMode:      listing.PriceFromFirstAd,
	}
}

// ClientFactory opens the HTTP session for one batch.
type ClientFactory func(cfg client.Config) (PageClient, error)

// BatchFetcher fetches sets of pages concurrently.
type BatchFetcher struct {
	clientConfig client.Config
	newClient    ClientFactory
	config       Config
	logger       zerolog.Logger
}

// NewBatchFetcher creates a batch fetcher that opens a *client.Client per batch.
func NewBatchFetcher(clientCfg client.Config, config Config) *BatchFetcher {
	return NewBatchFetcherWithFactory(clientCfg, config, func(cfg client.Config) (PageClient, error) {
		return client.New(cfg)
	})
}

// NewBatchFetcherWithFactory is NewBatchFetcher with a custom session factory.
func NewBatchFetcherWithFactory(clientCfg client.Config, config Config, factory ClientFactory) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.PageTimeout <= 0 {
		config.PageTimeout = 15 * time.Second
	}
	if clientCfg.MaxIdleConnsPerHost <= 0 {
		clientCfg.MaxIdleConnsPerHost = config.MaxConcurrency
	}

	return &BatchFetcher{
		clientConfig: clientCfg,
		newClient:    factory,
		config:       config,
		logger:       logging.NewLogger(logging.ComponentCoordinator),
	}
}

// FetchAll fetches every page in pages with at most MaxConcurrency in flight
// and returns exactly one outcome per page, in completion order.
// Per-page failures are returned as empty outcomes, never as an error.
func (bf *BatchFetcher) FetchAll(ctx context.Context, pages []int) (listing.BatchResult, error) {
	start := time.Now()

	if err := checkPages(pages); err != nil {
		batchesTotal.WithLabelValues("invalid").Inc()
		return listing.BatchResult{}, err
	}
	if len(pages) == 0 {
		return listing.BatchResult{Outcomes: []listing.PageOutcome{}}, nil
	}

	pc, err := bf.newClient(bf.clientConfig)
	if err != nil {
		batchesTotal.WithLabelValues("invalid").Inc()
		return listing.BatchResult{}, fmt.Errorf("create page client: %w", err)
	}
	defer func() {
		if err := pc.Close(); err != nil {
			bf.logger.Warn().Err(err).Msg("Failed to close page client")
		}
	}()

	// One pool for the whole batch; every fetch shares it.
	permits := NewPermitPool(bf.config.MaxConcurrency)
	fetcher := NewPageFetcher(pc, permits, bf.config, logging.NewLogger(logging.ComponentFetcher))

	bf.logger.Info().
		Int("pages", len(pages)).
		Int("max_concurrency", permits.Size()).
		Str("price_mode", bf.config.PriceMode.String()).
		Msg("Starting batch fetch")

	// Buffered to len(pages) so senders never block, even if collection stops early.
	results := make(chan listing.PageOutcome, len(pages))

	var wg sync.WaitGroup
	for _, page := range pages {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			results <- fetcher.Fetch(ctx, page)
		}(page)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes, err := collect(results, pages)
	duration := time.Since(start)
	if err != nil {
		batchesTotal.WithLabelValues("aggregation_error").Inc()
		bf.logger.Error().
			Err(err).
			Int("pages", len(pages)).
			Dur("duration", duration).
			Msg("Batch aggregation failed - discarding partial results")
		return listing.BatchResult{Duration: duration}, err
	}

	batch := listing.BatchResult{
		Outcomes:     outcomes,
		Duration:     duration,
		PeakInFlight: permits.Peak(),
	}
	batchesTotal.WithLabelValues("complete").Inc()

	bf.logger.Info().
		Int("pages", batch.Len()).
		Int("pages_with_records", batch.NonEmpty()).
		Int("records", batch.RecordCount()).
		Int("peak_inflight", batch.PeakInFlight).
		Dur("duration", duration).
		Msg("Batch fetch complete")

	return batch, nil
}

// collect drains results until it holds one outcome per requested page.
func collect(results <-chan listing.PageOutcome, pages []int) (outcomes []listing.PageOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcomes = nil
			err = fmt.Errorf("%w: panic: %v", ErrAggregation, r)
		}
	}()

	pending := make(map[int]bool, len(pages))
	for _, page := range pages {
		pending[page] = true
	}

	outcomes = make([]listing.PageOutcome, 0, len(pages))
	for outcome := range results {
		if !pending[outcome.Page] {
			return nil, fmt.Errorf("%w: unexpected or repeated outcome for page %d", ErrAggregation, outcome.Page)
		}
		delete(pending, outcome.Page)
		outcomes = append(outcomes, outcome)
	}

	if len(pending) > 0 {
		return nil, fmt.Errorf("%w: %d pages produced no outcome", ErrAggregation, len(pending))
	}

	return outcomes, nil
}

func checkPages(pages []int) error {
	seen := make(map[int]struct{}, len(pages))
	for _, page := range pages {
		if _, ok := seen[page]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicatePage, page)
		}
		seen[page] = struct{}{}
	}
	return nil
}

// PageRange returns count consecutive page indexes starting at start.
func PageRange(start, count int) []int {
	if count < 0 {
		count = 0
	}
	pages := make([]int, count)
	for i := range pages {
		pages[i] = start + i
	}
	return pages
}
