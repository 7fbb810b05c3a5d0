package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/bama-ingest/pkg/client"
	"github.com/Sternrassler/bama-ingest/pkg/listing"
	"github.com/rs/zerolog"
)

// PageClient is the HTTP session a batch fetches through.
// *client.Client implements it.
type PageClient interface {
	// PageURL returns the request target for a page index
	PageURL(page int) string
	// FetchPage returns the 200 OK body of a page or a *client.FetchError
	FetchPage(ctx context.Context, page int) ([]byte, error)
	// Close releases pooled connections
	Close() error
}

// PageFetcher turns one page index into one outcome under a shared permit pool.
type PageFetcher struct {
	client    PageClient
	permits   *PermitPool
	timeout   time.Duration
	priceMode listing.PriceMode
	logger    zerolog.Logger
}

// NewPageFetcher binds a client and a batch-wide permit pool.
func NewPageFetcher(pc PageClient, permits *PermitPool, cfg Config, logger zerolog.Logger) *PageFetcher {
	return &PageFetcher{
		client:    pc,
		permits:   permits,
		timeout:   cfg.PageTimeout,
		priceMode: cfg.PriceMode,
		logger:    logger,
	}
}

// Fetch acquires a permit, fetches and extracts one page, and releases the
// permit before returning. It never fails: every error becomes an outcome
// with no records and Err set.
func (f *PageFetcher) Fetch(ctx context.Context, page int) (outcome listing.PageOutcome) {
	start := time.Now()
	var url string

	defer func() {
		if r := recover(); r != nil {
			outcome = f.fail(page, url, fmt.Errorf("panic: %v", r), start)
		}
	}()

	url = f.client.PageURL(page)
	outcome = listing.PageOutcome{Page: page, URL: url}

	if err := f.permits.Acquire(ctx); err != nil {
		return f.fail(page, url, err, start)
	}
	defer f.permits.Release()

	f.logger.Info().
		Int("page", page).
		Str("url", url).
		Int("inflight", f.permits.Held()).
		Msg("Fetching page")

	pageCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	body, err := f.client.FetchPage(pageCtx, page)
	if err != nil {
		return f.fail(page, url, err, start)
	}

	records, err := listing.ExtractJSON(body, f.priceMode)
	if err != nil {
		return f.fail(page, url, err, start)
	}

	duration := time.Since(start)
	pagesTotal.WithLabelValues("success").Inc()
	pageFetchDuration.Observe(duration.Seconds())
	recordsExtractedTotal.Add(float64(len(records)))

	f.logger.Info().
		Int("page", page).
		Int("records", len(records)).
		Dur("duration", duration).
		Msg("Page fetched")

	outcome.Records = records
	return outcome
}

// fail logs err with its class and returns the empty outcome for page.
func (f *PageFetcher) fail(page int, url string, err error, start time.Time) listing.PageOutcome {
	fe := client.NewFetchError(page, url, err)
	duration := time.Since(start)

	pagesTotal.WithLabelValues(string(fe.Class)).Inc()
	pageFetchDuration.Observe(duration.Seconds())

	event := f.logger.Error()
	if fe.Class == client.ErrorClassStatus {
		event = f.logger.Warn().Int("status_code", fe.StatusCode)
	}
	event.
		Err(fe.Err).
		Int("page", page).
		Str("url", url).
		Str("error_class", string(fe.Class)).
		Dur("duration", duration).
		Msg("Page fetch failed")

	return listing.PageOutcome{Page: page, URL: url, Err: fe}
}
