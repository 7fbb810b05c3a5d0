// Package pagination fetches a caller-supplied set of search pages
// concurrently and aggregates one outcome per page.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig()
//	cfg.MaxConcurrency = 5
//	fetcher := pagination.NewBatchFetcher(client.DefaultConfig("bama-ingest/1.0"), cfg)
//	batch, err := fetcher.FetchAll(ctx, []int{0, 1, 2, 3})
//
// The batch fetcher:
//   - Opens one HTTP client per batch and closes it when the batch ends
//   - Creates one permit pool per batch, sized to MaxConcurrency
//   - Starts one goroutine per page up front; each holds a permit for the
//     whole request including the body read
//   - Turns every per-page failure (non-200, transport, timeout, malformed
//     payload, panic) into an empty outcome carrying a *client.FetchError
//   - Waits for all pages and returns exactly one outcome per page, in
//     completion order
//
// FetchAll only returns an error for invalid input or when aggregation
// itself breaks, in which case the BatchResult is empty.
package pagination
