package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/bama-ingest/pkg/cache"
	"github.com/Sternrassler/bama-ingest/pkg/client"
	"github.com/Sternrassler/bama-ingest/pkg/listing"
	"github.com/Sternrassler/bama-ingest/pkg/logging"
	"github.com/Sternrassler/bama-ingest/pkg/metrics"
	"github.com/Sternrassler/bama-ingest/pkg/pagination"
	"github.com/Sternrassler/bama-ingest/pkg/ratelimit"
	"github.com/Sternrassler/bama-ingest/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultUserAgent = "bama-ingest/0.1.0"

// options holds everything one run needs.
type options struct {
	start       int
	pages       int
	concurrency int
	pageTimeout time.Duration
	perAdPrice  bool
	insecure    bool
	refresh     bool

	sink        string
	dbPath      string
	databaseURL string

	baseURL     string
	userAgent   string
	redisURL    string
	metricsAddr string
	rps         float64
}

// summary describes one completed run.
type summary struct {
	Pages            int
	PagesWithRecords int
	Records          int
	Inserted         int
	Duration         time.Duration
}

func main() {
	logger := logging.Setup(logging.ConfigFromEnv())

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.metricsAddr != "" {
		srv := &http.Server{Addr: opts.metricsAddr, Handler: newMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info().Str("addr", opts.metricsAddr).Msg("Starting metrics listener")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sum, err := run(ctx, opts, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ingest failed")
		stop()
		os.Exit(1)
	}

	logger.Info().
		Int("pages", sum.Pages).
		Int("pages_with_records", sum.PagesWithRecords).
		Int("records", sum.Records).
		Int("inserted", sum.Inserted).
		Dur("duration", sum.Duration).
		Msg("Ingest complete")
}

// parseOptions reads flags, falling back to the environment for
// connection settings.
func parseOptions(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("bama-ingest", flag.ContinueOnError)
	fs.IntVar(&opts.start, "start", 0, "first page index")
	fs.IntVar(&opts.pages, "pages", 10, "number of consecutive pages to fetch")
	fs.IntVar(&opts.concurrency, "concurrency", pagination.DefaultConfig().MaxConcurrency, "maximum pages in flight")
	fs.DurationVar(&opts.pageTimeout, "page-timeout", pagination.DefaultConfig().PageTimeout, "timeout for one page fetch")
	fs.BoolVar(&opts.perAdPrice, "per-ad-price", false, "read each record's price from its own ad instead of the first ad on the page")
	fs.BoolVar(&opts.insecure, "insecure-skip-verify", false, "disable TLS certificate validation")
	fs.BoolVar(&opts.refresh, "refresh-cache", false, "purge cached pages before fetching (needs REDIS_URL)")
	fs.StringVar(&opts.sink, "sink", "sqlite", "sink driver: sqlite or postgres")
	fs.StringVar(&opts.dbPath, "db", "cars.db", "SQLite database path")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.baseURL = getEnv("BASE_URL", client.DefaultBaseURL)
	opts.userAgent = getEnv("USER_AGENT", defaultUserAgent)
	opts.databaseURL = getEnv("DATABASE_URL", "")
	opts.redisURL = getEnv("REDIS_URL", "")
	opts.metricsAddr = getEnv("METRICS_ADDR", "")

	if v := getEnv("REQUESTS_PER_SECOND", ""); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return options{}, fmt.Errorf("REQUESTS_PER_SECOND: %w", err)
		}
		opts.rps = rps
	}

	switch {
	case opts.pages < 0:
		return options{}, fmt.Errorf("-pages must not be negative (got %d)", opts.pages)
	case opts.concurrency < 1:
		return options{}, fmt.Errorf("-concurrency must be at least 1 (got %d)", opts.concurrency)
	case opts.sink != "sqlite" && opts.sink != "postgres":
		return options{}, fmt.Errorf("-sink must be sqlite or postgres (got %q)", opts.sink)
	case opts.refresh && opts.redisURL == "":
		return options{}, errors.New("-refresh-cache needs REDIS_URL")
	case opts.sink == "postgres" && opts.databaseURL == "":
		return options{}, errors.New("DATABASE_URL is required for the postgres sink")
	}

	return opts, nil
}

// run fetches the configured page range and persists it.
func run(ctx context.Context, opts options, logger zerolog.Logger) (summary, error) {
	sink, err := openSink(ctx, opts)
	if err != nil {
		return summary{}, err
	}
	defer sink.Close()

	if err := sink.EnsureSchema(ctx); err != nil {
		return summary{}, err
	}

	clientCfg := client.DefaultConfig(opts.userAgent)
	clientCfg.BaseURL = opts.baseURL
	clientCfg.InsecureSkipVerify = opts.insecure

	if opts.redisURL != "" {
		rdb, err := newRedisClient(ctx, opts.redisURL)
		if err != nil {
			return summary{}, err
		}
		defer rdb.Close()
		pages := cache.NewManager(rdb)
		if opts.refresh {
			if _, err := pages.Purge(ctx); err != nil {
				return summary{}, err
			}
		}
		clientCfg.Cache = pages
		logger.Info().Msg("Page cache enabled")
	}

	if opts.rps > 0 {
		pacer, err := ratelimit.NewPacer(opts.rps, 1, logging.NewLogger(logging.ComponentPacer))
		if err != nil {
			return summary{}, err
		}
		clientCfg.Pacer = pacer
	}

	fetchCfg := pagination.DefaultConfig()
	fetchCfg.MaxConcurrency = opts.concurrency
	fetchCfg.PageTimeout = opts.pageTimeout
	if opts.perAdPrice {
		fetchCfg.PriceMode = listing.PriceFromOwnAd
	}

	batch, err := pagination.NewBatchFetcher(clientCfg, fetchCfg).
		FetchAll(ctx, pagination.PageRange(opts.start, opts.pages))
	batch, err = containAggregation(batch, err, logger)
	if err != nil {
		return summary{}, err
	}

	inserted, err := sink.Write(ctx, batch)
	if err != nil {
		return summary{}, err
	}

	return summary{
		Pages:            batch.Len(),
		PagesWithRecords: batch.NonEmpty(),
		Records:          batch.RecordCount(),
		Inserted:         inserted,
		Duration:         batch.Duration,
	}, nil
}

// containAggregation turns a failed collection into an empty batch so the
// run still commits. Any other fetch error is returned unchanged.
func containAggregation(batch listing.BatchResult, err error, logger zerolog.Logger) (listing.BatchResult, error) {
	if err == nil || !errors.Is(err, pagination.ErrAggregation) {
		return batch, err
	}
	logger.Error().Err(err).Msg("Batch aggregation failed, continuing with no records")
	return listing.BatchResult{Outcomes: []listing.PageOutcome{}}, nil
}

func openSink(ctx context.Context, opts options) (storage.Sink, error) {
	if opts.sink == "postgres" {
		return storage.NewPostgresSink(ctx, opts.databaseURL)
	}
	return storage.OpenSQLite(ctx, opts.dbPath)
}

// newRedisClient accepts either a redis:// URL or a bare host:port.
func newRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	var redisOpts *redis.Options
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisOpts = parsed
	} else {
		redisOpts = &redis.Options{Addr: redisURL}
	}

	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
