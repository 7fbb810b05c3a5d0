// Package client provides the HTTP session used to fetch classifieds search
// pages: one shared connection pool, explicit timeouts, an optional Redis
// page cache, optional request pacing and OpenTelemetry transport tracing.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/bama-ingest/pkg/cache"
	"github.com/Sternrassler/bama-ingest/pkg/listing"
	"github.com/Sternrassler/bama-ingest/pkg/logging"
	"github.com/Sternrassler/bama-ingest/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Prometheus metrics for page requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bama_requests_total",
		Help: "Total search page requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bama_request_duration_seconds",
		Help:    "Search page request duration in seconds, including body read",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bama_errors_total",
		Help: "Total search page request errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the classifieds API root.
	DefaultBaseURL = "https://bama.ir/cad/api"

	// DefaultTimeout bounds one request including the body read.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheTTL is how long cached pages stay valid.
	DefaultCacheTTL = 10 * time.Minute

	// maxDrainBytes is read from non-200 bodies so the connection can be reused.
	maxDrainBytes = 64 << 10
)

// Client fetches search pages over one shared connection pool.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	baseURL    string
	cache      *cache.Manager
	pacer      *ratelimit.Pacer
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root; pages are requested at BaseURL/search?pageIndex=N
	BaseURL string

	// User-Agent header sent with every request
	UserAgent string

	// Timeout bounds each request including the body read. Zero means DefaultTimeout.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate validation.
	// Historical scrapes ran with validation off; keep it false unless the
	// upstream certificate chain is known to be broken.
	InsecureSkipVerify bool

	// MaxIdleConnsPerHost sizes the keep-alive pool; set it to the batch concurrency
	MaxIdleConnsPerHost int

	// Tracing wraps the transport with otelhttp
	Tracing bool

	// TracerProvider overrides the global provider used by otelhttp
	TracerProvider trace.TracerProvider

	// Cache, when set, serves and stores 200 OK page bodies
	Cache    *cache.Manager
	CacheTTL time.Duration

	// Pacer, when set, spaces request starts
	Pacer *ratelimit.Pacer
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:             DefaultBaseURL,
		UserAgent:           userAgent,
		Timeout:             DefaultTimeout,
		InsecureSkipVerify:  false,
		MaxIdleConnsPerHost: 5,
		Tracing:             true,
		CacheTTL:            DefaultCacheTTL,
	}
}

// New creates a client. Callers own it and must Close it when the batch ends.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 5
	}

	logger := logging.NewLogger(logging.ComponentPageClient)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	transport.MaxConnsPerHost = cfg.MaxIdleConnsPerHost
	if cfg.InsecureSkipVerify {
		logger.Warn().
			Str("base_url", cfg.BaseURL).
			Msg("TLS certificate validation disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-out
	}

	var rt http.RoundTripper = transport
	if cfg.Tracing {
		var opts []otelhttp.Option
		if cfg.TracerProvider != nil {
			opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
		}
		rt = otelhttp.NewTransport(transport, opts...)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   cfg.Timeout,
		},
		transport: transport,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		cache:     cfg.Cache,
		pacer:     cfg.Pacer,
		config:    cfg,
		logger:    logger,
	}, nil
}

// PageURL returns the request target for a page index.
func (c *Client) PageURL(page int) string {
	return c.baseURL + "/search?pageIndex=" + strconv.Itoa(page)
}

// FetchPage performs one GET for a page and returns the full 200 OK body.
// Any other outcome is returned as a *FetchError. There are no retries.
func (c *Client) FetchPage(ctx context.Context, page int) ([]byte, error) {
	target := c.PageURL(page)

	// Step 1: Check cache
	var cacheKey cache.Key
	if c.cache != nil {
		key, err := cache.KeyForURL(target)
		if err != nil {
			return nil, NewFetchError(page, target, err)
		}
		cacheKey = key

		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().Int("page", page).Msg("Page served from cache")
			requestsTotal.WithLabelValues("cache").Inc()
			return entry.Body, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Int("page", page).Msg("Cache get error")
		}
	}

	// Step 2: Pace
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, c.fail(page, target, 0, err)
	}

	// Step 3: Request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, c.fail(page, target, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues("error").Inc()
		return nil, c.fail(page, target, 0, err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Int("page", page).
		Int("status_code", resp.StatusCode).
		Msg("Response received")

	// Step 4: Non-200 is terminal for this page
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		return nil, c.fail(page, target, resp.StatusCode, errors.New(resp.Status))
	}

	// Step 5: Read the body while the caller still holds its permit
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(page, target, 0, fmt.Errorf("read body: %w", err))
	}

	// Step 6: Update cache; bodies that do not decode are left for extraction to report
	if c.cache != nil {
		if _, err := listing.Decode(body); err != nil {
			c.logger.Debug().Err(err).Int("page", page).Msg("Skipping cache for undecodable page")
			return body, nil
		}
		if err := c.cache.Set(ctx, cacheKey, cache.NewPageEntry(page, body), c.config.CacheTTL); err != nil {
			c.logger.Warn().Err(err).Int("page", page).Msg("Failed to cache page")
		}
	}

	return body, nil
}

func (c *Client) fail(page int, target string, status int, err error) *FetchError {
	fe := NewFetchError(page, target, err)
	if status != 0 {
		fe.StatusCode = status
		fe.Class = ErrorClassStatus
	}
	errorsTotal.WithLabelValues(string(fe.Class)).Inc()
	return fe
}

// Close releases idle connections held by the shared pool.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
