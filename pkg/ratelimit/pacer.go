// Package ratelimit paces outgoing page requests with a token bucket so a
// batch does not exceed a configured request rate against the upstream API.
// It complements the concurrency cap: permits bound how many requests are in
// flight, the pacer bounds how fast new ones start.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	pacerWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bama_pacer_waits_total",
		Help: "Total number of requests that had to wait for a pacer token",
	})

	pacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bama_pacer_wait_seconds",
		Help:    "Time spent waiting for a pacer token",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)

// slowWait is the wait above which a request is logged at debug level.
const slowWait = 100 * time.Millisecond

// Pacer gates requests to a steady rate. A nil *Pacer never waits.
type Pacer struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewPacer creates a pacer allowing requestsPerSecond with the given burst.
func NewPacer(requestsPerSecond float64, burst int, logger zerolog.Logger) (*Pacer, error) {
	if requestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be > 0 (got %v)", requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}

	return &Pacer{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		logger:  logger,
	}, nil
}

// Wait blocks until a request may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}

	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("pacer wait: %w", ctxErr)
		}
		// The limiter refuses up front when the token would arrive after the deadline.
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("pacer wait: %w: %v", context.DeadlineExceeded, err)
		}
		return fmt.Errorf("pacer wait: %w", err)
	}

	waited := time.Since(start)
	if waited > time.Millisecond {
		pacerWaitsTotal.Inc()
		pacerWaitSeconds.Observe(waited.Seconds())
	}
	if waited > slowWait {
		p.logger.Debug().
			Dur("wait_duration", waited).
			Msg("Request paced")
	}

	return nil
}

// Limit returns the configured requests per second.
func (p *Pacer) Limit() float64 {
	if p == nil {
		return 0
	}
	return float64(p.limiter.Limit())
}
