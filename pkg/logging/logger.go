// Package logging configures the global zerolog logger for the ingest
// pipeline and hands out per-component child loggers.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names used in the "component" field.
const (
	ComponentFetcher     = "fetcher"
	ComponentCoordinator = "coordinator"
	ComponentPageClient  = "page-client"
	ComponentPageCache   = "page-cache"
	ComponentPacer       = "pacer"
	ComponentSink        = "sink"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written
	Level zerolog.Level

	// Pretty switches from JSON lines to zerolog's console writer
	Pretty bool

	// Output defaults to os.Stderr
	Output io.Writer
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  zerolog.InfoLevel,
		Output: os.Stderr,
	}
}

// ConfigFromEnv applies LOG_LEVEL and LOG_PRETTY to DefaultConfig.
// Unknown values keep the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Level = ParseLevel(v)
	}
	if pretty, err := strconv.ParseBool(os.Getenv("LOG_PRETTY")); err == nil {
		cfg.Pretty = pretty
	}
	return cfg
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
// "warning" is accepted as an alias for "warn".
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

// Setup installs the global logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level)
	zerolog.DurationFieldUnit = time.Millisecond

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Pacer waits
//   - Response status before the body is read
//
// Info: Normal operation events
//   - Page fetch start and success with record counts
//   - Batch start and completion totals
//   - Batch persisted
//   - Metrics listener startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Non-200 page responses
//   - Pages that produced no records
//   - Cache errors (fallback to direct request)
//   - TLS certificate validation disabled
//
// Error: Error conditions requiring attention
//   - Transport, timeout, malformed payload and unexpected page failures
//   - Batch aggregation failures
//   - Rolled back transactions
//   - Configuration errors
//
// Context Fields:
//   - component: fetcher, coordinator, page-client, page-cache, pacer, sink
//   - page: page index
//   - url: page request URL
//   - status_code: HTTP status code
//   - duration: request, page or batch duration
//   - error_class: status, client, timeout, canceled, malformed, unexpected
//   - records: records extracted or inserted
//   - pages: pages in a batch
//   - inflight: permits held when a fetch starts
