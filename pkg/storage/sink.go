// Package storage persists fetched batches into the cars_new table.
//
// A Sink receives one listing.BatchResult, parses every record into a Row
// and writes all rows in a single transaction. Any database error rolls the
// whole batch back and is returned wrapped in ErrPersistence; nothing is
// retried.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/bama-ingest/pkg/listing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// TableName is the destination table.
const TableName = "cars_new"

// ErrPersistence wraps every error returned by a Sink write.
var ErrPersistence = errors.New("persistence failed")

var columns = []string{
	"url", "title", "time", "year", "mileage",
	"location", "description", "image", "created_at", "price",
}

var (
	rowsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bama_rows_inserted_total",
		Help: "Rows committed to the sink",
	})

	commitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bama_sink_commits_total",
		Help: "Batch transactions committed",
	})

	rollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bama_sink_rollbacks_total",
		Help: "Batch transactions rolled back",
	})

	writeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bama_sink_write_duration_seconds",
		Help:    "Time to write one batch including commit",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
)

// Sink writes one batch per call, all or nothing.
type Sink interface {
	// EnsureSchema creates the destination table if it does not exist
	EnsureSchema(ctx context.Context) error
	// Write inserts one row per record and returns the number inserted
	Write(ctx context.Context, batch listing.BatchResult) (int, error)
	// Close releases the database handle
	Close() error
}

// insertSQL builds the insert statement with placeholders produced by ph,
// which receives the 1-based argument position.
func insertSQL(ph func(int) string) string {
	marks := make([]string, len(columns))
	for i := range marks {
		marks[i] = ph(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		TableName, strings.Join(columns, ", "), strings.Join(marks, ", "))
}

// buildRows parses the records of every non-empty outcome. Empty outcomes
// are logged and skipped.
func buildRows(batch listing.BatchResult, now time.Time, logger zerolog.Logger) []Row {
	rows := make([]Row, 0, batch.RecordCount())
	for _, outcome := range batch.Outcomes {
		if outcome.Empty() {
			event := logger.Warn().Int("page", outcome.Page).Str("url", outcome.URL)
			if outcome.Err != nil {
				event = event.Err(outcome.Err)
			}
			event.Msg("No records for page")
			continue
		}
		for _, rec := range outcome.Records {
			rows = append(rows, NewRow(rec, now))
		}
	}
	return rows
}

// beginErr wraps a failure to open the batch transaction. Nothing was
// opened, so no rollback is recorded.
func beginErr(logger zerolog.Logger, err error) error {
	logger.Error().Err(err).Msg("Failed to begin batch transaction")
	return fmt.Errorf("%w: begin: %w", ErrPersistence, err)
}

// persistErr records a rollback and wraps err.
func persistErr(logger zerolog.Logger, op string, err error) error {
	rollbacksTotal.Inc()
	logger.Error().Err(err).Str("operation", op).Msg("Batch rolled back")
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// committed records a successful write.
func committed(logger zerolog.Logger, inserted int, start time.Time) {
	duration := time.Since(start)
	commitsTotal.Inc()
	rowsInsertedTotal.Add(float64(inserted))
	writeDuration.Observe(duration.Seconds())

	logger.Info().
		Int("records", inserted).
		Dur("duration", duration).
		Msg("Batch persisted")
}
