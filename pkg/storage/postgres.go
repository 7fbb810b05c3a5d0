package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/bama-ingest/pkg/listing"
	"github.com/Sternrassler/bama-ingest/pkg/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cars_new (
	id BIGSERIAL PRIMARY KEY,
	url VARCHAR(255) NOT NULL,
	title VARCHAR(255) NOT NULL,
	time TIMESTAMP NOT NULL,
	year INTEGER,
	mileage DOUBLE PRECISION,
	location VARCHAR(255),
	description TEXT,
	image VARCHAR(255),
	created_at TIMESTAMP NOT NULL,
	price DOUBLE PRECISION
)`

// PostgresSink writes batches through a pgx pool, queueing every insert
// into one pgx.Batch inside a transaction.
type PostgresSink struct {
	pool   *pgxpool.Pool
	insert string
	now    func() time.Time
	logger zerolog.Logger
}

// NewPostgresSink connects to dsn and verifies the connection.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &PostgresSink{
		pool:   pool,
		insert: insertSQL(func(n int) string { return "$" + strconv.Itoa(n) }),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.NewLogger(logging.ComponentSink).With().Str("driver", "postgres").Logger(),
	}, nil
}

// EnsureSchema creates cars_new if absent.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Write inserts every record of batch in one transaction.
func (s *PostgresSink) Write(ctx context.Context, batch listing.BatchResult) (int, error) {
	start := time.Now()
	rows := buildRows(batch, s.now(), s.logger)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, beginErr(s.logger, err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if len(rows) > 0 {
		b := &pgx.Batch{}
		for _, row := range rows {
			b.Queue(s.insert, row.Args()...)
		}

		results := tx.SendBatch(ctx, b)
		for i := range rows {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return 0, persistErr(s.logger, fmt.Sprintf("insert row %d", i), err)
			}
		}
		if err := results.Close(); err != nil {
			return 0, persistErr(s.logger, "close batch", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, persistErr(s.logger, "commit", err)
	}

	committed(s.logger, len(rows), start)
	return len(rows), nil
}

// Close closes the pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
