package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Sternrassler/bama-ingest/pkg/listing"
	"github.com/Sternrassler/bama-ingest/pkg/logging"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cars_new (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	time DATETIME NOT NULL,
	year INTEGER,
	mileage REAL,
	location TEXT,
	description TEXT,
	image TEXT,
	created_at DATETIME NOT NULL,
	price REAL
)`

// SQLSink writes batches through database/sql with '?' placeholders.
// It is used with the pure-Go SQLite driver.
type SQLSink struct {
	db     *sql.DB
	insert string
	now    func() time.Time
	logger zerolog.Logger
}

// OpenSQLite opens (or creates) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	return NewSQLSink(db), nil
}

// NewSQLSink wraps an open database.
func NewSQLSink(db *sql.DB) *SQLSink {
	return &SQLSink{
		db:     db,
		insert: insertSQL(func(int) string { return "?" }),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.NewLogger(logging.ComponentSink).With().Str("driver", "sqlite").Logger(),
	}
}

// EnsureSchema creates cars_new if absent.
func (s *SQLSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Write inserts every record of batch in one transaction.
func (s *SQLSink) Write(ctx context.Context, batch listing.BatchResult) (int, error) {
	start := time.Now()
	rows := buildRows(batch, s.now(), s.logger)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, beginErr(s.logger, err)
	}

	for i, row := range rows {
		if _, err := tx.ExecContext(ctx, s.insert, row.Args()...); err != nil {
			_ = tx.Rollback()
			return 0, persistErr(s.logger, fmt.Sprintf("insert row %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return 0, persistErr(s.logger, "commit", err)
	}

	committed(s.logger, len(rows), start)
	return len(rows), nil
}

// Close closes the database.
func (s *SQLSink) Close() error {
	return s.db.Close()
}
