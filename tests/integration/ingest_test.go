//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/bama-ingest/internal/testutil"
	"github.com/Sternrassler/bama-ingest/pkg/cache"
	"github.com/Sternrassler/bama-ingest/pkg/client"
	"github.com/Sternrassler/bama-ingest/pkg/listing"
	"github.com/Sternrassler/bama-ingest/pkg/pagination"
	"github.com/Sternrassler/bama-ingest/pkg/storage"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// setupPostgres creates a Postgres container and returns its DSN.
func setupPostgres(t *testing.T) (string, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "bama",
			"POSTGRES_PASSWORD": "bama",
			"POSTGRES_DB":       "cars_db",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://bama:bama@%s:%s/cars_db?sslmode=disable", host, port.Port())

	return dsn, func() { container.Terminate(ctx) }
}

func testClientConfig(baseURL string) client.Config {
	cfg := client.DefaultConfig("bama-ingest-integration/1.0")
	cfg.BaseURL = baseURL
	return cfg
}

func countRows(t *testing.T, dsn string) int {
	t.Helper()

	conn, err := pgx.Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close(context.Background())

	var n int
	if err := conn.QueryRow(context.Background(), "SELECT COUNT(*) FROM cars_new").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// TestCachedBatch verifies that a second batch over the same pages is
// served from Redis without touching the upstream API.
func TestCachedBatch(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()

	for page := 0; page < 3; page++ {
		mock.SetResponse(page, testutil.NewPageResponse(testutil.NewAd(page)))
	}

	cfg := testClientConfig(mock.URL())
	cfg.Cache = cache.NewManager(redisClient)

	bf := pagination.NewBatchFetcher(cfg, pagination.DefaultConfig())
	ctx := context.Background()

	first, err := bf.FetchAll(ctx, pagination.PageRange(0, 3))
	if err != nil {
		t.Fatalf("first FetchAll() error = %v", err)
	}
	requests := mock.RequestCount()
	if requests != 3 {
		t.Fatalf("upstream requests = %d, want 3", requests)
	}

	second, err := bf.FetchAll(ctx, pagination.PageRange(0, 3))
	if err != nil {
		t.Fatalf("second FetchAll() error = %v", err)
	}
	if mock.RequestCount() != requests {
		t.Errorf("second batch reached upstream: %d requests", mock.RequestCount()-requests)
	}
	if first.RecordCount() != second.RecordCount() {
		t.Errorf("record counts differ: %d vs %d", first.RecordCount(), second.RecordCount())
	}
}

// TestPostgresPipeline runs the mixed-outcome batch into Postgres.
func TestPostgresPipeline(t *testing.T) {
	dsn, cleanup := setupPostgres(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse(0, testutil.NewPageResponse(testutil.NewAd(1), testutil.NewAd(2)))
	mock.SetResponse(1, testutil.NewServerErrorResponse())
	mock.SetResponse(2, testutil.NewSlowResponse(5*time.Second, testutil.NewAd(3)))

	fetchCfg := pagination.DefaultConfig()
	fetchCfg.PageTimeout = 500 * time.Millisecond

	ctx := context.Background()
	batch, err := pagination.NewBatchFetcher(testClientConfig(mock.URL()), fetchCfg).
		FetchAll(ctx, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	sink, err := storage.NewPostgresSink(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresSink() error = %v", err)
	}
	defer sink.Close()

	if err := sink.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	n, err := sink.Write(ctx, batch)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Write() = %d, want 2", n)
	}
	if got := countRows(t, dsn); got != 2 {
		t.Errorf("rows = %d, want 2", got)
	}
}

// TestPostgresRollback verifies that one bad row leaves the table untouched.
func TestPostgresRollback(t *testing.T) {
	dsn, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	sink, err := storage.NewPostgresSink(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresSink() error = %v", err)
	}
	defer sink.Close()

	if err := sink.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	good := listing.CarRecord{URL: "https://bama.ir/car/1", Title: "Pride", Price: "1,000"}
	tooLong := listing.CarRecord{URL: "https://bama.ir/car/" + strings.Repeat("x", 300), Title: "Tiba"}

	batch := listing.BatchResult{Outcomes: []listing.PageOutcome{
		{Page: 0, Records: []listing.CarRecord{good, tooLong}},
	}}

	if _, err := sink.Write(ctx, batch); !errors.Is(err, storage.ErrPersistence) {
		t.Fatalf("Write() error = %v, want ErrPersistence", err)
	}
	if got := countRows(t, dsn); got != 0 {
		t.Errorf("rows = %d, want 0 after rollback", got)
	}
}
