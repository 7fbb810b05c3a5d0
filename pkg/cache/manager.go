package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/bama-ingest/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrCacheMiss indicates the page is not cached or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored hash that cannot be decoded
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// scanBatch is the COUNT hint for SCAN during Purge.
const scanBatch = 200

// Manager stores page bodies as Redis hashes that expire on their own.
// It is safe for concurrent use.
type Manager struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewManager creates a manager on top of redisClient.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis:  redisClient,
		logger: logging.NewLogger(logging.ComponentPageCache),
	}
}

// Get returns the cached page for key or ErrCacheMiss.
// A corrupt entry is deleted and reported as ErrInvalidEntry.
func (m *Manager) Get(ctx context.Context, key Key) (*PageEntry, error) {
	h, err := m.redis.HGetAll(ctx, string(key)).Result()
	if err != nil {
		errorsTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(h) == 0 {
		lookupsTotal.WithLabelValues("miss").Inc()
		return nil, ErrCacheMiss
	}

	entry, err := entryFromHash(h)
	if err != nil {
		lookupsTotal.WithLabelValues("invalid").Inc()
		m.logger.Warn().Err(err).Str("key", string(key)).Msg("Dropping invalid cache entry")
		_ = m.Delete(ctx, key)
		return nil, err
	}

	lookupsTotal.WithLabelValues("hit").Inc()
	m.logger.Debug().
		Str("key", string(key)).
		Dur("age", entry.Age(time.Now())).
		Msg("Cache hit")
	return entry, nil
}

// Set stores entry under key for ttl. The hash write and its expiry are
// applied in one MULTI/EXEC.
func (m *Manager) Set(ctx context.Context, key Key, entry *PageEntry, ttl time.Duration) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive (got %v)", ttl)
	}

	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, string(key))
		pipe.HSet(ctx, string(key), entry.fields()...)
		pipe.Expire(ctx, string(key), ttl)
		return nil
	})
	if err != nil {
		errorsTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set page: %w", err)
	}

	storedBytesTotal.Add(float64(len(entry.Body)))
	return nil
}

// Delete removes the page stored under key.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, string(key)).Err(); err != nil {
		errorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Purge removes every cached page and returns how many were deleted.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	deleted := 0
	iter := m.redis.Scan(ctx, 0, pattern, scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := m.redis.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				errorsTotal.WithLabelValues("purge").Inc()
				return deleted, fmt.Errorf("redis del: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		errorsTotal.WithLabelValues("purge").Inc()
		return deleted, fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		errorsTotal.WithLabelValues("purge").Inc()
		return deleted, fmt.Errorf("redis del: %w", err)
	}

	purgedTotal.Add(float64(deleted))
	m.logger.Info().Int("pages", deleted).Msg("Page cache purged")
	return deleted, nil
}
