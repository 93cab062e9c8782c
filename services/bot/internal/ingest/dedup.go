package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Dedup remembers processed ingestion event ids.
type Dedup interface {
	// Check returns true if eventID was already processed. If not seen, it
	// atomically marks it as processed.
	Check(ctx context.Context, eventID string) (duplicate bool, err error)
	// Forget unmarks eventID so a failed delivery can be retried.
	Forget(ctx context.Context, eventID string) error
}

// NewDedup picks the best available store: Redis > Postgres > in-memory.
func NewDedup(redisURL string, pool *pgxpool.Pool, ttl time.Duration) Dedup {
	if redisURL != "" {
		return newRedisDedup(redisURL, ttl)
	}
	if pool != nil {
		return &postgresDedup{pool: pool}
	}
	return newMemoryDedup()
}

const redisKeyPrefix = "animebot:ingested:"

type redisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisDedup(dsn string, ttl time.Duration) *redisDedup {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		opts = &redis.Options{Addr: dsn}
	}
	return &redisDedup{client: redis.NewClient(opts), ttl: ttl}
}

func (s *redisDedup) Check(ctx context.Context, eventID string) (bool, error) {
	set, err := s.client.SetNX(ctx, redisKeyPrefix+eventID, 1, s.ttl).Result()
	if err != nil {
		return false, err
	}
	// SetNX returns true if the key was SET (i.e. NOT a duplicate).
	return !set, nil
}

func (s *redisDedup) Forget(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, redisKeyPrefix+eventID).Err()
}

type postgresDedup struct {
	pool *pgxpool.Pool
}

// EnsureSchema creates the processed-events table when dedup runs on Postgres.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS bot_ingested_events (
		event_id   TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return err
}

func (s *postgresDedup) Check(ctx context.Context, eventID string) (bool, error) {
	const q = `INSERT INTO bot_ingested_events (event_id, created_at)
	           VALUES ($1, now())
	           ON CONFLICT (event_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q, eventID)
	if err != nil {
		return false, err
	}
	// RowsAffected == 0 means the row already existed (duplicate).
	return tag.RowsAffected() == 0, nil
}

func (s *postgresDedup) Forget(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM bot_ingested_events WHERE event_id = $1`, eventID)
	return err
}

// memoryDedup loses its state on restart and is per-process.
type memoryDedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newMemoryDedup() *memoryDedup {
	return &memoryDedup{seen: make(map[string]struct{})}
}

func (s *memoryDedup) Check(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[eventID]; ok {
		return true, nil
	}
	s.seen[eventID] = struct{}{}
	return false, nil
}

func (s *memoryDedup) Forget(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, eventID)
	return nil
}
