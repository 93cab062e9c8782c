package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend keeps documents as rows of the bot_documents table.
type PostgresBackend struct {
	Pool *pgxpool.Pool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{Pool: pool}
}

// EnsureSchema creates the documents table if it does not exist yet.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	const q = `CREATE TABLE IF NOT EXISTS bot_documents (
		name       text PRIMARY KEY,
		body       jsonb NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`
	if _, err := b.Pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("ensure bot_documents: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Read(ctx context.Context, name string) ([]byte, error) {
	const q = `SELECT body::text FROM bot_documents WHERE name = $1`
	var body string
	if err := b.Pool.QueryRow(ctx, q, name).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return []byte(body), nil
}

func (b *PostgresBackend) Write(ctx context.Context, name string, data []byte) error {
	const q = `INSERT INTO bot_documents (name, body, updated_at)
	           VALUES ($1, $2::jsonb, now())
	           ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`
	if _, err := b.Pool.Exec(ctx, q, name, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
