package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps each document in one string key.
type RedisBackend struct {
	Client *redis.Client
	Prefix string
}

func NewRedisBackend(url, prefix string) (*RedisBackend, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "animebot:doc:"
	}
	return &RedisBackend{Client: redis.NewClient(opt), Prefix: prefix}, nil
}

func (b *RedisBackend) Read(ctx context.Context, name string) ([]byte, error) {
	val, err := b.Client.Get(ctx, b.Prefix+name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return val, nil
}

func (b *RedisBackend) Write(ctx context.Context, name string, data []byte) error {
	if err := b.Client.Set(ctx, b.Prefix+name, data, 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
