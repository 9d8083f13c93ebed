package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/nmoraleda/storefront/pkg/config"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storefront"

// RedisStore backs the cache with a shared Redis instance. It exists for
// multi-instance deployments (server-side rendering) where store state must
// survive outside a single process.
type RedisStore struct {
	raw *redis.Client
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{raw: raw}, nil
}

func (s *RedisStore) Get(ctx context.Context, namespace, key string, out any) error {
	data, err := s.raw.Get(ctx, s.key(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrKeyNotFound
		}
		return err
	}
	return decode(data, out)
}

func (s *RedisStore) Put(ctx context.Context, namespace, key string, value any) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return s.raw.Set(ctx, s.key(namespace, key), data, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	return s.raw.Del(ctx, s.key(namespace, key)).Err()
}

func (s *RedisStore) Close() error {
	return s.raw.Close()
}

func (s *RedisStore) key(namespace, key string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, storageKey(namespace, key))
}
