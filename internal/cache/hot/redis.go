package hot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the redis-backed hot tier. Eviction under memory pressure is
// delegated to redis (run with maxmemory-policy allkeys-lfu).
type RedisStore struct {
	client         *redis.Client
	commandTimeout time.Duration
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client, commandTimeout time.Duration) *RedisStore {
	if commandTimeout == 0 {
		commandTimeout = 5 * time.Second
	}

	return &RedisStore{client: client, commandTimeout: commandTimeout}
}

func (s *RedisStore) Get(ctx context.Context, tenant, exactKey string) (*Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, cacheKey(tenant, exactKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("hot tier get: %w", err)
	}

	return decodeEnvelope(data)
}

func (s *RedisStore) Set(ctx context.Context, tenant, exactKey string, envelope *Envelope, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	data, err := encodeEnvelope(envelope)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, cacheKey(tenant, exactKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("hot tier set: %w", err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, tenant, exactKey string) error {
	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	if err := s.client.Del(ctx, cacheKey(tenant, exactKey)).Err(); err != nil {
		return fmt.Errorf("hot tier delete: %w", err)
	}

	return nil
}

// Clear removes every cached entry of the tenant.
func (s *RedisStore) Clear(ctx context.Context, tenant string) error {
	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, cacheKey(tenant, "*"), 512).Result()
		if err != nil {
			return fmt.Errorf("hot tier clear: %w", err)
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("hot tier clear: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
