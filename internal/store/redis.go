package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/llmcache/internal/llmcache"
)

// Redis stores entries as plain string values with a per-key expiry. A nil
// client is allowed: every read misses and every write is dropped, so the
// service keeps answering while Redis is down.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if s.client == nil {
		return nil, llmcache.ErrCacheMiss
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, llmcache.ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: redis get: %w", llmcache.ErrStoreUnavailable, err)
	}
	return data, nil
}

// Set writes value with an expiry of ttl. A non-positive ttl stores nothing,
// since Redis would otherwise keep the key forever.
func (s *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %w", llmcache.ErrStoreUnavailable, err)
	}
	return nil
}

// Ping reports whether the server answers. A nil client is never healthy.
func (s *Redis) Ping(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("%w: redis not configured", llmcache.ErrStoreUnavailable)
	}
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
