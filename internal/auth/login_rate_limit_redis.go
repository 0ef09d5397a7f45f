package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIPLimitStore counts hits in fixed windows that expire in Redis.
type RedisIPLimitStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisIPLimitStore(client redis.UniversalClient) *RedisIPLimitStore {
	return &RedisIPLimitStore{client: client, prefix: "ratelimit:"}
}

func (s *RedisIPLimitStore) AllowLoginIP(ctx context.Context, key string, maxHits int, window time.Duration, _ time.Time) (bool, time.Duration, error) {
	redisKey := s.prefix + key

	hits, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("increment rate limit: %w", err)
	}
	if hits == 1 {
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire rate limit: %w", err)
		}
	}
	if hits <= int64(maxHits) {
		return true, 0, nil
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("read rate limit ttl: %w", err)
	}
	// A key left without expiry would block the client forever.
	if ttl < 0 {
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire rate limit: %w", err)
		}
		ttl = window
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return false, ttl, nil
}
