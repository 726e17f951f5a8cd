package prefs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "prefs:"

// RedisStore keeps preferences in Redis. Keys expire after ttl of inactivity; zero keeps
// them forever.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get implements Store. Reads refresh the expiry.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, ErrInvalidKey
	}
	var (
		value string
		err   error
	)
	if s.ttl > 0 {
		value, err = s.client.GetEx(ctx, redisPrefix+key, s.ttl).Result()
	} else {
		value, err = s.client.Get(ctx, redisPrefix+key).Result()
	}
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return s.client.Set(ctx, redisPrefix+key, value, s.ttl).Err()
}
