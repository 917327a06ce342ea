package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared by every instance that
// points at the same Redis. Each key may make perMinute+burst requests per
// one-minute window.
type RedisLimiter struct {
	client  *redis.Client
	allowed int64
	window  time.Duration
	prefix  string
}

// NewRedisLimiter creates a RedisLimiter.
func NewRedisLimiter(client *redis.Client, perMinute, burst int) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		allowed: int64(perMinute + burst),
		window:  time.Minute,
		prefix:  "rl:contact:ip:",
	}
}

// Allow implements Limiter.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	windowSeconds := int64(rl.window.Seconds())
	now := time.Now().Unix()
	bucket := now / windowSeconds
	redisKey := fmt.Sprintf("%s%s:%d", rl.prefix, key, bucket)

	cnt, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, err
	}
	if cnt == 1 {
		_ = rl.client.Expire(ctx, redisKey, rl.window+time.Second).Err()
	}
	if cnt > rl.allowed {
		remaining := (bucket+1)*windowSeconds - now
		return false, time.Duration(remaining) * time.Second, nil
	}
	return true, 0, nil
}

// ParseRedisURL builds a client from a redis:// or rediss:// URL.
func ParseRedisURL(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
