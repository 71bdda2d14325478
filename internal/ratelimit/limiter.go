package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request for key fits in the current window.
// It returns the remaining allowance and when the window resets.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, int, time.Time, error)
	// Reset forgets the requests counted for key
	Reset(ctx context.Context, key string) error
	MaxRequests() int
}

// fixedWindow counts requests per key in a Redis key that expires with the
// window. The Lua script keeps check-and-increment atomic across instances.
var fixedWindow = redis.NewScript(`
	local key = KEYS[1]
	local max_requests = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local current_time = tonumber(ARGV[3])

	local current = redis.call('GET', key)

	if current == false then
		redis.call('SET', key, 1, 'EX', window)
		return {1, max_requests - 1, current_time + window}
	end

	current = tonumber(current)
	local ttl = redis.call('TTL', key)
	if current < max_requests then
		redis.call('INCR', key)
		return {1, max_requests - current - 1, current_time + ttl}
	end
	return {0, 0, current_time + ttl}
`)

// RedisLimiter is a fixed-window limiter shared by every instance
type RedisLimiter struct {
	client      *redis.Client
	prefix      string
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

// NewRedisLimiter allows maxRequests per window for each key. prefix
// namespaces the keys so several limiters can share one Redis.
func NewRedisLimiter(client *redis.Client, prefix string, maxRequests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		prefix:      prefix,
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

func (rl *RedisLimiter) redisKey(key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", rl.prefix, key)
}

// Allow checks if a request should be allowed
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	windowSeconds := max(1, int(rl.window.Seconds()))

	result, err := fixedWindow.Run(
		ctx,
		rl.client,
		[]string{rl.redisKey(key)},
		rl.maxRequests,
		windowSeconds,
		rl.now().Unix(),
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(result) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected rate limit result: %v", result)
	}

	allowed := result[0] == 1
	remaining := int(result[1])
	resetTime := time.Unix(result[2], 0)

	return allowed, remaining, resetTime, nil
}

// Reset clears the counter for a key
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, rl.redisKey(key)).Err()
}

// MaxRequests returns the maximum number of requests allowed
func (rl *RedisLimiter) MaxRequests() int {
	return rl.maxRequests
}
