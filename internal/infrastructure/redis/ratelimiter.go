package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victoralfred/riskengine/internal/domain/ratelimit"
)

const (
	rateLimitKeyPrefix = "riskengine:rate_limit:"
)

// slidingWindow trims expired members, then admits the request when the
// window holds fewer than limit members. Returns {allowed, count, remaining, oldest_ms}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)

	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('EXPIRE', key, ttl)
		return {1, current + 1, limit - current - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local oldest_ms = now
	if #oldest > 0 then
		oldest_ms = tonumber(oldest[2])
	end
	return {0, current, 0, oldest_ms}
`)

// RateLimiter implements ratelimit.RateLimiter with a Redis sorted-set sliding window
type RateLimiter struct {
	client redis.UniversalClient
}

// NewRateLimiter creates a new Redis rate limiter
func NewRateLimiter(client redis.UniversalClient) *RateLimiter {
	return &RateLimiter{
		client: client,
	}
}

// Check admits or rejects one request for key
func (r *RateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.RateLimitResult, error) {
	now := time.Now()
	redisKey := rateLimitKeyPrefix + key
	ttlSeconds := int(window.Seconds()) + 1

	raw, err := slidingWindow.Run(ctx, r.client, []string{redisKey},
		now.Add(-window).UnixMilli(), now.UnixMilli(), limit, ttlSeconds, uuid.NewString()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(raw) != 4 {
		return nil, fmt.Errorf("unexpected result format from rate limiter: %v", raw)
	}

	result := &ratelimit.RateLimitResult{
		Allowed:   raw[0] == 1,
		Limit:     limit,
		Remaining: int(raw[2]),
		ResetTime: now.Add(window),
	}
	if !result.Allowed {
		result.ResetTime = time.UnixMilli(raw[3]).Add(window)
		result.RetryAfter = max(time.Until(result.ResetTime), 0)
	}
	return result, nil
}

// Reset resets the rate limit for a key
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, rateLimitKeyPrefix+key).Err()
}

// GetStatus returns current rate limit status without updating counters
func (r *RateLimiter) GetStatus(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.RateLimitResult, error) {
	now := time.Now()
	redisKey := rateLimitKeyPrefix + key

	err := r.client.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(now.Add(-window).UnixMilli(), 10)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to clean expired entries: %w", err)
	}
	current, err := r.client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get current count: %w", err)
	}

	result := &ratelimit.RateLimitResult{
		Allowed:   int(current) < limit,
		Limit:     limit,
		Remaining: max(limit-int(current), 0),
		ResetTime: now.Add(window),
	}
	if current > 0 {
		oldest, err := r.client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			if reset := time.UnixMilli(int64(oldest[0].Score)).Add(window); reset.After(now) {
				result.ResetTime = reset
			}
		}
	}
	if !result.Allowed {
		result.RetryAfter = max(time.Until(result.ResetTime), 0)
	}
	return result, nil
}
