package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/quotation-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerWindow int64 = 5
	defaultWindow               = time.Minute
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed fixed-window rate limiter backed by
// Redis. The portal keys it by access link so passcode issuance and guess
// volume stay bounded across instances.
type RedisRateLimiter struct {
	client         *goredis.Client
	limitPerWindow int64
	window         time.Duration
	now            func() time.Time
	script         *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, limitPerWindow int, window time.Duration) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerWindow), window, time.Now)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerWindow int64,
	window time.Duration,
	nowFn func() time.Time,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerWindow <= 0 {
		limitPerWindow = defaultLimitPerWindow
	}
	if window <= 0 {
		window = defaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &RedisRateLimiter{
		client:         client,
		limitPerWindow: limitPerWindow,
		window:         window,
		now:            nowFn,
		script:         allowScript,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedKey := strings.TrimSpace(key)
	if normalizedKey == "" {
		return false, fmt.Errorf("key is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	windowSeconds := int64(r.window / time.Second)
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	bucket := r.now().UTC().Unix() / windowSeconds

	redisKey := fmt.Sprintf("ratelimit:%s:%d", normalizedKey, bucket)
	result, err := r.script.Run(ctx, r.client, []string{redisKey}, r.limitPerWindow, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}
