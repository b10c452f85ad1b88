package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketScript applies one check atomically. ARGV: capacity, refill rate per
// second, now in seconds, key ttl in milliseconds. Returns {allowed, retry}.
var bucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
if not state[1] or not state[2] then
	redis.call('HSET', KEYS[1], 'tokens', tostring(capacity - 1), 'ts', tostring(now))
	redis.call('PEXPIRE', KEYS[1], ttl)
	return {1, '0'}
end

local tokens = tonumber(state[1])
local elapsed = now - tonumber(state[2])
if elapsed < 0 then
	elapsed = 0
end
tokens = math.min(capacity, tokens + elapsed * rate)

if tokens >= 1 then
	redis.call('HSET', KEYS[1], 'tokens', tostring(tokens - 1), 'ts', tostring(now))
	redis.call('PEXPIRE', KEYS[1], ttl)
	return {1, '0'}
end
return {0, tostring((1 - tokens) / rate)}
`)

// RedisLimiter shares buckets between processes through Redis.
type RedisLimiter struct {
	client    redis.Scripter
	prefix    string
	perMinute int
	now       func() time.Time
}

func NewRedisLimiter(client redis.Scripter, perMinute int) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		prefix:    "devblog:ratelimit:",
		perMinute: perMinute,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (r *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	r.now = now
	return r
}

func (r *RedisLimiter) key(destination string) string {
	return r.prefix + destination
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if r.perMinute <= 0 {
		return Decision{Allowed: true}, nil
	}

	capacity := float64(r.perMinute)
	refill := capacity / 60.0
	// An idle bucket is full again after capacity/refill seconds, one minute.
	ttl := time.Minute + time.Second
	now := float64(r.now().UnixNano()) / float64(time.Second)

	result, err := bucketScript.Run(ctx, r.client, []string{r.key(key)},
		strconv.FormatFloat(capacity, 'f', -1, 64),
		strconv.FormatFloat(refill, 'f', -1, 64),
		strconv.FormatFloat(now, 'f', 6, 64),
		ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(result) != 2 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected script result %v", key, result)
	}

	allowed, _ := result[0].(int64)
	if allowed == 1 {
		return Decision{Allowed: true}, nil
	}

	retryText, _ := result[1].(string)
	retry, err := strconv.ParseFloat(retryText, 64)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: parse retry %q: %w", key, retryText, err)
	}
	deniedTotal.Inc()
	return Decision{RetryAfter: secondsToDuration(retry)}, nil
}
