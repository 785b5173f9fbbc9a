package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "docflow:ratelimit"

// Decision is the outcome of one bucket check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript refills the bucket for the time elapsed since the last
// call, then takes ARGV[4] tokens if that many are available. It returns
// {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now

tokens = math.min(capacity, tokens + math.max(0, now - ts) * rate)

local allowed, wait = 0, 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  wait = math.ceil((cost - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[5]))
return {allowed, math.floor(tokens), wait}
`)

// RedisTokenBucket keeps one bucket per subject in Redis. A bucket holds up
// to capacity tokens and refills at capacity per window.
type RedisTokenBucket struct {
	client    redis.UniversalClient
	capacity  int64
	perMS     float64
	ttl       time.Duration
	keyPrefix string
	now       func() time.Time
}

func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	switch {
	case client == nil:
		return nil, fmt.Errorf("redis client is required")
	case capacity <= 0:
		return nil, fmt.Errorf("capacity must be positive")
	case window <= 0:
		return nil, fmt.Errorf("window must be positive")
	}

	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &RedisTokenBucket{
		client:    client,
		capacity:  int64(capacity),
		perMS:     float64(capacity) / float64(max(window.Milliseconds(), 1)),
		ttl:       2 * window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

func (l *RedisTokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	return l.AllowN(ctx, subject, 1)
}

// AllowN takes cost tokens from the subject's bucket when enough remain.
func (l *RedisTokenBucket) AllowN(ctx context.Context, subject string, cost int) (Decision, error) {
	cost = max(cost, 1)
	if int64(cost) > l.capacity {
		return Decision{}, fmt.Errorf("cost %d exceeds bucket capacity %d", cost, l.capacity)
	}

	values, err := tokenBucketScript.Run(
		ctx,
		l.client,
		[]string{l.key(subject)},
		l.capacity,
		l.perMS,
		l.now().UTC().UnixMilli(),
		cost,
		l.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket script: %w", err)
	}
	return decisionFrom(values)
}

// Reset drops the subject's bucket so its next call starts full.
func (l *RedisTokenBucket) Reset(ctx context.Context, subject string) error {
	if err := l.client.Del(ctx, l.key(subject)).Err(); err != nil {
		return fmt.Errorf("reset token bucket: %w", err)
	}
	return nil
}

func (l *RedisTokenBucket) key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return l.keyPrefix + ":" + subject
}

func decisionFrom(values []int64) (Decision, error) {
	if len(values) != 3 {
		return Decision{}, fmt.Errorf("invalid token bucket response: %v", values)
	}
	return Decision{
		Allowed:    values[0] == 1,
		Remaining:  values[1],
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}
