package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingScript prunes expired admissions, checks the budget and records the
// new admission in one atomic evaluation so concurrent callers on the same
// identity cannot lose updates or overrun the budget.
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local period = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - period)
if redis.call('ZCARD', key) >= limit then
	return 0
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, period)
return 1
`)

// fixedScript counts admissions in a fixed window keyed by window start.
var fixedScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
if count > tonumber(ARGV[2]) then
	return 0
end
return 1
`)

// RedisLimiter keeps counters in Redis so multiple gateway instances share
// one budget per identity.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	prefix string

	now func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter. The prefix namespaces keys
// so several deployments can share one Redis.
func NewRedisLimiter(rdb redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "gateway:ratelimit"
	}
	return &RedisLimiter{
		rdb:    rdb,
		prefix: prefix,
		now:    time.Now,
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, identity string, policy Policy) (bool, error) {
	if policy.Requests <= 0 || policy.Period <= 0 {
		return true, nil
	}

	now := l.now()
	periodMs := policy.Period.Milliseconds()

	if policy.Strategy == StrategyFixed {
		windowStart := now.Truncate(policy.Period).UnixMilli()
		key := l.prefix + ":fixed:" + identity + ":" + strconv.FormatInt(windowStart, 10)
		allowed, err := fixedScript.Run(ctx, l.rdb, []string{key}, periodMs, policy.Requests).Int()
		if err != nil {
			return false, errors.Wrap(err, "run fixed window script")
		}
		return allowed == 1, nil
	}

	key := l.prefix + ":sliding:" + identity
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()
	allowed, err := slidingScript.Run(ctx, l.rdb, []string{key},
		now.UnixMilli(), periodMs, policy.Requests, member).Int()
	if err != nil {
		return false, errors.Wrap(err, "run sliding window script")
	}
	return allowed == 1, nil
}
