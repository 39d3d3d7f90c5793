package service

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const joinLimitKeyPrefix = "pairing:joinlimit:"

// joinCheckScript is a sliding window over a sorted set of attempt
// timestamps plus a separate lock key. Returns {allowed, retryAfterMs, lockedNow}.
var joinCheckScript = redis.NewScript(`
local key = KEYS[1]
local lockKey = KEYS[2]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local lockout = tonumber(ARGV[4])

local locked = redis.call('PTTL', lockKey)
if locked > 0 then
    return {0, locked, 0}
end

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('PEXPIRE', key, window)

if redis.call('ZCARD', key) > limit then
    redis.call('SET', lockKey, '1', 'PX', lockout)
    redis.call('DEL', key)
    return {0, lockout, 1}
end

return {1, 0, 0}
`)

// joinFailureScript locks an origin that has used up its allowance, or
// re-arms an existing lock. Returns 1 when a new lock was set.
var joinFailureScript = redis.NewScript(`
local key = KEYS[1]
local lockKey = KEYS[2]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local lockout = tonumber(ARGV[4])

if redis.call('PTTL', lockKey) > 0 then
    redis.call('PEXPIRE', lockKey, lockout)
    return 0
end

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
    redis.call('SET', lockKey, '1', 'PX', lockout)
    redis.call('DEL', key)
    return 1
end

return 0
`)

// RedisJoinLimiter shares attempt history between relay instances. Each
// check is a single script so concurrent attempts for one origin cannot lose
// updates.
type RedisJoinLimiter struct {
	client redis.Scripter
	policy RateLimitPolicy
	clock  clock.Clock
}

func NewRedisJoinLimiter(client redis.Scripter, policy RateLimitPolicy, clk clock.Clock) *RedisJoinLimiter {
	return &RedisJoinLimiter{client: client, policy: policy, clock: clk}
}

func joinLimitKeys(origin string) []string {
	// Hash tag keeps both keys in one cluster slot.
	base := joinLimitKeyPrefix + "{" + origin + "}"
	return []string{base + ":attempts", base + ":lock"}
}

func (l *RedisJoinLimiter) args() []interface{} {
	return []interface{}{
		l.clock.Now().UnixMilli(),
		l.policy.Window.Milliseconds(),
		l.policy.MaxAttempts,
		l.policy.Lockout.Milliseconds(),
	}
}

func (l *RedisJoinLimiter) Check(ctx context.Context, origin string) RateLimitDecision {
	result, err := joinCheckScript.Run(ctx, l.client, joinLimitKeys(origin), l.args()...).Int64Slice()
	if err != nil {
		log.Warn().
			Err(err).
			Str("origin", origin).
			Msg("join limit check failed, denying attempt")
		return RateLimitDecision{RetryAfter: l.policy.Window}
	}
	if len(result) != 3 {
		log.Warn().Str("origin", origin).Msg("unexpected join limit result, denying attempt")
		return RateLimitDecision{RetryAfter: l.policy.Window}
	}

	return RateLimitDecision{
		Allowed:    result[0] == 1,
		RetryAfter: time.Duration(result[1]) * time.Millisecond,
		Locked:     result[2] == 1,
	}
}

func (l *RedisJoinLimiter) RecordFailure(ctx context.Context, origin string) bool {
	locked, err := joinFailureScript.Run(ctx, l.client, joinLimitKeys(origin), l.args()...).Int64()
	if err != nil {
		log.Warn().Err(err).Str("origin", origin).Msg("failed to record join failure")
		return false
	}
	return locked == 1
}

// Prune is a no-op: every key carries its own expiry.
func (l *RedisJoinLimiter) Prune(context.Context) (int64, error) {
	return 0, nil
}
