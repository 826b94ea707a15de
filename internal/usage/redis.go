package usage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "promo:usage:"

// reserveScript grants min(requested, headroom) and increments the counters
// in one atomic step. Caps of -1 are unbounded.
var reserveScript = redis.NewScript(`
local requested = tonumber(ARGV[1])
local maxTotal = tonumber(ARGV[2])
local maxCustomer = tonumber(ARGV[3])
local customer = ARGV[4]
local granted = requested

if maxTotal >= 0 then
  local used = tonumber(redis.call('HGET', KEYS[1], 'total') or '0')
  granted = math.min(granted, math.max(maxTotal - used, 0))
end
if customer ~= '' and maxCustomer >= 0 then
  local used = tonumber(redis.call('HGET', KEYS[1], 'c:' .. customer) or '0')
  granted = math.min(granted, math.max(maxCustomer - used, 0))
end

if granted > 0 then
  redis.call('HINCRBY', KEYS[1], 'total', granted)
  if customer ~= '' then
    redis.call('HINCRBY', KEYS[1], 'c:' .. customer, granted)
  end
end
return granted
`)

var releaseScript = redis.NewScript(`
local function dec(field, n)
  local v = tonumber(redis.call('HGET', KEYS[1], field) or '0') - n
  if v > 0 then
    redis.call('HSET', KEYS[1], field, v)
  else
    redis.call('HDEL', KEYS[1], field)
  end
end

local n = tonumber(ARGV[1])
dec('total', n)
if ARGV[2] ~= '' then
  dec('c:' .. ARGV[2], n)
end
return 1
`)

// RedisLimiter keeps one hash per rule: field "total" plus "c:<customer>"
// per customer. Every mutation runs as a Lua script, which Redis executes
// atomically.
type RedisLimiter struct {
	client redis.UniversalClient
}

func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func redisKey(ruleID string) string {
	return redisKeyPrefix + "{" + ruleID + "}"
}

func capArg(v *int64) int64 {
	if v == nil {
		return -1
	}
	return *v
}

func (l *RedisLimiter) Reserve(ctx context.Context, key Key, limits Limits, requested int64) (int64, error) {
	if requested <= 0 {
		return 0, nil
	}
	granted, err := reserveScript.Run(ctx, l.client, []string{redisKey(key.RuleID)},
		requested, capArg(limits.MaxTotal), capArg(limits.MaxPerCustomer), key.CustomerID,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("reserve usage for rule %s: %w", key.RuleID, err)
	}
	return granted, nil
}

func (l *RedisLimiter) Release(ctx context.Context, key Key, quantity int64) error {
	if quantity <= 0 {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{redisKey(key.RuleID)}, quantity, key.CustomerID).Err(); err != nil {
		return fmt.Errorf("release usage for rule %s: %w", key.RuleID, err)
	}
	return nil
}

func (l *RedisLimiter) RemainingFor(ctx context.Context, key Key, limits Limits) (Remaining, error) {
	vals, err := l.client.HMGet(ctx, redisKey(key.RuleID), "total", "c:"+key.CustomerID).Result()
	if err != nil {
		return Remaining{}, fmt.Errorf("read usage for rule %s: %w", key.RuleID, err)
	}

	used := make([]int64, 2)
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if used[i], err = strconv.ParseInt(s, 10, 64); err != nil {
			return Remaining{}, fmt.Errorf("parse usage for rule %s: %w", key.RuleID, err)
		}
	}
	return remaining(limits, key, used[0], used[1]), nil
}
