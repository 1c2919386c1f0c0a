package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lohitverma/hoteltracking/internal/application/ratelimit"
)

// slidingWindowScript prunes the window, counts it, and adds the new member
// only when the count is still under the limit, all server-side so
// concurrent requests cannot both see a free slot. Rejected requests leave
// the window untouched.
//
// KEYS[1] = window key
// ARGV[1] = now (unix millis), ARGV[2] = window (millis),
// ARGV[3] = limit, ARGV[4] = member
//
// Returns {allowed (0|1), used, oldest score (0 when empty)}.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)

local used = redis.call("ZCARD", KEYS[1])
local allowed = 0
if used < limit then
    redis.call("ZADD", KEYS[1], now, ARGV[4])
    used = used + 1
    allowed = 1
end
redis.call("PEXPIRE", KEYS[1], window)

local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if oldest[2] then
    return {allowed, used, oldest[2]}
end
return {allowed, used, 0}
`)

// RedisWindowStore keeps one sorted set per limited key, scored by request
// time in milliseconds. The decide-then-record step runs as a Lua script on
// the server, so it is atomic across processes.
type RedisWindowStore struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

func NewRedisWindowStore(client *redis.Client, prefix string, logger *slog.Logger) *RedisWindowStore {
	return &RedisWindowStore{
		client: client,
		logger: logger,
		prefix: prefix + "ratelimit:",
	}
}

var _ ratelimit.WindowStore = (*RedisWindowStore)(nil)

func (r *RedisWindowStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int64, time.Time, error) {
	fullKey := r.prefix + key

	raw, err := slidingWindowScript.Run(ctx, r.client, []string{fullKey},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString()).Slice()
	if err != nil {
		r.logger.Error("Failed to take rate limit slot", "key", key, "error", err)
		return false, 0, time.Time{}, fmt.Errorf("rate limit take error for key %s: %w", key, err)
	}
	if len(raw) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("rate limit take error for key %s: unexpected reply %v", key, raw)
	}

	allowed := asInt64(raw[0]) == 1
	used := asInt64(raw[1])

	var oldest time.Time
	if millis := asInt64(raw[2]); millis > 0 {
		oldest = time.UnixMilli(millis)
	}
	return allowed, used, oldest, nil
}

func (r *RedisWindowStore) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	fullKey := r.prefix + key
	cutoff := now.Add(-window).UnixMilli()

	count, err := r.client.ZCount(ctx, fullKey, strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		r.logger.Error("Failed to count rate limit window", "key", key, "error", err)
		return 0, fmt.Errorf("rate limit count error for key %s: %w", key, err)
	}
	return count, nil
}

// asInt64 normalizes a Lua script reply element: integers come back as
// int64, scores as bulk strings.
func asInt64(v any) int64 {
	switch value := v.(type) {
	case int64:
		return value
	case string:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		return int64(f)
	default:
		return 0
	}
}
