package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lohitverma/hoteltracking/internal/application/cache"
)

var usedMemoryPattern = regexp.MustCompile(`used_memory:(\d+)`)

// RedisCacheAdapter is the fast cache tier. Keys are namespaced with a
// prefix so Clear and Stats only touch this service's entries.
type RedisCacheAdapter struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

func NewRedisCacheAdapter(client *redis.Client, prefix string, logger *slog.Logger) *RedisCacheAdapter {
	return &RedisCacheAdapter{
		client: client,
		logger: logger,
		prefix: prefix,
	}
}

var _ cache.Tier = (*RedisCacheAdapter)(nil)

// Get fetches the value and its remaining TTL in one round trip.
func (r *RedisCacheAdapter) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	fullKey := r.prefix + key

	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, fullKey)
	ttlCmd := pipe.TTL(ctx, fullKey)

	_, err := pipe.Exec(ctx)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Debug("Cache miss", "key", key)
			return nil, 0, cache.ErrCacheMiss
		}
		r.logger.Error("Failed to get from cache", "key", key, "error", err)
		return nil, 0, fmt.Errorf("cache get error for key %s: %w", key, err)
	}

	value := []byte(getCmd.Val())
	remaining := ttlCmd.Val()
	if remaining < 0 {
		remaining = 0
	}

	r.logger.Debug("Cache hit", "key", key, "size", len(value), "remaining", remaining)
	return value, remaining, nil
}

func (r *RedisCacheAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	fullKey := r.prefix + key

	err := r.client.Set(ctx, fullKey, value, ttl).Err()
	if err != nil {
		r.logger.Error("Failed to set cache", "key", key, "ttl", ttl, "error", err)
		return fmt.Errorf("cache set error for key %s: %w", key, err)
	}

	r.logger.Debug("Cache set", "key", key, "ttl", ttl, "size", len(value))
	return nil
}

func (r *RedisCacheAdapter) Delete(ctx context.Context, key string) error {
	fullKey := r.prefix + key

	result, err := r.client.Del(ctx, fullKey).Result()
	if err != nil {
		r.logger.Error("Failed to delete from cache", "key", key, "error", err)
		return fmt.Errorf("cache delete error for key %s: %w", key, err)
	}

	r.logger.Debug("Cache delete", "key", key, "deleted_count", result)
	return nil
}

// Clear removes every key under the prefix. SCAN is used instead of KEYS so
// a large namespace does not block the Redis event loop.
func (r *RedisCacheAdapter) Clear(ctx context.Context) error {
	var cursor uint64
	var deleted int64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 500).Result()
		if err != nil {
			r.logger.Error("Failed to scan cache keys", "prefix", r.prefix, "error", err)
			return fmt.Errorf("cache scan error: %w", err)
		}

		if len(keys) > 0 {
			count, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				r.logger.Error("Failed to delete cache keys", "count", len(keys), "error", err)
				return fmt.Errorf("cache clear error: %w", err)
			}
			deleted += count
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	r.logger.Info("Cache cleared", "prefix", r.prefix, "deleted_count", deleted)
	return nil
}

func (r *RedisCacheAdapter) Stats(ctx context.Context) (cache.TierStats, error) {
	var stats cache.TierStats
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 500).Result()
		if err != nil {
			r.logger.Error("Failed to scan cache keys", "prefix", r.prefix, "error", err)
			return cache.TierStats{}, fmt.Errorf("cache scan error: %w", err)
		}

		stats.Keys += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}

	info, err := r.client.Info(ctx, "memory").Result()
	if err != nil {
		r.logger.Error("Failed to get Redis memory info", "error", err)
		return cache.TierStats{}, fmt.Errorf("redis info error: %w", err)
	}
	if match := usedMemoryPattern.FindStringSubmatch(info); len(match) == 2 {
		if used, err := strconv.ParseInt(match[1], 10, 64); err == nil {
			stats.MemoryUsed = used
		}
	}

	return stats, nil
}

func (r *RedisCacheAdapter) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logger.Error("Redis ping failed", "error", err)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisCacheAdapter) Close() error {
	return r.client.Close()
}
