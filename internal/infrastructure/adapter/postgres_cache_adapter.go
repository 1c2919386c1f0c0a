package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lohitverma/hoteltracking/internal/application/cache"
	"github.com/lohitverma/hoteltracking/internal/entities"
)

// PostgresCacheAdapter is the durable cache tier. Entries carry an absolute
// expiry; expired rows are treated as misses and reaped by PurgeExpired.
type PostgresCacheAdapter struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewPostgresCacheAdapter(db *gorm.DB, logger *slog.Logger) *PostgresCacheAdapter {
	return &PostgresCacheAdapter{
		db:     db,
		logger: logger,
	}
}

var _ cache.Tier = (*PostgresCacheAdapter)(nil)

func (p *PostgresCacheAdapter) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	var entry entities.CacheEntry

	err := p.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, cache.ErrCacheMiss
		}
		p.logger.Error("Failed to read cache entry", "key", key, "error", err)
		return nil, 0, fmt.Errorf("cache entry read error for key %s: %w", key, err)
	}

	remaining := time.Until(entry.ExpiresAt)
	if remaining <= 0 {
		return nil, 0, cache.ErrCacheMiss
	}

	return entry.Value, remaining, nil
}

func (p *PostgresCacheAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := entities.CacheEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	}

	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		p.logger.Error("Failed to write cache entry", "key", key, "error", err)
		return fmt.Errorf("cache entry write error for key %s: %w", key, err)
	}

	return nil
}

func (p *PostgresCacheAdapter) Delete(ctx context.Context, key string) error {
	err := p.db.WithContext(ctx).Where("key = ?", key).Delete(&entities.CacheEntry{}).Error
	if err != nil {
		p.logger.Error("Failed to delete cache entry", "key", key, "error", err)
		return fmt.Errorf("cache entry delete error for key %s: %w", key, err)
	}
	return nil
}

func (p *PostgresCacheAdapter) Clear(ctx context.Context) error {
	result := p.db.WithContext(ctx).Where("1 = 1").Delete(&entities.CacheEntry{})
	if result.Error != nil {
		p.logger.Error("Failed to clear cache entries", "error", result.Error)
		return fmt.Errorf("cache clear error: %w", result.Error)
	}

	p.logger.Info("Durable cache cleared", "deleted_count", result.RowsAffected)
	return nil
}

func (p *PostgresCacheAdapter) Stats(ctx context.Context) (cache.TierStats, error) {
	var count int64

	err := p.db.WithContext(ctx).Model(&entities.CacheEntry{}).
		Where("expires_at > ?", time.Now()).
		Count(&count).Error
	if err != nil {
		p.logger.Error("Failed to count cache entries", "error", err)
		return cache.TierStats{}, fmt.Errorf("cache count error: %w", err)
	}

	return cache.TierStats{Keys: count}, nil
}

// PurgeExpired deletes rows past their expiry. Run periodically; reads
// already ignore expired rows, this only reclaims space.
func (p *PostgresCacheAdapter) PurgeExpired(ctx context.Context) (int64, error) {
	result := p.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&entities.CacheEntry{})
	if result.Error != nil {
		p.logger.Error("Failed to purge expired cache entries", "error", result.Error)
		return 0, fmt.Errorf("cache purge error: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		p.logger.Info("Purged expired cache entries", "deleted_count", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
