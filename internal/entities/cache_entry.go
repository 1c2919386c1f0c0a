package entities

import (
	"time"
)

// CacheEntry is the durable cache tier. Value holds the serialized payload
// verbatim; expiry is enforced on read and purged by the scheduler.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(255)"`
	Value     []byte    `gorm:"not null;type:bytea"`
	ExpiresAt time.Time `gorm:"not null;index:idx_cache_entries_expires_at"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (c *CacheEntry) TableName() string {
	return "cache_entries"
}
