package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PriceSample rows are append-only: written once by the aggregator, read by
// the tracker and the stats endpoint, never updated.
type PriceSample struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)"`
	HotelID    string    `gorm:"not null;type:varchar(64);index:idx_samples_hotel_observed,priority:1"`
	Price      float64   `gorm:"not null;type:decimal(12,2)"`
	Currency   string    `gorm:"not null;type:varchar(3)"`
	Provider   string    `gorm:"not null;type:varchar(32)"`
	ObservedAt time.Time `gorm:"not null;index:idx_samples_hotel_observed,priority:2"`
}

func (s *PriceSample) BeforeCreate(_ *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.ObservedAt.IsZero() {
		s.ObservedAt = time.Now()
	}
	return
}

func (s *PriceSample) TableName() string {
	return "price_samples"
}
