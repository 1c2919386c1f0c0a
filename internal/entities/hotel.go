package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Hotel struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)"`
	HotelID   string         `gorm:"uniqueIndex;not null;type:varchar(64)"`
	Name      string         `gorm:"not null;type:varchar(255)"`
	City      string         `gorm:"not null;type:varchar(100);index:idx_hotels_city"`
	Rating    float64        `gorm:"type:decimal(3,2)"`
	Amenities datatypes.JSON `gorm:"type:jsonb"`
	Images    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`

	Samples []PriceSample `gorm:"foreignKey:HotelID;references:HotelID"`
}

func (h *Hotel) BeforeCreate(_ *gorm.DB) (err error) {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	h.CreatedAt = time.Now()
	h.UpdatedAt = time.Now()
	return
}

func (h *Hotel) BeforeUpdate(_ *gorm.DB) (err error) {
	h.UpdatedAt = time.Now()
	return
}

func (h *Hotel) TableName() string {
	return "hotels"
}

func (h *Hotel) SetAmenities(amenities []string) error {
	if len(amenities) == 0 {
		h.Amenities = nil
		return nil
	}
	data, err := json.Marshal(amenities)
	if err != nil {
		return err
	}
	h.Amenities = data
	return nil
}

func (h *Hotel) GetAmenities() []string {
	var out []string
	if len(h.Amenities) == 0 {
		return out
	}
	_ = json.Unmarshal(h.Amenities, &out)
	return out
}

func (h *Hotel) SetImages(images []string) error {
	if len(images) == 0 {
		h.Images = nil
		return nil
	}
	data, err := json.Marshal(images)
	if err != nil {
		return err
	}
	h.Images = data
	return nil
}

func (h *Hotel) GetImages() []string {
	var out []string
	if len(h.Images) == 0 {
		return out
	}
	_ = json.Unmarshal(h.Images, &out)
	return out
}
