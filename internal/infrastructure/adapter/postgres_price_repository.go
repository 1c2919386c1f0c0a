package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lohitverma/hoteltracking/internal/domain/hotel"
	"github.com/lohitverma/hoteltracking/internal/entities"
)

// PostgresPriceRepository persists tracked hotels and their append-only price
// history.
type PostgresPriceRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewPostgresPriceRepository(db *gorm.DB, logger *slog.Logger) *PostgresPriceRepository {
	return &PostgresPriceRepository{
		db:     db,
		logger: logger,
	}
}

var (
	_ hotel.Repository       = (*PostgresPriceRepository)(nil)
	_ hotel.SampleRepository = (*PostgresPriceRepository)(nil)
)

func (p *PostgresPriceRepository) FindByHotelID(ctx context.Context, hotelID string) (*hotel.Record, error) {
	var entity entities.Hotel

	err := p.db.WithContext(ctx).Where("hotel_id = ?", hotelID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, hotel.ErrHotelNotFound
		}
		p.logger.Error("Failed to find hotel", "hotel_id", hotelID, "error", err)
		return nil, fmt.Errorf("hotel query error for %s: %w", hotelID, err)
	}

	return toRecord(&entity), nil
}

func (p *PostgresPriceRepository) FindByCity(ctx context.Context, city string) ([]*hotel.Record, error) {
	var rows []entities.Hotel

	err := p.db.WithContext(ctx).Where("city = ?", city).Order("name ASC").Find(&rows).Error
	if err != nil {
		p.logger.Error("Failed to find hotels by city", "city", city, "error", err)
		return nil, fmt.Errorf("hotel city query error for %s: %w", city, err)
	}

	records := make([]*hotel.Record, 0, len(rows))
	for i := range rows {
		records = append(records, toRecord(&rows[i]))
	}
	return records, nil
}

func (p *PostgresPriceRepository) FindAll(ctx context.Context, limit, offset int) ([]*hotel.Record, error) {
	var rows []entities.Hotel

	query := p.db.WithContext(ctx).Order("city ASC, name ASC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&rows).Error; err != nil {
		p.logger.Error("Failed to list hotels", "limit", limit, "offset", offset, "error", err)
		return nil, fmt.Errorf("hotel list query error: %w", err)
	}

	records := make([]*hotel.Record, 0, len(rows))
	for i := range rows {
		records = append(records, toRecord(&rows[i]))
	}
	return records, nil
}

// Save upserts on the provider-scoped hotel ID so repeated aggregation passes
// refresh the row instead of duplicating it.
func (p *PostgresPriceRepository) Save(ctx context.Context, record *hotel.Record) error {
	entity := entities.Hotel{
		ID:      record.ID,
		HotelID: record.HotelID,
		Name:    record.Name,
		City:    record.City,
		Rating:  record.Rating,
	}
	if err := entity.SetAmenities(record.Amenities); err != nil {
		return fmt.Errorf("hotel amenities encode error: %w", err)
	}
	if err := entity.SetImages(record.Images); err != nil {
		return fmt.Errorf("hotel images encode error: %w", err)
	}

	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hotel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "city", "rating", "amenities", "images", "updated_at"}),
	}).Create(&entity).Error
	if err != nil {
		p.logger.Error("Failed to save hotel", "hotel_id", record.HotelID, "error", err)
		return fmt.Errorf("hotel save error for %s: %w", record.HotelID, err)
	}

	record.ID = entity.ID
	record.CreatedAt = entity.CreatedAt
	record.UpdatedAt = entity.UpdatedAt
	return nil
}

func (p *PostgresPriceRepository) Append(ctx context.Context, sample *hotel.PriceSample) error {
	entity := entities.PriceSample{
		ID:         sample.ID,
		HotelID:    sample.HotelID,
		Price:      sample.Price,
		Currency:   sample.Currency,
		Provider:   sample.Provider,
		ObservedAt: sample.ObservedAt,
	}

	if err := p.db.WithContext(ctx).Create(&entity).Error; err != nil {
		p.logger.Error("Failed to append price sample", "hotel_id", sample.HotelID, "error", err)
		return fmt.Errorf("price sample append error for %s: %w", sample.HotelID, err)
	}

	sample.ID = entity.ID
	sample.ObservedAt = entity.ObservedAt
	return nil
}

func (p *PostgresPriceRepository) History(ctx context.Context, hotelID string, from, to time.Time) ([]hotel.PriceSample, error) {
	var rows []entities.PriceSample

	err := p.db.WithContext(ctx).
		Where("hotel_id = ? AND observed_at >= ? AND observed_at <= ?", hotelID, from, to).
		Order("observed_at ASC").
		Find(&rows).Error
	if err != nil {
		p.logger.Error("Failed to load price history", "hotel_id", hotelID, "error", err)
		return nil, fmt.Errorf("price history query error for %s: %w", hotelID, err)
	}

	samples := make([]hotel.PriceSample, 0, len(rows))
	for i := range rows {
		samples = append(samples, toSample(&rows[i]))
	}
	return samples, nil
}

func (p *PostgresPriceRepository) Latest(ctx context.Context, hotelID string) (*hotel.PriceSample, error) {
	var row entities.PriceSample

	err := p.db.WithContext(ctx).
		Where("hotel_id = ?", hotelID).
		Order("observed_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, hotel.ErrHotelNotFound
		}
		p.logger.Error("Failed to load latest price sample", "hotel_id", hotelID, "error", err)
		return nil, fmt.Errorf("latest price query error for %s: %w", hotelID, err)
	}

	sample := toSample(&row)
	return &sample, nil
}

func toRecord(entity *entities.Hotel) *hotel.Record {
	return &hotel.Record{
		ID:        entity.ID,
		HotelID:   entity.HotelID,
		Name:      entity.Name,
		City:      entity.City,
		Rating:    entity.Rating,
		Amenities: entity.GetAmenities(),
		Images:    entity.GetImages(),
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}

func toSample(entity *entities.PriceSample) hotel.PriceSample {
	return hotel.PriceSample{
		ID:         entity.ID,
		HotelID:    entity.HotelID,
		Price:      entity.Price,
		Currency:   entity.Currency,
		Provider:   entity.Provider,
		ObservedAt: entity.ObservedAt,
	}
}
