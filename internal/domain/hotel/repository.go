package hotel

import (
	"context"
	"time"
)

// Provider is the uniform capability every upstream booking platform adapter
// implements. Adapters translate wire formats only; business validation is
// the caller's job. A provider that cannot answer returns its error to the
// aggregator, which degrades to partial results.
type Provider interface {
	Name() string
	SearchHotels(ctx context.Context, query SearchQuery) ([]Offer, error)
	GetRoomRates(ctx context.Context, query RateQuery) ([]Offer, error)
	GetHotelDetails(ctx context.Context, hotelID string) (*Details, error)
	GetAvailability(ctx context.Context, hotelID string, checkIn, checkOut time.Time) (bool, error)
	Close() error
}

type Repository interface {
	FindByHotelID(ctx context.Context, hotelID string) (*Record, error)
	FindByCity(ctx context.Context, city string) ([]*Record, error)
	FindAll(ctx context.Context, limit, offset int) ([]*Record, error)
	Save(ctx context.Context, record *Record) error
}

// SampleRepository is the append-only price history store. History returns
// samples ordered by observation time ascending.
type SampleRepository interface {
	Append(ctx context.Context, sample *PriceSample) error
	History(ctx context.Context, hotelID string, from, to time.Time) ([]PriceSample, error)
	Latest(ctx context.Context, hotelID string) (*PriceSample, error)
}
