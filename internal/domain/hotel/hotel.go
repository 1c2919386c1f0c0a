package hotel

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrHotelNotFound is returned when a provider has no record of the hotel.
	ErrHotelNotFound = errors.New("hotel not found")
)

type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Offer is one provider's priced result for a hotel. Offers are immutable:
// a newer quote supersedes an older one, it never mutates it.
type Offer struct {
	Provider           string    `json:"provider"`
	HotelID            string    `json:"hotel_id"`
	Name               string    `json:"name"`
	Location           string    `json:"location"`
	Price              Money     `json:"price"`
	Rating             float64   `json:"rating,omitempty"`
	Amenities          []string  `json:"amenities,omitempty"`
	Images             []string  `json:"images,omitempty"`
	RoomType           string    `json:"room_type,omitempty"`
	BoardType          string    `json:"board_type,omitempty"`
	CancellationPolicy string    `json:"cancellation_policy,omitempty"`
	ObservedAt         time.Time `json:"observed_at"`
	SourceURL          string    `json:"source_url,omitempty"`
}

// MergedHotel is the best offer seen for one hotel across providers within a
// single aggregation pass, plus the providers that contributed an offer.
// Invariant: Best.Price.Amount <= every contributing offer's amount.
type MergedHotel struct {
	HotelID   string   `json:"hotel_id"`
	Best      Offer    `json:"best"`
	Providers []string `json:"providers"`
}

// Details is provider-agnostic descriptive data about a hotel.
type Details struct {
	HotelID     string   `json:"hotel_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Address     Address  `json:"address"`
	Rating      float64  `json:"rating,omitempty"`
	Amenities   []string `json:"amenities,omitempty"`
	Images      []string `json:"images,omitempty"`
	Provider    string   `json:"provider"`
}

type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Record is the canonical hotel row this service keeps for tracking.
type Record struct {
	ID        string    `json:"id"`
	HotelID   string    `json:"hotel_id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	Rating    float64   `json:"rating,omitempty"`
	Amenities []string  `json:"amenities,omitempty"`
	Images    []string  `json:"images,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceSample is one observed best price, appended to history and never
// updated afterwards.
type PriceSample struct {
	ID         string    `json:"id"`
	HotelID    string    `json:"hotel_id"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	Provider   string    `json:"provider"`
	ObservedAt time.Time `json:"observed_at"`
}

// SearchQuery describes a location search across providers.
type SearchQuery struct {
	Location string
	CheckIn  time.Time
	CheckOut time.Time
	Guests   int
	Rooms    int
}

func (q SearchQuery) Validate() error {
	if q.Location == "" {
		return fmt.Errorf("location is required")
	}
	if !q.CheckOut.After(q.CheckIn) {
		return fmt.Errorf("check_out must be after check_in")
	}
	if q.Guests < 1 {
		return fmt.Errorf("guests must be at least 1")
	}
	if q.Rooms < 1 {
		return fmt.Errorf("rooms must be at least 1")
	}
	return nil
}

// RateQuery describes a room-rate lookup for a single hotel.
type RateQuery struct {
	HotelID  string
	CheckIn  time.Time
	CheckOut time.Time
	Guests   int
	Rooms    int
}

func (q RateQuery) Validate() error {
	if q.HotelID == "" {
		return fmt.Errorf("hotel_id is required")
	}
	if !q.CheckOut.After(q.CheckIn) {
		return fmt.Errorf("check_out must be after check_in")
	}
	if q.Guests < 1 {
		return fmt.Errorf("guests must be at least 1")
	}
	if q.Rooms < 1 {
		return fmt.Errorf("rooms must be at least 1")
	}
	return nil
}
