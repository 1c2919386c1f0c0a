package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lohitverma/hoteltracking/internal/domain/hotel"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
)

const bookingDateLayout = "2006-01-02"

// BookingAdapter maps the Booking.com distribution API onto the Provider
// contract.
type BookingAdapter struct {
	client *providerClient
	logger *slog.Logger
}

func NewBookingAdapter(cfg config.ProviderConfig, logger *slog.Logger) *BookingAdapter {
	headers := map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	}
	return &BookingAdapter{
		client: newProviderClient("booking", cfg, headers, logger),
		logger: logger,
	}
}

func (a *BookingAdapter) Name() string { return "booking" }

type bookingHotel struct {
	HotelID     int64  `json:"hotel_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Zip         string `json:"zip"`
	ReviewScore float64 `json:"review_score"`
	Price       struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"price"`
	Facilities []string `json:"facilities"`
	Photos     []struct {
		URL string `json:"url"`
	} `json:"photos"`
	URL string `json:"url"`
}

type bookingSearchResponse struct {
	Hotels []bookingHotel `json:"hotels"`
}

func (a *BookingAdapter) SearchHotels(ctx context.Context, query hotel.SearchQuery) ([]hotel.Offer, error) {
	params := url.Values{}
	params.Set("city_ids", query.Location)
	params.Set("checkin", query.CheckIn.Format(bookingDateLayout))
	params.Set("checkout", query.CheckOut.Format(bookingDateLayout))
	params.Set("room_number", strconv.Itoa(query.Rooms))
	params.Set("guest_number", strconv.Itoa(query.Guests))

	var resp bookingSearchResponse
	if err := a.client.getJSON(ctx, "/hotels/search", params, &resp); err != nil {
		return nil, fmt.Errorf("booking search: %w", err)
	}

	now := time.Now()
	offers := make([]hotel.Offer, 0, len(resp.Hotels))
	for _, h := range resp.Hotels {
		photos := make([]string, 0, len(h.Photos))
		for _, p := range h.Photos {
			photos = append(photos, p.URL)
		}
		offers = append(offers, hotel.Offer{
			Provider: a.Name(),
			HotelID:  strconv.FormatInt(h.HotelID, 10),
			Name:     h.Name,
			Location: h.City,
			Price: hotel.Money{
				Amount:   h.Price.Amount,
				Currency: h.Price.Currency,
			},
			Rating:     h.ReviewScore,
			Amenities:  h.Facilities,
			Images:     photos,
			ObservedAt: now,
			SourceURL:  h.URL,
		})
	}
	return offers, nil
}

type bookingRoomsResponse struct {
	Rooms []struct {
		RoomID int64  `json:"room_id"`
		Name   string `json:"name"`
		Board  string `json:"board"`
		Price  struct {
			Amount   float64 `json:"amount"`
			Currency string  `json:"currency"`
		} `json:"price"`
		CancellationPolicy string `json:"cancellation_policy"`
	} `json:"rooms"`
}

func (a *BookingAdapter) GetRoomRates(ctx context.Context, query hotel.RateQuery) ([]hotel.Offer, error) {
	params := url.Values{}
	params.Set("checkin", query.CheckIn.Format(bookingDateLayout))
	params.Set("checkout", query.CheckOut.Format(bookingDateLayout))
	params.Set("guest_number", strconv.Itoa(query.Guests))
	params.Set("room_number", strconv.Itoa(query.Rooms))

	var resp bookingRoomsResponse
	if err := a.client.getJSON(ctx, "/hotels/"+query.HotelID+"/rooms", params, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("booking room rates: %w", err)
	}

	now := time.Now()
	offers := make([]hotel.Offer, 0, len(resp.Rooms))
	for _, room := range resp.Rooms {
		offers = append(offers, hotel.Offer{
			Provider: a.Name(),
			HotelID:  query.HotelID,
			Price: hotel.Money{
				Amount:   room.Price.Amount,
				Currency: room.Price.Currency,
			},
			RoomType:           room.Name,
			BoardType:          room.Board,
			CancellationPolicy: room.CancellationPolicy,
			ObservedAt:         now,
		})
	}
	return offers, nil
}

type bookingDetailsResponse struct {
	Hotel bookingHotel `json:"hotel"`
}

func (a *BookingAdapter) GetHotelDetails(ctx context.Context, hotelID string) (*hotel.Details, error) {
	var resp bookingDetailsResponse
	if err := a.client.getJSON(ctx, "/hotels/"+hotelID, nil, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, hotel.ErrHotelNotFound
		}
		return nil, fmt.Errorf("booking hotel details: %w", err)
	}

	h := resp.Hotel
	images := make([]string, 0, len(h.Photos))
	for _, p := range h.Photos {
		images = append(images, p.URL)
	}

	return &hotel.Details{
		HotelID:     strconv.FormatInt(h.HotelID, 10),
		Name:        h.Name,
		Description: h.Description,
		Address: hotel.Address{
			Street:     h.Address,
			City:       h.City,
			Country:    h.Country,
			PostalCode: h.Zip,
		},
		Rating:    h.ReviewScore,
		Amenities: h.Facilities,
		Images:    images,
		Provider:  a.Name(),
	}, nil
}

type bookingAvailabilityResponse struct {
	Available bool `json:"available"`
}

func (a *BookingAdapter) GetAvailability(ctx context.Context, hotelID string, checkIn, checkOut time.Time) (bool, error) {
	params := url.Values{}
	params.Set("checkin", checkIn.Format(bookingDateLayout))
	params.Set("checkout", checkOut.Format(bookingDateLayout))

	var resp bookingAvailabilityResponse
	if err := a.client.getJSON(ctx, "/hotels/"+hotelID+"/availability", params, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("booking availability: %w", err)
	}
	return resp.Available, nil
}

func (a *BookingAdapter) Close() error {
	return a.client.close()
}

var _ hotel.Provider = (*BookingAdapter)(nil)
