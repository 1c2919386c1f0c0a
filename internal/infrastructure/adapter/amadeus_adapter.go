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

const amadeusDateLayout = "2006-01-02"

// AmadeusAdapter maps the Amadeus hotel-offers API onto the Provider
// contract. Credentials are exchanged out-of-band for a long-lived key, so
// the adapter sends static bearer auth like the others.
type AmadeusAdapter struct {
	client *providerClient
	logger *slog.Logger
}

func NewAmadeusAdapter(cfg config.ProviderConfig, logger *slog.Logger) *AmadeusAdapter {
	headers := map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	}
	return &AmadeusAdapter{
		client: newProviderClient("amadeus", cfg, headers, logger),
		logger: logger,
	}
}

func (a *AmadeusAdapter) Name() string { return "amadeus" }

type amadeusHotelOffer struct {
	Hotel struct {
		HotelID   string   `json:"hotelId"`
		Name      string   `json:"name"`
		CityCode  string   `json:"cityCode"`
		Rating    string   `json:"rating"`
		Amenities []string `json:"amenities"`
		Media     []struct {
			URI string `json:"uri"`
		} `json:"media"`
		Address struct {
			Lines       []string `json:"lines"`
			CityName    string   `json:"cityName"`
			CountryCode string   `json:"countryCode"`
			PostalCode  string   `json:"postalCode"`
		} `json:"address"`
		Description struct {
			Text string `json:"text"`
		} `json:"description"`
	} `json:"hotel"`
	Offers []struct {
		Price struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"price"`
		Room struct {
			TypeEstimated struct {
				Category string `json:"category"`
			} `json:"typeEstimated"`
		} `json:"room"`
		BoardType string `json:"boardType"`
		Policies  struct {
			Cancellation struct {
				Description struct {
					Text string `json:"text"`
				} `json:"description"`
			} `json:"cancellation"`
		} `json:"policies"`
		Self string `json:"self"`
	} `json:"offers"`
	Available bool `json:"available"`
}

type amadeusListResponse struct {
	Data []amadeusHotelOffer `json:"data"`
}

type amadeusItemResponse struct {
	Data amadeusHotelOffer `json:"data"`
}

func (a *AmadeusAdapter) SearchHotels(ctx context.Context, query hotel.SearchQuery) ([]hotel.Offer, error) {
	params := url.Values{}
	params.Set("cityCode", query.Location)
	params.Set("checkInDate", query.CheckIn.Format(amadeusDateLayout))
	params.Set("checkOutDate", query.CheckOut.Format(amadeusDateLayout))
	params.Set("adults", strconv.Itoa(query.Guests))
	params.Set("roomQuantity", strconv.Itoa(query.Rooms))

	var resp amadeusListResponse
	if err := a.client.getJSON(ctx, "/shopping/hotel-offers", params, &resp); err != nil {
		return nil, fmt.Errorf("amadeus search: %w", err)
	}

	now := time.Now()
	offers := make([]hotel.Offer, 0, len(resp.Data))
	for _, item := range resp.Data {
		offer, ok := a.toOffer(item, now)
		if !ok {
			continue
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// toOffer flattens a hotel plus its cheapest listed offer into one Offer.
func (a *AmadeusAdapter) toOffer(item amadeusHotelOffer, observedAt time.Time) (hotel.Offer, bool) {
	if len(item.Offers) == 0 {
		return hotel.Offer{}, false
	}

	best := item.Offers[0]
	bestAmount, err := strconv.ParseFloat(best.Price.Total, 64)
	if err != nil {
		return hotel.Offer{}, false
	}
	for _, o := range item.Offers[1:] {
		amount, err := strconv.ParseFloat(o.Price.Total, 64)
		if err != nil {
			continue
		}
		if amount < bestAmount {
			best, bestAmount = o, amount
		}
	}

	rating, _ := strconv.ParseFloat(item.Hotel.Rating, 64)
	images := make([]string, 0, len(item.Hotel.Media))
	for _, m := range item.Hotel.Media {
		images = append(images, m.URI)
	}

	return hotel.Offer{
		Provider: a.Name(),
		HotelID:  item.Hotel.HotelID,
		Name:     item.Hotel.Name,
		Location: item.Hotel.Address.CityName,
		Price: hotel.Money{
			Amount:   bestAmount,
			Currency: best.Price.Currency,
		},
		Rating:             rating,
		Amenities:          item.Hotel.Amenities,
		Images:             images,
		RoomType:           best.Room.TypeEstimated.Category,
		BoardType:          best.BoardType,
		CancellationPolicy: best.Policies.Cancellation.Description.Text,
		ObservedAt:         observedAt,
		SourceURL:          best.Self,
	}, true
}

func (a *AmadeusAdapter) GetRoomRates(ctx context.Context, query hotel.RateQuery) ([]hotel.Offer, error) {
	params := url.Values{}
	params.Set("hotelId", query.HotelID)
	params.Set("checkInDate", query.CheckIn.Format(amadeusDateLayout))
	params.Set("checkOutDate", query.CheckOut.Format(amadeusDateLayout))
	params.Set("adults", strconv.Itoa(query.Guests))
	params.Set("roomQuantity", strconv.Itoa(query.Rooms))

	var resp amadeusItemResponse
	if err := a.client.getJSON(ctx, "/shopping/hotel-offers/by-hotel", params, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("amadeus room rates: %w", err)
	}

	now := time.Now()
	var offers []hotel.Offer
	for _, o := range resp.Data.Offers {
		amount, err := strconv.ParseFloat(o.Price.Total, 64)
		if err != nil {
			a.logger.Warn("skipping offer with malformed price",
				"provider", a.Name(), "hotel_id", query.HotelID, "total", o.Price.Total)
			continue
		}
		offers = append(offers, hotel.Offer{
			Provider: a.Name(),
			HotelID:  query.HotelID,
			Price: hotel.Money{
				Amount:   amount,
				Currency: o.Price.Currency,
			},
			RoomType:           o.Room.TypeEstimated.Category,
			BoardType:          o.BoardType,
			CancellationPolicy: o.Policies.Cancellation.Description.Text,
			ObservedAt:         now,
			SourceURL:          o.Self,
		})
	}
	return offers, nil
}

func (a *AmadeusAdapter) GetHotelDetails(ctx context.Context, hotelID string) (*hotel.Details, error) {
	params := url.Values{}
	params.Set("hotelId", hotelID)

	var resp amadeusItemResponse
	if err := a.client.getJSON(ctx, "/shopping/hotel-offers/by-hotel", params, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, hotel.ErrHotelNotFound
		}
		return nil, fmt.Errorf("amadeus hotel details: %w", err)
	}

	h := resp.Data.Hotel
	rating, _ := strconv.ParseFloat(h.Rating, 64)
	images := make([]string, 0, len(h.Media))
	for _, m := range h.Media {
		images = append(images, m.URI)
	}
	street := ""
	if len(h.Address.Lines) > 0 {
		street = h.Address.Lines[0]
	}

	return &hotel.Details{
		HotelID:     h.HotelID,
		Name:        h.Name,
		Description: h.Description.Text,
		Address: hotel.Address{
			Street:     street,
			City:       h.Address.CityName,
			Country:    h.Address.CountryCode,
			PostalCode: h.Address.PostalCode,
		},
		Rating:    rating,
		Amenities: h.Amenities,
		Images:    images,
		Provider:  a.Name(),
	}, nil
}

func (a *AmadeusAdapter) GetAvailability(ctx context.Context, hotelID string, checkIn, checkOut time.Time) (bool, error) {
	params := url.Values{}
	params.Set("hotelId", hotelID)
	params.Set("checkInDate", checkIn.Format(amadeusDateLayout))
	params.Set("checkOutDate", checkOut.Format(amadeusDateLayout))

	var resp amadeusItemResponse
	if err := a.client.getJSON(ctx, "/shopping/hotel-offers/by-hotel", params, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("amadeus availability: %w", err)
	}
	return resp.Data.Available, nil
}

func (a *AmadeusAdapter) Close() error {
	return a.client.close()
}

var _ hotel.Provider = (*AmadeusAdapter)(nil)
