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

const hotelsDateLayout = "2006-01-02"

// HotelsComAdapter maps the Hotels.com partner API onto the Provider
// contract.
type HotelsComAdapter struct {
	client *providerClient
	logger *slog.Logger
}

func NewHotelsComAdapter(cfg config.ProviderConfig, logger *slog.Logger) *HotelsComAdapter {
	headers := map[string]string{
		"x-api-key": cfg.APIKey,
	}
	return &HotelsComAdapter{
		client: newProviderClient("hotels", cfg, headers, logger),
		logger: logger,
	}
}

func (a *HotelsComAdapter) Name() string { return "hotels" }

type hotelsComResult struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     struct {
		StreetAddress string `json:"streetAddress"`
		Locality      string `json:"locality"`
		CountryName   string `json:"countryName"`
		PostalCode    string `json:"postalCode"`
	} `json:"address"`
	GuestRating struct {
		Rating float64 `json:"rating"`
	} `json:"guestRating"`
	RatePlan struct {
		Price struct {
			Current  float64 `json:"current"`
			Currency string  `json:"currency"`
		} `json:"price"`
	} `json:"ratePlan"`
	Amenities  []string `json:"amenities"`
	OptimizedThumbUrls struct {
		SrpDesktop string `json:"srpDesktop"`
	} `json:"optimizedThumbUrls"`
	DeepLink string `json:"deepLink"`
}

type hotelsComSearchResponse struct {
	Results []hotelsComResult `json:"results"`
}

func (a *HotelsComAdapter) SearchHotels(ctx context.Context, query hotel.SearchQuery) ([]hotel.Offer, error) {
	params := url.Values{}
	params.Set("destination", query.Location)
	params.Set("check_in", query.CheckIn.Format(hotelsDateLayout))
	params.Set("check_out", query.CheckOut.Format(hotelsDateLayout))
	params.Set("adults", strconv.Itoa(query.Guests))
	params.Set("rooms", strconv.Itoa(query.Rooms))

	var resp hotelsComSearchResponse
	if err := a.client.getJSON(ctx, "/properties/list", params, &resp); err != nil {
		return nil, fmt.Errorf("hotels.com search: %w", err)
	}

	now := time.Now()
	offers := make([]hotel.Offer, 0, len(resp.Results))
	for _, r := range resp.Results {
		offers = append(offers, hotel.Offer{
			Provider: a.Name(),
			HotelID:  r.ID,
			Name:     r.Name,
			Location: r.Address.Locality,
			Price: hotel.Money{
				Amount:   r.RatePlan.Price.Current,
				Currency: r.RatePlan.Price.Currency,
			},
			Rating:     r.GuestRating.Rating,
			Amenities:  r.Amenities,
			Images:     imageList(r.OptimizedThumbUrls.SrpDesktop),
			ObservedAt: now,
			SourceURL:  r.DeepLink,
		})
	}
	return offers, nil
}

type hotelsComRatesResponse struct {
	RoomTypes []struct {
		Name     string `json:"name"`
		RatePlans []struct {
			Price struct {
				Current  float64 `json:"current"`
				Currency string  `json:"currency"`
			} `json:"price"`
			MealPlan     string `json:"mealPlan"`
			Cancellation string `json:"cancellation"`
		} `json:"ratePlans"`
	} `json:"roomTypes"`
}

func (a *HotelsComAdapter) GetRoomRates(ctx context.Context, query hotel.RateQuery) ([]hotel.Offer, error) {
	params := url.Values{}
	params.Set("check_in", query.CheckIn.Format(hotelsDateLayout))
	params.Set("check_out", query.CheckOut.Format(hotelsDateLayout))
	params.Set("adults", strconv.Itoa(query.Guests))
	params.Set("rooms", strconv.Itoa(query.Rooms))

	var resp hotelsComRatesResponse
	if err := a.client.getJSON(ctx, "/properties/"+query.HotelID+"/rates", params, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("hotels.com room rates: %w", err)
	}

	now := time.Now()
	var offers []hotel.Offer
	for _, room := range resp.RoomTypes {
		for _, plan := range room.RatePlans {
			offers = append(offers, hotel.Offer{
				Provider: a.Name(),
				HotelID:  query.HotelID,
				Price: hotel.Money{
					Amount:   plan.Price.Current,
					Currency: plan.Price.Currency,
				},
				RoomType:           room.Name,
				BoardType:          plan.MealPlan,
				CancellationPolicy: plan.Cancellation,
				ObservedAt:         now,
			})
		}
	}
	return offers, nil
}

type hotelsComDetailsResponse struct {
	Property hotelsComResult `json:"property"`
	Images   []struct {
		URL string `json:"url"`
	} `json:"images"`
}

func (a *HotelsComAdapter) GetHotelDetails(ctx context.Context, hotelID string) (*hotel.Details, error) {
	var resp hotelsComDetailsResponse
	if err := a.client.getJSON(ctx, "/properties/"+hotelID, nil, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, hotel.ErrHotelNotFound
		}
		return nil, fmt.Errorf("hotels.com hotel details: %w", err)
	}

	p := resp.Property
	images := make([]string, 0, len(resp.Images))
	for _, img := range resp.Images {
		images = append(images, img.URL)
	}

	return &hotel.Details{
		HotelID:     p.ID,
		Name:        p.Name,
		Description: p.Description,
		Address: hotel.Address{
			Street:     p.Address.StreetAddress,
			City:       p.Address.Locality,
			Country:    p.Address.CountryName,
			PostalCode: p.Address.PostalCode,
		},
		Rating:    p.GuestRating.Rating,
		Amenities: p.Amenities,
		Images:    images,
		Provider:  a.Name(),
	}, nil
}

type hotelsComAvailabilityResponse struct {
	Available bool `json:"available"`
}

func (a *HotelsComAdapter) GetAvailability(ctx context.Context, hotelID string, checkIn, checkOut time.Time) (bool, error) {
	params := url.Values{}
	params.Set("check_in", checkIn.Format(hotelsDateLayout))
	params.Set("check_out", checkOut.Format(hotelsDateLayout))

	var resp hotelsComAvailabilityResponse
	if err := a.client.getJSON(ctx, "/properties/"+hotelID+"/availability", params, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("hotels.com availability: %w", err)
	}
	return resp.Available, nil
}

func (a *HotelsComAdapter) Close() error {
	return a.client.close()
}

var _ hotel.Provider = (*HotelsComAdapter)(nil)
