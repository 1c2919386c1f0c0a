package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lohitverma/hoteltracking/internal/domain/hotel"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
)

const expediaDateLayout = "2006-01-02"

// ExpediaAdapter maps the Expedia properties API onto the Provider contract.
type ExpediaAdapter struct {
	client *providerClient
	logger *slog.Logger
}

func NewExpediaAdapter(cfg config.ProviderConfig, logger *slog.Logger) *ExpediaAdapter {
	headers := map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	}
	return &ExpediaAdapter{
		client: newProviderClient("expedia", cfg, headers, logger),
		logger: logger,
	}
}

func (a *ExpediaAdapter) Name() string { return "expedia" }

type expediaSearchRequest struct {
	Destination struct {
		RegionID string `json:"regionId"`
	} `json:"destination"`
	Dates struct {
		Checkin  string `json:"checkin"`
		Checkout string `json:"checkout"`
	} `json:"dates"`
	Rooms []expediaRoomRequest `json:"rooms"`
	Sort  string               `json:"sort"`
}

type expediaRoomRequest struct {
	Adults int `json:"adults"`
}

type expediaSearchResponse struct {
	Properties []expediaProperty `json:"properties"`
}

type expediaProperty struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location struct {
		Address struct {
			CityName   string `json:"cityName"`
			Line       string `json:"line"`
			Country    string `json:"countryCode"`
			PostalCode string `json:"postalCode"`
		} `json:"address"`
	} `json:"location"`
	Price struct {
		Lead struct {
			Amount   float64 `json:"amount"`
			Currency string  `json:"currency"`
		} `json:"lead"`
	} `json:"price"`
	Rating struct {
		Value float64 `json:"value"`
	} `json:"rating"`
	PropertyImage struct {
		Image struct {
			URL string `json:"url"`
		} `json:"image"`
	} `json:"propertyImage"`
	Link string `json:"link"`
}

func (a *ExpediaAdapter) SearchHotels(ctx context.Context, query hotel.SearchQuery) ([]hotel.Offer, error) {
	var req expediaSearchRequest
	req.Destination.RegionID = query.Location
	req.Dates.Checkin = query.CheckIn.Format(expediaDateLayout)
	req.Dates.Checkout = query.CheckOut.Format(expediaDateLayout)
	req.Sort = "PRICE"
	for i := 0; i < query.Rooms; i++ {
		req.Rooms = append(req.Rooms, expediaRoomRequest{Adults: query.Guests})
	}

	var resp expediaSearchResponse
	if err := a.client.postJSON(ctx, "/properties/search", req, &resp); err != nil {
		return nil, fmt.Errorf("expedia search: %w", err)
	}

	now := time.Now()
	offers := make([]hotel.Offer, 0, len(resp.Properties))
	for _, p := range resp.Properties {
		offers = append(offers, hotel.Offer{
			Provider: a.Name(),
			HotelID:  p.ID,
			Name:     p.Name,
			Location: p.Location.Address.CityName,
			Price: hotel.Money{
				Amount:   p.Price.Lead.Amount,
				Currency: p.Price.Lead.Currency,
			},
			Rating:     p.Rating.Value,
			Images:     imageList(p.PropertyImage.Image.URL),
			ObservedAt: now,
			SourceURL:  p.Link,
		})
	}
	return offers, nil
}

type expediaRatesResponse struct {
	Rooms []struct {
		Name      string `json:"name"`
		RatePlans []struct {
			Price struct {
				Total    float64 `json:"total"`
				Currency string  `json:"currency"`
			} `json:"price"`
			BoardType    string `json:"boardType"`
			Cancellation struct {
				Policy string `json:"policy"`
			} `json:"cancellation"`
		} `json:"ratePlans"`
	} `json:"rooms"`
}

func (a *ExpediaAdapter) GetRoomRates(ctx context.Context, query hotel.RateQuery) ([]hotel.Offer, error) {
	params := url.Values{}
	params.Set("checkin", query.CheckIn.Format(expediaDateLayout))
	params.Set("checkout", query.CheckOut.Format(expediaDateLayout))
	params.Set("adults", fmt.Sprintf("%d", query.Guests))
	params.Set("rooms", fmt.Sprintf("%d", query.Rooms))

	var resp expediaRatesResponse
	if err := a.client.getJSON(ctx, "/properties/"+query.HotelID+"/rates", params, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("expedia room rates: %w", err)
	}

	now := time.Now()
	var offers []hotel.Offer
	for _, room := range resp.Rooms {
		for _, plan := range room.RatePlans {
			offers = append(offers, hotel.Offer{
				Provider: a.Name(),
				HotelID:  query.HotelID,
				Price: hotel.Money{
					Amount:   plan.Price.Total,
					Currency: plan.Price.Currency,
				},
				RoomType:           room.Name,
				BoardType:          plan.BoardType,
				CancellationPolicy: plan.Cancellation.Policy,
				ObservedAt:         now,
			})
		}
	}
	return offers, nil
}

type expediaDetailsResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    struct {
		Address struct {
			Line       string `json:"line"`
			CityName   string `json:"cityName"`
			Country    string `json:"countryCode"`
			PostalCode string `json:"postalCode"`
		} `json:"address"`
	} `json:"location"`
	Rating struct {
		Value float64 `json:"value"`
	} `json:"rating"`
	Amenities []struct {
		Name string `json:"name"`
	} `json:"amenities"`
	PropertyGallery struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"propertyGallery"`
}

func (a *ExpediaAdapter) GetHotelDetails(ctx context.Context, hotelID string) (*hotel.Details, error) {
	var resp expediaDetailsResponse
	if err := a.client.getJSON(ctx, "/properties/"+hotelID, nil, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, hotel.ErrHotelNotFound
		}
		return nil, fmt.Errorf("expedia hotel details: %w", err)
	}

	amenities := make([]string, 0, len(resp.Amenities))
	for _, am := range resp.Amenities {
		amenities = append(amenities, am.Name)
	}
	images := make([]string, 0, len(resp.PropertyGallery.Images))
	for _, img := range resp.PropertyGallery.Images {
		images = append(images, img.URL)
	}

	return &hotel.Details{
		HotelID:     resp.ID,
		Name:        resp.Name,
		Description: resp.Description,
		Address: hotel.Address{
			Street:     resp.Location.Address.Line,
			City:       resp.Location.Address.CityName,
			Country:    resp.Location.Address.Country,
			PostalCode: resp.Location.Address.PostalCode,
		},
		Rating:    resp.Rating.Value,
		Amenities: amenities,
		Images:    images,
		Provider:  a.Name(),
	}, nil
}

type expediaAvailabilityResponse struct {
	Available bool `json:"available"`
}

func (a *ExpediaAdapter) GetAvailability(ctx context.Context, hotelID string, checkIn, checkOut time.Time) (bool, error) {
	params := url.Values{}
	params.Set("checkin", checkIn.Format(expediaDateLayout))
	params.Set("checkout", checkOut.Format(expediaDateLayout))

	var resp expediaAvailabilityResponse
	if err := a.client.getJSON(ctx, "/properties/"+hotelID+"/availability", params, &resp); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("expedia availability: %w", err)
	}
	return resp.Available, nil
}

func (a *ExpediaAdapter) Close() error {
	return a.client.close()
}

func imageList(urls ...string) []string {
	var out []string
	for _, u := range urls {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

var _ hotel.Provider = (*ExpediaAdapter)(nil)
