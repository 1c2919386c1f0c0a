package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lohitverma/hoteltracking/internal/domain/hotel"
)

// Service fans a query out to every configured provider and merges the
// answers. Provider order is fixed at construction; merge tie-breaks rely
// on it, so the same inputs always produce the same winner.
type Service struct {
	providers []hotel.Provider
	hotels    hotel.Repository
	samples   hotel.SampleRepository
	logger    *slog.Logger
}

func NewService(providers []hotel.Provider, hotels hotel.Repository, samples hotel.SampleRepository, logger *slog.Logger) *Service {
	return &Service{
		providers: providers,
		hotels:    hotels,
		samples:   samples,
		logger:    logger,
	}
}

type providerResult struct {
	order  int
	name   string
	offers []hotel.Offer
	err    error
}

// fanOut runs one call per provider concurrently and collects the results in
// provider order. A provider failure is captured, not propagated; the caller
// decides what a partial answer means.
func (s *Service) fanOut(ctx context.Context, op string, call func(ctx context.Context, p hotel.Provider) ([]hotel.Offer, error)) []providerResult {
	results := make([]providerResult, len(s.providers))

	var wg sync.WaitGroup
	for i, provider := range s.providers {
		wg.Add(1)
		go func(order int, p hotel.Provider) {
			defer wg.Done()
			offers, err := call(ctx, p)
			results[order] = providerResult{order: order, name: p.Name(), offers: offers, err: err}
		}(i, provider)
	}
	wg.Wait()

	for _, res := range results {
		if res.err != nil && !errors.Is(res.err, hotel.ErrHotelNotFound) {
			s.logger.Warn("Provider call failed", "operation", op, "provider", res.name, "error", res.err)
		}
	}
	return results
}

// SearchAll queries every provider and merges per hotel, keeping the lowest
// price. When every provider fails the result is simply empty: the caller
// cannot tell "nobody has rooms" from "nobody answered", and for a search
// response those are served the same way.
func (s *Service) SearchAll(ctx context.Context, query hotel.SearchQuery) ([]hotel.MergedHotel, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	results := s.fanOut(ctx, "search", func(ctx context.Context, p hotel.Provider) ([]hotel.Offer, error) {
		return p.SearchHotels(ctx, query)
	})

	return mergeOffers(results), nil
}

// BestPrice returns the single lowest room rate across providers for one
// hotel, or (nil, nil) when no provider has an offer.
func (s *Service) BestPrice(ctx context.Context, query hotel.RateQuery) (*hotel.Offer, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	results := s.fanOut(ctx, "rates", func(ctx context.Context, p hotel.Provider) ([]hotel.Offer, error) {
		return p.GetRoomRates(ctx, query)
	})

	var best *hotel.Offer
	for _, res := range results {
		for i := range res.offers {
			offer := &res.offers[i]
			if best == nil || offer.Price.Amount < best.Price.Amount {
				best = offer
			}
		}
	}
	return best, nil
}

// Details asks providers in order until one knows the hotel.
func (s *Service) Details(ctx context.Context, hotelID string) (*hotel.Details, error) {
	for _, provider := range s.providers {
		details, err := provider.GetHotelDetails(ctx, hotelID)
		if err != nil {
			if !errors.Is(err, hotel.ErrHotelNotFound) {
				s.logger.Warn("Provider details call failed", "provider", provider.Name(), "hotel_id", hotelID, "error", err)
			}
			continue
		}
		return details, nil
	}
	return nil, hotel.ErrHotelNotFound
}

// Availability reports whether any provider can still book the hotel.
func (s *Service) Availability(ctx context.Context, hotelID string, checkIn, checkOut time.Time) bool {
	for _, provider := range s.providers {
		available, err := provider.GetAvailability(ctx, hotelID, checkIn, checkOut)
		if err != nil {
			if !errors.Is(err, hotel.ErrHotelNotFound) {
				s.logger.Warn("Provider availability call failed", "provider", provider.Name(), "hotel_id", hotelID, "error", err)
			}
			continue
		}
		if available {
			return true
		}
	}
	return false
}

// TrackPrice records one price sample for a single known hotel. An unknown
// hotel or an empty provider sweep ends the pass quietly: tracking is best
// effort and must not fail its caller over one bad cycle.
func (s *Service) TrackPrice(ctx context.Context, hotelID string, checkIn, checkOut time.Time) error {
	record, err := s.hotels.FindByHotelID(ctx, hotelID)
	if err != nil {
		if errors.Is(err, hotel.ErrHotelNotFound) {
			s.logger.Warn("Skipping price tracking for unknown hotel", "hotel_id", hotelID)
			return nil
		}
		return fmt.Errorf("load tracked hotel: %w", err)
	}

	best, err := s.BestPrice(ctx, hotel.RateQuery{
		HotelID:  hotelID,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Guests:   2,
		Rooms:    1,
	})
	if err != nil {
		return err
	}
	if best == nil {
		s.logger.Warn("No provider returned a price, skipping sample", "hotel_id", hotelID)
		return nil
	}

	sample := &hotel.PriceSample{
		HotelID:    hotelID,
		Price:      best.Price.Amount,
		Currency:   best.Price.Currency,
		Provider:   best.Provider,
		ObservedAt: best.ObservedAt,
	}
	if err := s.samples.Append(ctx, sample); err != nil {
		return fmt.Errorf("append price sample: %w", err)
	}

	s.logger.Debug("Recorded price sample", "hotel_id", hotelID, "city", record.City, "price", best.Price.Amount)
	return nil
}

// TrackCityPrices runs a search for the city and persists each merged result:
// the hotel row is upserted and the winning price appended to history.
func (s *Service) TrackCityPrices(ctx context.Context, city string, checkIn, checkOut time.Time) (int, error) {
	query := hotel.SearchQuery{
		Location: city,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Guests:   2,
		Rooms:    1,
	}

	merged, err := s.SearchAll(ctx, query)
	if err != nil {
		return 0, err
	}

	tracked := 0
	for _, m := range merged {
		record := &hotel.Record{
			HotelID:   m.HotelID,
			Name:      m.Best.Name,
			City:      city,
			Rating:    m.Best.Rating,
			Amenities: m.Best.Amenities,
			Images:    m.Best.Images,
		}
		if err := s.hotels.Save(ctx, record); err != nil {
			s.logger.Error("Failed to save tracked hotel", "hotel_id", m.HotelID, "error", err)
			continue
		}

		sample := &hotel.PriceSample{
			HotelID:    m.HotelID,
			Price:      m.Best.Price.Amount,
			Currency:   m.Best.Price.Currency,
			Provider:   m.Best.Provider,
			ObservedAt: m.Best.ObservedAt,
		}
		if err := s.samples.Append(ctx, sample); err != nil {
			s.logger.Error("Failed to append price sample", "hotel_id", m.HotelID, "error", err)
			continue
		}
		tracked++
	}

	s.logger.Info("Price tracking pass complete", "city", city, "hotels", tracked)
	return tracked, nil
}

// Close shuts down every provider, reporting the first failure but closing
// all of them regardless.
func (s *Service) Close() error {
	var errs []error
	for _, provider := range s.providers {
		if err := provider.Close(); err != nil {
			s.logger.Error("Failed to close provider", "provider", provider.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// mergeOffers keeps the cheapest offer per hotel. Results arrive indexed by
// provider order, so on a price tie the earlier-configured provider wins and
// the merge is deterministic.
func mergeOffers(results []providerResult) []hotel.MergedHotel {
	byHotel := make(map[string]*hotel.MergedHotel)

	for _, res := range results {
		if res.err != nil {
			continue
		}
		for _, offer := range res.offers {
			existing, ok := byHotel[offer.HotelID]
			if !ok {
				byHotel[offer.HotelID] = &hotel.MergedHotel{
					HotelID:   offer.HotelID,
					Best:      offer,
					Providers: []string{offer.Provider},
				}
				continue
			}
			existing.Providers = append(existing.Providers, offer.Provider)
			if offer.Price.Amount < existing.Best.Price.Amount {
				existing.Best = offer
			}
		}
	}

	merged := make([]hotel.MergedHotel, 0, len(byHotel))
	for _, m := range byHotel {
		merged = append(merged, *m)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Best.Price.Amount != merged[j].Best.Price.Amount {
			return merged[i].Best.Price.Amount < merged[j].Best.Price.Amount
		}
		return merged[i].HotelID < merged[j].HotelID
	})
	return merged
}
