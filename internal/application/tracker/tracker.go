package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/lohitverma/hoteltracking/internal/application/cache"
	"github.com/lohitverma/hoteltracking/internal/domain/hotel"
	"github.com/lohitverma/hoteltracking/internal/domain/tracking"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
)

// Subscriber receives city snapshots. Send must be safe for concurrent use;
// a returned error marks the subscriber dead and it is dropped from the
// registry.
type Subscriber interface {
	Send(snapshot *tracking.CitySnapshot) error
	Close() error
}

// Service maintains the live subscriber registry and the periodic snapshot
// loop. Snapshots are computed from persisted price history, cached briefly,
// and pushed to every subscriber of the city.
type Service struct {
	hotels  hotel.Repository
	samples hotel.SampleRepository
	cache   *cache.Service
	cfg     config.TrackingConfig
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	subscribers map[string]map[Subscriber]struct{}
}

func NewService(hotels hotel.Repository, samples hotel.SampleRepository, cacheSvc *cache.Service, cfg config.TrackingConfig, logger *slog.Logger) *Service {
	return &Service{
		hotels:      hotels,
		samples:     samples,
		cache:       cacheSvc,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		subscribers: make(map[string]map[Subscriber]struct{}),
	}
}

// Subscribe registers a live connection for a city and immediately pushes the
// current snapshot so the client does not wait for the next poll cycle.
func (s *Service) Subscribe(ctx context.Context, city string, sub Subscriber) {
	s.mu.Lock()
	if s.subscribers[city] == nil {
		s.subscribers[city] = make(map[Subscriber]struct{})
	}
	s.subscribers[city][sub] = struct{}{}
	total := len(s.subscribers[city])
	s.mu.Unlock()

	s.logger.Info("Subscriber added", "city", city, "city_subscribers", total)

	snapshot, err := s.Snapshot(ctx, city)
	if err != nil {
		s.logger.Warn("Initial snapshot failed", "city", city, "error", err)
		return
	}
	if err := sub.Send(snapshot); err != nil {
		s.Unsubscribe(city, sub)
	}
}

// Unsubscribe removes the connection. Idempotent: dropping an already-removed
// subscriber is a no-op.
func (s *Service) Unsubscribe(city string, sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.subscribers[city]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(s.subscribers, city)
	}
	s.logger.Info("Subscriber removed", "city", city, "city_subscribers", len(subs))
}

func (s *Service) trackedCities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cities := make([]string, 0, len(s.subscribers))
	for city := range s.subscribers {
		cities = append(cities, city)
	}
	return cities
}

// SubscriberCount reports live connections, for the health endpoint.
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, subs := range s.subscribers {
		total += len(subs)
	}
	return total
}

// Run drives the poll loop until the context is cancelled. A failed pass
// doubles the wait up to MaxBackoff; a successful pass resets it to
// PollInterval. Panics in a pass are contained so one bad cycle cannot kill
// tracking for every city.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("Price tracker started", "poll_interval", s.cfg.PollInterval)

	wait := s.cfg.PollInterval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Price tracker stopped")
			s.closeAll()
			return
		case <-timer.C:
		}

		if err := s.runPass(ctx); err != nil {
			wait *= 2
			if wait > s.cfg.MaxBackoff {
				wait = s.cfg.MaxBackoff
			}
			s.logger.Error("Tracking pass failed", "error", err, "retry_in", wait)
		} else {
			wait = s.cfg.PollInterval
		}
		timer.Reset(wait)
	}
}

func (s *Service) runPass(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tracking pass panic: %v", r)
		}
	}()

	var errs []error
	for _, city := range s.trackedCities() {
		snapshot, snapErr := s.refreshSnapshot(ctx, city)
		if snapErr != nil {
			errs = append(errs, fmt.Errorf("city %s: %w", city, snapErr))
			continue
		}
		s.push(city, snapshot)
	}
	return errors.Join(errs...)
}

// push delivers the snapshot to every subscriber of the city, dropping the
// ones whose connection is dead.
func (s *Service) push(city string, snapshot *tracking.CitySnapshot) {
	s.mu.RLock()
	subs := make([]Subscriber, 0, len(s.subscribers[city]))
	for sub := range s.subscribers[city] {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(snapshot); err != nil {
			s.logger.Info("Dropping dead subscriber", "city", city, "error", err)
			s.Unsubscribe(city, sub)
			_ = sub.Close()
		}
	}
}

func (s *Service) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for city, subs := range s.subscribers {
		for sub := range subs {
			_ = sub.Close()
		}
		delete(s.subscribers, city)
	}
}

func snapshotKey(city string) string {
	return "tracking:snapshot:" + city
}

// Snapshot returns the cached city snapshot, computing it on a miss.
func (s *Service) Snapshot(ctx context.Context, city string) (*tracking.CitySnapshot, error) {
	payload, err := s.cache.GetOrSet(ctx, snapshotKey(city), s.cfg.SnapshotTTL, func(ctx context.Context) ([]byte, error) {
		snapshot, err := s.computeSnapshot(ctx, city)
		if err != nil {
			return nil, err
		}
		return json.Marshal(snapshot)
	})
	if err != nil {
		return nil, err
	}

	var snapshot tracking.CitySnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("snapshot decode error for city %s: %w", city, err)
	}
	return &snapshot, nil
}

// refreshSnapshot recomputes the snapshot and replaces the cached copy, used
// by the poll loop so subscribers see fresh data every cycle.
func (s *Service) refreshSnapshot(ctx context.Context, city string) (*tracking.CitySnapshot, error) {
	snapshot, err := s.computeSnapshot(ctx, city)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(snapshot); err == nil {
		s.cache.Set(ctx, snapshotKey(city), payload, s.cfg.SnapshotTTL)
	}
	return snapshot, nil
}

func (s *Service) computeSnapshot(ctx context.Context, city string) (*tracking.CitySnapshot, error) {
	records, err := s.hotels.FindByCity(ctx, city)
	if err != nil {
		return nil, err
	}

	now := s.now()
	snapshot := &tracking.CitySnapshot{
		City:             city,
		CurrentPrices:    make(map[string]tracking.HotelPrices),
		HistoricalTrends: make(map[string]tracking.TrendSeries),
		PriceChanges:     make(map[string]float64),
		UpdatedAt:        now,
	}

	for _, record := range records {
		history, err := s.samples.History(ctx, record.HotelID, now.Add(-s.cfg.Lookback), now)
		if err != nil {
			s.logger.Warn("Price history lookup failed", "hotel_id", record.HotelID, "error", err)
			continue
		}
		if len(history) == 0 {
			continue
		}

		min, max, sum := history[0].Price, history[0].Price, 0.0
		trend := tracking.TrendSeries{
			Dates:  make([]time.Time, 0, len(history)),
			Prices: make([]float64, 0, len(history)),
		}
		for _, sample := range history {
			if sample.Price < min {
				min = sample.Price
			}
			if sample.Price > max {
				max = sample.Price
			}
			sum += sample.Price
			trend.Dates = append(trend.Dates, sample.ObservedAt)
			trend.Prices = append(trend.Prices, sample.Price)
		}

		current := history[len(history)-1].Price
		snapshot.CurrentPrices[record.HotelID] = tracking.HotelPrices{
			HotelName:    record.Name,
			CurrentPrice: current,
			MinPrice:     min,
			MaxPrice:     max,
			AvgPrice:     sum / float64(len(history)),
		}
		snapshot.HistoricalTrends[record.HotelID] = trend

		if len(history) > 1 {
			baseline := history[0].Price
			if baseline > 0 {
				snapshot.PriceChanges[record.HotelID] = (current - baseline) / baseline * 100
			}
		}
	}

	return snapshot, nil
}

// statsBucket maps a nightly price to its range label. Boundaries follow the
// buckets the stats endpoint has always reported.
func statsBucket(price float64) string {
	switch {
	case price < 100:
		return "budget"
	case price < 300:
		return "mid_range"
	default:
		return "luxury"
	}
}

// Stats computes the per-city statistical breakdown from the latest sample of
// every tracked hotel.
func (s *Service) Stats(ctx context.Context, city string) (*tracking.CityStats, error) {
	records, err := s.hotels.FindByCity(ctx, city)
	if err != nil {
		return nil, err
	}

	stats := &tracking.CityStats{
		City:        city,
		TotalHotels: len(records),
		PriceRanges: make(map[string]tracking.PriceRange),
		AveragePrices: tracking.AveragePrices{
			ByRating: make(map[string]float64),
		},
	}

	var (
		sum          float64
		priced       int
		ratingSums   = make(map[string]float64)
		ratingCounts = make(map[string]int)
	)

	for _, record := range records {
		latest, err := s.samples.Latest(ctx, record.HotelID)
		if err != nil {
			if !errors.Is(err, hotel.ErrHotelNotFound) {
				s.logger.Warn("Latest price lookup failed", "hotel_id", record.HotelID, "error", err)
			}
			continue
		}

		price := latest.Price
		sum += price
		priced++

		bucket := statsBucket(price)
		r, ok := stats.PriceRanges[bucket]
		if !ok {
			r = tracking.PriceRange{Min: price, Max: price}
		} else {
			if price < r.Min {
				r.Min = price
			}
			if price > r.Max {
				r.Max = price
			}
		}
		r.Count++
		stats.PriceRanges[bucket] = r

		if record.Rating > 0 {
			key := strconv.Itoa(int(record.Rating))
			ratingSums[key] += price
			ratingCounts[key]++
		}
	}

	if priced > 0 {
		stats.AveragePrices.Overall = sum / float64(priced)
	}
	for key, total := range ratingSums {
		stats.AveragePrices.ByRating[key] = total / float64(ratingCounts[key])
	}

	return stats, nil
}
