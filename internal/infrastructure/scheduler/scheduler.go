package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jasonlvhit/gocron"

	"github.com/lohitverma/hoteltracking/internal/application/aggregator"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
)

// Purger reclaims expired durable cache rows.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler runs the background jobs that do not depend on live subscribers:
// periodic price sampling for configured cities and durable cache cleanup.
type Scheduler struct {
	aggregator *aggregator.Service
	purger     Purger
	cities     []string
	cfg        config.TrackingConfig
	purgeEvery time.Duration
	scheduler  *gocron.Scheduler
	logger     *slog.Logger
}

func NewScheduler(aggregatorService *aggregator.Service, purger Purger, cfg config.TrackingConfig, cacheCfg config.CacheConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		aggregator: aggregatorService,
		purger:     purger,
		cities:     cfg.Cities,
		cfg:        cfg,
		purgeEvery: cacheCfg.PurgeEvery,
		scheduler:  gocron.NewScheduler(),
		logger:     logger,
	}
}

// Start registers the jobs and launches the scheduler in the background.
func (s *Scheduler) Start() {
	if len(s.cities) > 0 {
		if err := s.scheduler.Every(asMinutes(s.cfg.SampleInterval)).Minutes().Do(s.samplePrices); err != nil {
			s.logger.Error("Failed to schedule price sampling", "error", err)
		}
	}

	if err := s.scheduler.Every(asMinutes(s.purgeEvery)).Minutes().Do(s.purgeCache); err != nil {
		s.logger.Error("Failed to schedule cache purge", "error", err)
	}

	s.scheduler.Start()
	s.logger.Info("Scheduler started",
		"cities", s.cities,
		"sample_interval", s.cfg.SampleInterval,
		"purge_every", s.purgeEvery,
	)
}

func (s *Scheduler) Stop() {
	s.scheduler.Clear()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) samplePrices() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	checkIn := time.Now().AddDate(0, 0, 1).Truncate(24 * time.Hour)
	checkOut := checkIn.AddDate(0, 0, 1)

	for _, city := range s.cities {
		tracked, err := s.aggregator.TrackCityPrices(ctx, city, checkIn, checkOut)
		if err != nil {
			s.logger.Error("Scheduled price sampling failed", "city", city, "error", err)
			continue
		}
		s.logger.Info("Scheduled price sampling complete", "city", city, "hotels", tracked)
	}
}

func (s *Scheduler) purgeCache() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.purger.PurgeExpired(ctx); err != nil {
		s.logger.Error("Scheduled cache purge failed", "error", err)
	}
}

// asMinutes converts a duration to whole minutes for gocron, never below one.
func asMinutes(d time.Duration) uint64 {
	minutes := uint64(d / time.Minute)
	if minutes == 0 {
		minutes = 1
	}
	return minutes
}
