package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/lohitverma/hoteltracking/internal/application/cache"
	"github.com/lohitverma/hoteltracking/internal/domain/hotel"
	"github.com/lohitverma/hoteltracking/internal/domain/tracking"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
)

type memoryTier struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryTier() *memoryTier {
	return &memoryTier{entries: make(map[string][]byte)}
}

func (m *memoryTier) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, 0, cache.ErrCacheMiss
	}
	return value, time.Minute, nil
}

func (m *memoryTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *memoryTier) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryTier) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string][]byte)
	return nil
}

func (m *memoryTier) Stats(ctx context.Context) (cache.TierStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cache.TierStats{Keys: int64(len(m.entries))}, nil
}

type memoryStore struct {
	mu      sync.Mutex
	records map[string][]*hotel.Record
	samples map[string][]hotel.PriceSample
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records: make(map[string][]*hotel.Record),
		samples: make(map[string][]hotel.PriceSample),
	}
}

func (m *memoryStore) addHotel(city, hotelID, name string, rating float64, prices ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[city] = append(m.records[city], &hotel.Record{
		HotelID: hotelID,
		Name:    name,
		City:    city,
		Rating:  rating,
	})
	base := time.Now().Add(-time.Duration(len(prices)) * time.Hour)
	for i, price := range prices {
		m.samples[hotelID] = append(m.samples[hotelID], hotel.PriceSample{
			HotelID:    hotelID,
			Price:      price,
			Currency:   "EUR",
			Provider:   "expedia",
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
}

func (m *memoryStore) FindByHotelID(ctx context.Context, hotelID string) (*hotel.Record, error) {
	return nil, hotel.ErrHotelNotFound
}

func (m *memoryStore) FindByCity(ctx context.Context, city string) ([]*hotel.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[city], nil
}

func (m *memoryStore) FindAll(ctx context.Context, limit, offset int) ([]*hotel.Record, error) {
	return nil, nil
}

func (m *memoryStore) Save(ctx context.Context, record *hotel.Record) error {
	return nil
}

func (m *memoryStore) Append(ctx context.Context, sample *hotel.PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[sample.HotelID] = append(m.samples[sample.HotelID], *sample)
	return nil
}

func (m *memoryStore) History(ctx context.Context, hotelID string, from, to time.Time) ([]hotel.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples[hotelID], nil
}

func (m *memoryStore) Latest(ctx context.Context, hotelID string) (*hotel.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	samples := m.samples[hotelID]
	if len(samples) == 0 {
		return nil, hotel.ErrHotelNotFound
	}
	latest := samples[len(samples)-1]
	return &latest, nil
}

type fakeSubscriber struct {
	mu        sync.Mutex
	snapshots []*tracking.CitySnapshot
	failSend  bool
	closed    bool
}

func (f *fakeSubscriber) Send(snapshot *tracking.CitySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("connection gone")
	}
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSubscriber) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

func testService(store *memoryStore) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cacheSvc := cache.NewService(newMemoryTier(), newMemoryTier(), logger)
	return NewService(store, store, cacheSvc, config.TrackingConfig{
		PollInterval: 5 * time.Minute,
		Lookback:     30 * 24 * time.Hour,
		SnapshotTTL:  5 * time.Minute,
		MaxBackoff:   10 * time.Minute,
	}, logger)
}

func TestSubscribe_PushesInitialSnapshot(t *testing.T) {
	store := newMemoryStore()
	store.addHotel("paris", "H001", "Hotel A", 4.2, 100, 110, 105)
	svc := testService(store)

	sub := &fakeSubscriber{}
	svc.Subscribe(context.Background(), "paris", sub)

	if sub.received() != 1 {
		t.Fatalf("expected 1 initial snapshot, got %d", sub.received())
	}

	snapshot := sub.snapshots[0]
	prices, ok := snapshot.CurrentPrices["H001"]
	if !ok {
		t.Fatal("expected H001 in snapshot")
	}
	if prices.CurrentPrice != 105 {
		t.Errorf("expected current price 105, got %v", prices.CurrentPrice)
	}
	if prices.MinPrice != 100 || prices.MaxPrice != 110 {
		t.Errorf("expected min 100 max 110, got %v/%v", prices.MinPrice, prices.MaxPrice)
	}
	if math.Abs(prices.AvgPrice-105) > 0.001 {
		t.Errorf("expected avg 105, got %v", prices.AvgPrice)
	}

	// 100 at the start of the window -> 105 now.
	change := snapshot.PriceChanges["H001"]
	if math.Abs(change-5.0) > 0.001 {
		t.Errorf("expected +5%% change since window start, got %v", change)
	}
}

func TestRunPass_PushesOnlyToSubscribedCities(t *testing.T) {
	store := newMemoryStore()
	store.addHotel("paris", "H001", "Hotel A", 4.0, 100)
	store.addHotel("london", "H002", "Hotel B", 3.5, 80)
	svc := testService(store)

	parisSub := &fakeSubscriber{}
	svc.Subscribe(context.Background(), "paris", parisSub)
	before := parisSub.received()

	if err := svc.runPass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parisSub.received() != before+1 {
		t.Fatalf("expected one more snapshot, got %d", parisSub.received()-before)
	}
	if parisSub.snapshots[before].City != "paris" {
		t.Errorf("expected paris snapshot, got %s", parisSub.snapshots[before].City)
	}
}

func TestRunPass_RemovesDeadSubscribers(t *testing.T) {
	store := newMemoryStore()
	store.addHotel("paris", "H001", "Hotel A", 4.0, 100)
	svc := testService(store)

	dead := &fakeSubscriber{failSend: true}
	alive := &fakeSubscriber{}

	// Register directly so the failing initial push does not remove dead
	// before the pass runs.
	svc.mu.Lock()
	svc.subscribers["paris"] = map[Subscriber]struct{}{dead: {}, alive: {}}
	svc.mu.Unlock()

	if err := svc.runPass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if svc.SubscriberCount() != 1 {
		t.Fatalf("expected 1 surviving subscriber, got %d", svc.SubscriberCount())
	}
	if !dead.closed {
		t.Error("expected dead subscriber closed")
	}
	if alive.received() != 1 {
		t.Errorf("expected alive subscriber to receive snapshot, got %d", alive.received())
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	store := newMemoryStore()
	store.addHotel("paris", "H001", "Hotel A", 4.0, 100)
	svc := testService(store)

	sub := &fakeSubscriber{}
	svc.Subscribe(context.Background(), "paris", sub)
	svc.Unsubscribe("paris", sub)
	before := sub.received()

	if err := svc.runPass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.received() != before {
		t.Error("expected no delivery after unsubscribe")
	}

	// Removing twice is a no-op.
	svc.Unsubscribe("paris", sub)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := newMemoryStore()
	svc := testService(store)
	svc.cfg.PollInterval = 10 * time.Millisecond

	sub := &fakeSubscriber{}
	svc.Subscribe(context.Background(), "paris", sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to stop after cancel")
	}

	if svc.SubscriberCount() != 0 {
		t.Errorf("expected subscribers closed on shutdown, got %d", svc.SubscriberCount())
	}
}

func TestStats_BucketsAndAverages(t *testing.T) {
	store := newMemoryStore()
	store.addHotel("paris", "H001", "Budget Inn", 3.0, 80)
	store.addHotel("paris", "H002", "Mid Hotel", 4.0, 150)
	store.addHotel("paris", "H003", "Grand Palace", 5.0, 450)
	store.addHotel("paris", "H004", "No Prices Yet", 4.0)
	svc := testService(store)

	stats, err := svc.Stats(context.Background(), "paris")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.TotalHotels != 4 {
		t.Errorf("expected 4 hotels, got %d", stats.TotalHotels)
	}
	if stats.PriceRanges["budget"].Count != 1 {
		t.Errorf("expected 1 budget hotel, got %d", stats.PriceRanges["budget"].Count)
	}
	if stats.PriceRanges["mid_range"].Count != 1 {
		t.Errorf("expected 1 mid_range hotel, got %d", stats.PriceRanges["mid_range"].Count)
	}
	if stats.PriceRanges["luxury"].Count != 1 {
		t.Errorf("expected 1 luxury hotel, got %d", stats.PriceRanges["luxury"].Count)
	}

	wantOverall := (80.0 + 150.0 + 450.0) / 3.0
	if math.Abs(stats.AveragePrices.Overall-wantOverall) > 0.001 {
		t.Errorf("expected overall avg %v, got %v", wantOverall, stats.AveragePrices.Overall)
	}
	if math.Abs(stats.AveragePrices.ByRating["4"]-150) > 0.001 {
		t.Errorf("expected rating-4 avg 150, got %v", stats.AveragePrices.ByRating["4"])
	}
}
