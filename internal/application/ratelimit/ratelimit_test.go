package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
)

// fakeWindowStore keeps timestamps per key and prunes against the now passed
// by the service, so tests control time without sleeping.
type fakeWindowStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	fail    bool
}

func newFakeWindowStore() *fakeWindowStore {
	return &fakeWindowStore{windows: make(map[string][]time.Time)}
}

func (f *fakeWindowStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, 0, time.Time{}, errors.New("store down")
	}

	cutoff := now.Add(-window)
	var kept []time.Time
	for _, ts := range f.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	allowed := len(kept) < limit
	if allowed {
		kept = append(kept, now)
	}
	f.windows[key] = kept

	var oldest time.Time
	if len(kept) > 0 {
		oldest = kept[0]
	}
	return allowed, int64(len(kept)), oldest, nil
}

func (f *fakeWindowStore) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("store down")
	}

	cutoff := now.Add(-window)
	var count int64
	for _, ts := range f.windows[key] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Classes: map[string]config.LimitRule{
			"default": {Limit: 10, Window: time.Minute},
			"search":  {Limit: 5, Window: time.Minute},
		},
	}
}

func newTestService(store WindowStore, at time.Time) *Service {
	svc := NewService(store, testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return at }
	return svc
}

func TestAllow_WithinLimit(t *testing.T) {
	store := newFakeWindowStore()
	svc := newTestService(store, time.Now())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		decision := svc.Allow(ctx, "search", "ip:1.2.3.4")
		if !decision.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if decision.Remaining != 5-(i+1) {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, 5-(i+1), decision.Remaining)
		}
	}
}

func TestAllow_RejectsOverLimit(t *testing.T) {
	store := newFakeWindowStore()
	svc := newTestService(store, time.Now())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Allow(ctx, "search", "ip:1.2.3.4")
	}

	decision := svc.Allow(ctx, "search", "ip:1.2.3.4")
	if decision.Allowed {
		t.Fatal("expected 6th request rejected")
	}
	if decision.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", decision.Remaining)
	}
	if decision.RetryAfter(svc.now()) <= 0 {
		t.Error("expected positive retry-after for rejected request")
	}
}

func TestAllow_WindowSlides(t *testing.T) {
	store := newFakeWindowStore()
	start := time.Now()
	svc := newTestService(store, start)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Allow(ctx, "search", "ip:1.2.3.4")
	}
	if svc.Allow(ctx, "search", "ip:1.2.3.4").Allowed {
		t.Fatal("expected rejection at the limit")
	}

	// After the window passes, the old requests fall out.
	svc.now = func() time.Time { return start.Add(61 * time.Second) }
	if !svc.Allow(ctx, "search", "ip:1.2.3.4").Allowed {
		t.Fatal("expected request allowed after window slid")
	}
}

func TestAllow_RejectedRetriesDoNotExtendLockout(t *testing.T) {
	store := newFakeWindowStore()
	start := time.Now()
	svc := newTestService(store, start)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !svc.Allow(ctx, "search", "ip:1.2.3.4").Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}

	// Hammering while limited must not count against the window.
	svc.now = func() time.Time { return start.Add(30 * time.Second) }
	for i := 0; i < 5; i++ {
		if svc.Allow(ctx, "search", "ip:1.2.3.4").Allowed {
			t.Fatalf("retry %d: expected rejected", i+1)
		}
	}

	// Once the original five fall out, the client is unblocked even though
	// it retried the whole time.
	svc.now = func() time.Time { return start.Add(70 * time.Second) }
	if !svc.Allow(ctx, "search", "ip:1.2.3.4").Allowed {
		t.Fatal("expected request allowed once the admitted window elapsed")
	}
}

func TestAllow_IdentitiesAreIndependent(t *testing.T) {
	store := newFakeWindowStore()
	svc := newTestService(store, time.Now())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Allow(ctx, "search", "ip:1.1.1.1")
	}

	if !svc.Allow(ctx, "search", "ip:2.2.2.2").Allowed {
		t.Fatal("expected other identity unaffected")
	}
}

func TestAllow_UnknownClassFallsBackToDefault(t *testing.T) {
	store := newFakeWindowStore()
	svc := newTestService(store, time.Now())
	ctx := context.Background()

	decision := svc.Allow(ctx, "no-such-class", "ip:1.2.3.4")
	if decision.Class != "default" {
		t.Errorf("expected default class, got %s", decision.Class)
	}
	if decision.Limit != 10 {
		t.Errorf("expected default limit 10, got %d", decision.Limit)
	}
}

func TestAllow_StoreFailureDegradesOpen(t *testing.T) {
	store := newFakeWindowStore()
	store.fail = true
	svc := newTestService(store, time.Now())
	ctx := context.Background()

	decision := svc.Allow(ctx, "search", "ip:1.2.3.4")
	if !decision.Allowed {
		t.Fatal("expected request allowed when store is down")
	}
}

func TestUsage_ReportsConsumptionWithoutRecording(t *testing.T) {
	store := newFakeWindowStore()
	svc := newTestService(store, time.Now())
	ctx := context.Background()

	svc.Allow(ctx, "search", "ip:1.2.3.4")
	svc.Allow(ctx, "search", "ip:1.2.3.4")

	usage := svc.Usage(ctx, "ip:1.2.3.4")
	search, ok := usage["search"]
	if !ok {
		t.Fatal("expected search class in usage")
	}
	if search.Used != 2 {
		t.Errorf("expected 2 used, got %d", search.Used)
	}
	if search.Remaining != 3 {
		t.Errorf("expected 3 remaining, got %d", search.Remaining)
	}

	// Usage itself must not consume budget.
	again := svc.Usage(ctx, "ip:1.2.3.4")
	if again["search"].Used != 2 {
		t.Errorf("expected usage unchanged, got %d", again["search"].Used)
	}
}
