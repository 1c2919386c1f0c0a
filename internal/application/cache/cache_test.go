package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTier is an in-memory tier with controllable failures and a fake clock.
type fakeTier struct {
	mu      sync.Mutex
	entries map[string]fakeEntry
	now     time.Time
	failGet bool
	failSet bool
	sets    int
}

type fakeEntry struct {
	value     []byte
	expiresAt time.Time
}

func newFakeTier() *fakeTier {
	return &fakeTier{
		entries: make(map[string]fakeEntry),
		now:     time.Now(),
	}
}

func (f *fakeTier) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeTier) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, 0, errors.New("tier unavailable")
	}
	entry, ok := f.entries[key]
	if !ok || !entry.expiresAt.After(f.now) {
		return nil, 0, ErrCacheMiss
	}
	return entry.value, entry.expiresAt.Sub(f.now), nil
}

func (f *fakeTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errors.New("tier unavailable")
	}
	f.sets++
	f.entries[key] = fakeEntry{value: value, expiresAt: f.now.Add(ttl)}
	return nil
}

func (f *fakeTier) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeTier) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]fakeEntry)
	return nil
}

func (f *fakeTier) Stats(ctx context.Context) (TierStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return TierStats{Keys: int64(len(f.entries))}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGet_FastHit(t *testing.T) {
	fast, durable := newFakeTier(), newFakeTier()
	svc := NewService(fast, durable, testLogger())
	ctx := context.Background()

	svc.Set(ctx, "k", []byte("v"), time.Minute)

	value, err := svc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(value) != "v" {
		t.Errorf("expected v, got %q", value)
	}
}

func TestGet_DurableHitRepopulatesFastWithRemainingTTL(t *testing.T) {
	fast, durable := newFakeTier(), newFakeTier()
	svc := NewService(fast, durable, testLogger())
	ctx := context.Background()

	// Only the durable tier holds the entry, as after a restart.
	if err := durable.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	durable.advance(30 * time.Second)

	value, err := svc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(value) != "v" {
		t.Errorf("expected v, got %q", value)
	}

	entry, ok := fast.entries["k"]
	if !ok {
		t.Fatal("expected fast tier repopulated")
	}
	remaining := entry.expiresAt.Sub(fast.now)
	if remaining > 30*time.Second || remaining <= 0 {
		t.Errorf("expected remaining TTL <= 30s, got %v", remaining)
	}
}

func TestGet_ExpiredIsMiss(t *testing.T) {
	fast, durable := newFakeTier(), newFakeTier()
	svc := NewService(fast, durable, testLogger())
	ctx := context.Background()

	svc.Set(ctx, "k", []byte("v"), time.Minute)
	fast.advance(2 * time.Minute)
	durable.advance(2 * time.Minute)

	if _, err := svc.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestGet_FastTierFailureFallsThrough(t *testing.T) {
	fast, durable := newFakeTier(), newFakeTier()
	svc := NewService(fast, durable, testLogger())
	ctx := context.Background()

	if err := durable.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	fast.failGet = true
	fast.failSet = true

	value, err := svc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(value) != "v" {
		t.Errorf("expected v, got %q", value)
	}
}

func TestSet_TierFailureDoesNotFailCaller(t *testing.T) {
	fast, durable := newFakeTier(), newFakeTier()
	durable.failSet = true
	svc := NewService(fast, durable, testLogger())
	ctx := context.Background()

	svc.Set(ctx, "k", []byte("v"), time.Minute)

	// Fast tier still holds the value.
	if _, err := svc.Get(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_PurgesBothTiers(t *testing.T) {
	fast, durable := newFakeTier(), newFakeTier()
	svc := NewService(fast, durable, testLogger())
	ctx := context.Background()

	svc.Set(ctx, "k", []byte("v"), time.Minute)
	if err := svc.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := fast.entries["k"]; ok {
		t.Error("expected fast tier purged")
	}
	if _, ok := durable.entries["k"]; ok {
		t.Error("expected durable tier purged")
	}
}

func TestGetOrSet_ComputesOnceUnderConcurrency(t *testing.T) {
	fast, durable := newFakeTier(), newFakeTier()
	svc := NewService(fast, durable, testLogger())
	ctx := context.Background()

	var computes atomic.Int64
	release := make(chan struct{})

	compute := func(ctx context.Context) ([]byte, error) {
		computes.Add(1)
		<-release
		return []byte("computed"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := svc.GetOrSet(ctx, "k", time.Minute, compute)
			if err != nil {
				t.Errorf("caller %d: unexpected error: %v", i, err)
				return
			}
			results[i] = value
		}(i)
	}

	// Give every goroutine a chance to reach the in-flight gate.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := computes.Load(); got != 1 {
		t.Fatalf("expected 1 compute, got %d", got)
	}
	for i, value := range results {
		if string(value) != "computed" {
			t.Errorf("caller %d: expected computed, got %q", i, value)
		}
	}
}

func TestGetOrSet_ErrorIsNotCached(t *testing.T) {
	fast, durable := newFakeTier(), newFakeTier()
	svc := NewService(fast, durable, testLogger())
	ctx := context.Background()

	boom := errors.New("compute failed")
	if _, err := svc.GetOrSet(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}

	value, err := svc.GetOrSet(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("second"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(value) != "second" {
		t.Errorf("expected second compute to run, got %q", value)
	}
}

func TestStats_CountsHitsAndMisses(t *testing.T) {
	fast, durable := newFakeTier(), newFakeTier()
	svc := NewService(fast, durable, testLogger())
	ctx := context.Background()

	svc.Set(ctx, "k", []byte("v"), time.Minute)
	_, _ = svc.Get(ctx, "k")
	_, _ = svc.Get(ctx, "absent")

	stats := svc.Stats(ctx)
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
	if stats.FastKeys != 1 {
		t.Errorf("expected 1 fast key, got %d", stats.FastKeys)
	}
}
