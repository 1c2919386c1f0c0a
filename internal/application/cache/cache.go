package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCacheMiss is returned by a tier when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Tier is one cache level. Get reports the remaining TTL so a faster tier
// can be repopulated without extending the original deadline.
type Tier interface {
	Get(ctx context.Context, key string) (value []byte, remaining time.Duration, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (TierStats, error)
}

type TierStats struct {
	Keys       int64 `json:"keys"`
	MemoryUsed int64 `json:"memory_used"`
}

type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	FastKeys    int64 `json:"fast_keys"`
	DurableKeys int64 `json:"durable_keys"`
	MemoryUsed  int64 `json:"memory_used"`
}

// Service is the two-tier read-through/write-through cache. The fast tier is
// volatile and cheap to hit; the durable tier survives restarts. Everything
// cached here is recomputable, so tier failures degrade to recomputation
// instead of failing the caller.
type Service struct {
	fast    Tier
	durable Tier
	logger  *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64

	mu       sync.Mutex
	inflight map[string]*inflightCompute
}

type inflightCompute struct {
	done  chan struct{}
	value []byte
	err   error
}

func NewService(fast, durable Tier, logger *slog.Logger) *Service {
	return &Service{
		fast:     fast,
		durable:  durable,
		logger:   logger,
		inflight: make(map[string]*inflightCompute),
	}
}

// Get checks the fast tier, then the durable tier. A durable hit repopulates
// the fast tier with the remaining TTL so both tiers expire together.
func (s *Service) Get(ctx context.Context, key string) ([]byte, error) {
	value, _, err := s.fast.Get(ctx, key)
	if err == nil {
		s.hits.Add(1)
		return value, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("fast tier get failed", "key", key, "error", err)
	}

	value, remaining, err := s.durable.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("durable tier get failed", "key", key, "error", err)
		}
		s.misses.Add(1)
		return nil, ErrCacheMiss
	}

	if remaining > 0 {
		if err := s.fast.Set(ctx, key, value, remaining); err != nil {
			s.logger.Warn("fast tier repopulate failed", "key", key, "error", err)
		}
	}

	s.hits.Add(1)
	return value, nil
}

// Set writes through both tiers. Tier errors are logged, not returned: the
// source of truth is recomputable and a degraded cache must not fail reads.
func (s *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.durable.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("durable tier set failed", "key", key, "error", err)
	}
	if err := s.fast.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("fast tier set failed", "key", key, "error", err)
	}
}

// Delete purges the key from both tiers before returning.
func (s *Service) Delete(ctx context.Context, key string) error {
	return errors.Join(s.fast.Delete(ctx, key), s.durable.Delete(ctx, key))
}

// Clear purges both tiers before returning.
func (s *Service) Clear(ctx context.Context) error {
	return errors.Join(s.fast.Clear(ctx), s.durable.Clear(ctx))
}

// GetOrSet returns the cached value or computes and stores it. Concurrent
// callers on the same missing key within one instance share a single compute;
// there is no cross-instance guarantee.
func (s *Service) GetOrSet(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if value, err := s.Get(ctx, key); err == nil {
		return value, nil
	}

	s.mu.Lock()
	if existing, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		select {
		case <-existing.done:
			return existing.value, existing.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightCompute{done: make(chan struct{})}
	s.inflight[key] = call
	s.mu.Unlock()

	value, err := compute(ctx)

	s.mu.Lock()
	call.value = value
	call.err = err
	delete(s.inflight, key)
	s.mu.Unlock()

	if err == nil {
		s.Set(ctx, key, value, ttl)
	}

	close(call.done)
	return value, err
}

func (s *Service) Stats(ctx context.Context) Stats {
	stats := Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}

	if fastStats, err := s.fast.Stats(ctx); err == nil {
		stats.FastKeys = fastStats.Keys
		stats.MemoryUsed = fastStats.MemoryUsed
	} else {
		s.logger.Warn("fast tier stats failed", "error", err)
	}

	if durableStats, err := s.durable.Stats(ctx); err == nil {
		stats.DurableKeys = durableStats.Keys
	} else {
		s.logger.Warn("durable tier stats failed", "error", err)
	}

	return stats
}
