package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
)

// WindowStore keeps a per-key sliding window of admitted requests. Take
// prunes the window, counts it, and admits the request only when the count
// is under the limit; rejected requests are never written, so a caller that
// keeps retrying while limited does not push its own window forward. The
// prune/count/insert sequence must be atomic so concurrent callers cannot
// both observe a count under the limit. Count inspects the window without
// recording.
type WindowStore interface {
	Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (allowed bool, used int64, oldest time.Time, err error)
	Count(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)
}

// Decision is the outcome of one rate-limit check. ResetAt is when the
// oldest request in the window falls out, i.e. when a rejected caller can
// retry.
type Decision struct {
	Allowed   bool
	Class     string
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter reports how long a rejected caller should wait, never negative.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

type ClassUsage struct {
	Limit     int       `json:"limit"`
	Window    string    `json:"window"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Service enforces per-class sliding-window limits. Identity is the caller
// (client IP or account), class is the endpoint family. Unknown classes fall
// back to "default", which config validation guarantees exists.
type Service struct {
	store   WindowStore
	classes map[string]config.LimitRule
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store WindowStore, cfg config.RateLimitConfig, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		classes: cfg.Classes,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) rule(class string) (string, config.LimitRule) {
	if rule, ok := s.classes[class]; ok {
		return class, rule
	}
	return "default", s.classes["default"]
}

// Allow decides whether the request fits the window and records it only
// when accepted. A store failure degrades open: serving without limits
// beats refusing all traffic, and the outage is logged for the operator.
func (s *Service) Allow(ctx context.Context, class, identity string) Decision {
	class, rule := s.rule(class)
	now := s.now()

	allowed, used, oldest, err := s.store.Take(ctx, class+":"+identity, now, rule.Window, rule.Limit)
	if err != nil {
		s.logger.Warn("Rate limit store unavailable, allowing request", "class", class, "identity", identity, "error", err)
		return Decision{
			Allowed:   true,
			Class:     class,
			Limit:     rule.Limit,
			Remaining: rule.Limit,
			ResetAt:   now.Add(rule.Window),
		}
	}

	remaining := rule.Limit - int(used)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := oldest.Add(rule.Window)
	if oldest.IsZero() {
		resetAt = now.Add(rule.Window)
	}

	decision := Decision{
		Allowed:   allowed,
		Class:     class,
		Limit:     rule.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}

	if !decision.Allowed {
		s.logger.Info("Rate limit exceeded", "class", class, "identity", identity, "used", used, "limit", rule.Limit)
	}
	return decision
}

// Usage reports the caller's current consumption per class without counting
// as a request.
func (s *Service) Usage(ctx context.Context, identity string) map[string]ClassUsage {
	now := s.now()
	usage := make(map[string]ClassUsage, len(s.classes))

	for class, rule := range s.classes {
		used, err := s.store.Count(ctx, class+":"+identity, now, rule.Window)
		if err != nil {
			s.logger.Warn("Rate limit usage lookup failed", "class", class, "identity", identity, "error", err)
			continue
		}
		remaining := int64(rule.Limit) - used
		if remaining < 0 {
			remaining = 0
		}
		usage[class] = ClassUsage{
			Limit:     rule.Limit,
			Window:    rule.Window.String(),
			Used:      used,
			Remaining: remaining,
			ResetAt:   now.Add(rule.Window),
		}
	}
	return usage
}
