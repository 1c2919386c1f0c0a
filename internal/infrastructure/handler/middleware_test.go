package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/lohitverma/hoteltracking/internal/application/ratelimit"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
	"github.com/lohitverma/hoteltracking/internal/infrastructure/handler"
)

// memoryWindowStore is a sliding window kept in process, enough to exercise
// the middleware path end to end.
type memoryWindowStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func newMemoryWindowStore() *memoryWindowStore {
	return &memoryWindowStore{windows: make(map[string][]time.Time)}
}

func (m *memoryWindowStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-window)
	var kept []time.Time
	for _, ts := range m.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	allowed := len(kept) < limit
	if allowed {
		kept = append(kept, now)
	}
	m.windows[key] = kept
	var oldest time.Time
	if len(kept) > 0 {
		oldest = kept[0]
	}
	return allowed, int64(len(kept)), oldest, nil
}

func (m *memoryWindowStore) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.windows[key])), nil
}

func newLimitedRouter(limit int) *mux.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limits := ratelimit.NewService(newMemoryWindowStore(), config.RateLimitConfig{
		Classes: map[string]config.LimitRule{
			"default": {Limit: limit, Window: time.Minute},
		},
	}, logger)

	router := mux.NewRouter()
	router.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Use(handler.RateLimitMiddleware(limits, "default", logger))
	return router
}

func TestRateLimitMiddleware_AllowsAndSetsHeaders(t *testing.T) {
	router := newLimitedRouter(2)

	req := httptest.NewRequest("GET", "/ok", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("expected limit header 2, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("expected remaining header 1, got %q", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected reset header")
	}
}

func TestRateLimitMiddleware_RejectsOverLimit(t *testing.T) {
	router := newLimitedRouter(1)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/ok", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if i == 0 {
			if rec.Code != http.StatusOK {
				t.Fatalf("first request: expected 200, got %d", rec.Code)
			}
			continue
		}

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("second request: expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header")
		}

		var response handler.APIResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if response.Success {
			t.Error("expected success=false")
		}
		if response.Error != "rate limit exceeded" {
			t.Errorf("unexpected error message %q", response.Error)
		}
	}
}

func TestRateLimitMiddleware_SeparatesClients(t *testing.T) {
	router := newLimitedRouter(1)

	first := httptest.NewRequest("GET", "/ok", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	second := httptest.NewRequest("GET", "/ok", nil)
	second.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, second)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other client allowed, got %d", rec.Code)
	}
}

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:   "remote addr only",
			remote: "192.168.1.10:5555",
			want:   "ip:192.168.1.10",
		},
		{
			name:    "x-forwarded-for single",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			remote:  "10.0.0.1:80",
			want:    "ip:203.0.113.9",
		},
		{
			name:    "x-forwarded-for chain keeps first hop",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2, 10.0.0.3"},
			remote:  "10.0.0.1:80",
			want:    "ip:203.0.113.9",
		},
		{
			name:    "x-real-ip",
			headers: map[string]string{"X-Real-IP": "198.51.100.7"},
			remote:  "10.0.0.1:80",
			want:    "ip:198.51.100.7",
		},
		{
			name:    "user header wins",
			headers: map[string]string{"X-User-ID": "u-42", "X-Forwarded-For": "203.0.113.9"},
			remote:  "10.0.0.1:80",
			want:    "user:u-42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}

			if got := handler.ClientIdentity(req); got != tt.want {
				t.Errorf("ClientIdentity() = %q, want %q", got, tt.want)
			}
		})
	}
}
