package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/lohitverma/hoteltracking/internal/infrastructure/config"
)

// HTTPError carries the upstream status so callers can branch on it without
// parsing error strings.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.Status, e.Body)
}

var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// providerClient is the protective shell shared by every provider adapter:
// one HTTP session, a client-side throttle, a circuit breaker, and bounded
// retries with backoff. Adapters on top of it do field mapping only.
type providerClient struct {
	name           string
	client         *http.Client
	baseURL        string
	headers        map[string]string
	rateLimiter    *rate.Limiter
	circuitBreaker *gobreaker.CircuitBreaker
	maxRetries     int
	baseDelay      time.Duration
	maxDelay       time.Duration
	logger         *slog.Logger
}

func newProviderClient(name string, cfg config.ProviderConfig, headers map[string]string, logger *slog.Logger) *providerClient {
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:    100,
			IdleConnTimeout: 90 * time.Second,
		},
	}

	settings := gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"provider", name, "from", from.String(), "to", to.String())
		},
	}

	return &providerClient{
		name:           name,
		client:         client,
		baseURL:        cfg.BaseURL,
		headers:        headers,
		rateLimiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.BurstLimit),
		circuitBreaker: gobreaker.NewCircuitBreaker(settings),
		maxRetries:     cfg.MaxRetries,
		baseDelay:      cfg.RetryInterval,
		maxDelay:       30 * time.Second,
		logger:         logger,
	}
}

func (c *providerClient) getJSON(ctx context.Context, path string, query url.Values, response any) error {
	return c.request(ctx, http.MethodGet, path, query, nil, response)
}

func (c *providerClient) postJSON(ctx context.Context, path string, body, response any) error {
	return c.request(ctx, http.MethodPost, path, nil, body, response)
}

func (c *providerClient) request(ctx context.Context, method, path string, query url.Values, body, response any) error {
	return c.executeWithRetry(ctx, func() error {
		return c.perform(ctx, method, path, query, body, response)
	})
}

// notFoundResult wraps a 404 so it passes through the breaker without
// counting as a failure: an unknown hotel is a valid upstream answer.
type notFoundResult struct {
	err error
}

func (c *providerClient) perform(ctx context.Context, method, path string, query url.Values, body, response any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	result, err := c.circuitBreaker.Execute(func() (any, error) {
		httpErr := c.doHTTPRequest(ctx, method, path, query, body, response)
		if isStatus(httpErr, http.StatusNotFound) {
			return &notFoundResult{err: httpErr}, nil
		}
		return nil, httpErr
	})
	if err != nil {
		return err
	}

	if nf, ok := result.(*notFoundResult); ok {
		return nf.err
	}
	return nil
}

func (c *providerClient) doHTTPRequest(ctx context.Context, method, path string, query url.Values, requestBody, response any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		data, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		request.Header.Set(key, value)
	}

	httpResponse, err := c.client.Do(request)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = httpResponse.Body.Close()
	}()

	if httpResponse.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))
		return &HTTPError{Status: httpResponse.StatusCode, Body: string(data)}
	}

	if response != nil {
		if err := json.NewDecoder(httpResponse.Body).Decode(response); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func (c *providerClient) executeWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			break
		}
	}

	return fmt.Errorf("%s: operation failed after %d retries: %w", c.name, c.maxRetries, lastErr)
}

func (c *providerClient) retryDelay(attempt int) time.Duration {
	delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
	return delay + jitter
}

func (c *providerClient) isRetryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return retryableStatuses[httpErr.Status]
	}

	// Network errors and timeouts are worth another try.
	return true
}

func (c *providerClient) close() error {
	c.client.CloseIdleConnections()
	return nil
}

func isStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}
