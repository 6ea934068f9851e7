// Package weather fetches current conditions for a route location from
// public weather APIs and maps them onto models.WeatherData.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/lox/gritting/internal/httputil"
	"github.com/lox/gritting/internal/metrics"
)

// ErrUnavailable is returned when no provider could supply weather.
var ErrUnavailable = errors.New("weather unavailable")

// roadSurfaceOffsetC approximates road surface temperature from air
// temperature when no road sensor is available.
const roadSurfaceOffsetC = 1.5

const maxRetries = 3

// StatusError is an unexpected HTTP status from a provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Option configures a provider client.
type Option func(*client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithBackOff overrides the retry schedule. Used by tests to avoid sleeping.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *client) { c.newBackOff = fn }
}

// WithBaseURL points the provider at a different endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// client is the shared transport for providers: retries with exponential
// backoff on 429 and 5xx, and a circuit breaker per provider.
type client struct {
	provider   string
	baseURL    string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	newBackOff func() backoff.BackOff
}

func newClient(provider, baseURL string, opts ...Option) *client {
	c := &client{
		provider: provider,
		baseURL:  baseURL,
		http:     httputil.NewClient(),
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxElapsedTime = 30 * time.Second
			return bo
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// Client errors are the caller's problem, not an unhealthy upstream.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.retryable()
			}
			return err == nil
		},
	})
	return c
}

// getJSON issues a GET to the base URL with query and decodes the response into v.
func (c *client) getJSON(ctx context.Context, query map[string]string, v any) error {
	start := time.Now()
	defer func() {
		metrics.WeatherAPILatency.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())
	}()

	var body []byte
	operation := func() error {
		b, err := c.breaker.Execute(func() ([]byte, error) {
			return c.get(ctx, query)
		})
		if err != nil {
			var se *StatusError
			switch {
			case errors.As(err, &se) && !se.retryable():
				return backoff.Permanent(err)
			case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
				return backoff.Permanent(err)
			case ctx.Err() != nil:
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		body = b
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		metrics.WeatherAPICallsTotal.WithLabelValues(c.provider, callStatus(err)).Inc()
		return fmt.Errorf("%s: %w", c.provider, err)
	}
	metrics.WeatherAPICallsTotal.WithLabelValues(c.provider, "ok").Inc()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.provider, err)
	}
	return nil
}

func (c *client) get(ctx context.Context, query map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

func callStatus(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return strconv.Itoa(se.Code)
	case errors.Is(err, gobreaker.ErrOpenState):
		return "circuit_open"
	default:
		return "error"
	}
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
