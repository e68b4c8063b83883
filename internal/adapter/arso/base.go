package arso

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/sony/gobreaker/v2"
)

// RetryPolicy configures how BaseClient retries 429 and 5xx responses.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the retry settings used for ARSO endpoints.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// StatusError is returned when an upstream status could not be recovered by retrying.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

// BaseClient wraps an *http.Client with a circuit breaker and retries.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleep       func(ctx context.Context, d time.Duration) error
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the wait between retries. Tests use it to avoid real delays.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) BaseClientOption {
	return func(c *BaseClient) { c.sleep = fn }
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) BaseClientOption {
	return func(c *BaseClient) { c.retryPolicy = p }
}

// NewBaseClient creates a BaseClient whose breaker opens after more than five
// consecutive failed attempts and probes again after 30 seconds.
func NewBaseClient(httpClient *http.Client, breakerName, userAgent string, opts ...BaseClientOption) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	bc := &BaseClient{
		client:      httpClient,
		breaker:     cb,
		retryPolicy: DefaultRetryPolicy(),
		userAgent:   userAgent,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Get issues a GET request, retrying on 429 and 5xx. Any other response is
// returned as-is and the caller closes its body. Exhausted retries yield a
// *StatusError (or the transport error); an open breaker yields gobreaker.ErrOpenState.
func (c *BaseClient) Get(ctx context.Context, url string) (*http.Response, error) {
	var (
		lastStatus int
		lastErr    error
	)

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, &StatusError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		var retryAfter string
		if resp != nil {
			lastStatus = resp.StatusCode
			retryAfter = resp.Header.Get("Retry-After")
			resp.Body.Close()
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("get %s: %w", url, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt < maxAttempts-1 {
			if err := c.sleep(ctx, c.computeBackoff(attempt, retryAfter)); err != nil {
				return nil, err
			}
		}
	}

	if lastStatus != 0 {
		return nil, fmt.Errorf("get %s after %d attempts: %w", url, maxAttempts, &StatusError{StatusCode: lastStatus})
	}
	return nil, fmt.Errorf("get %s after %d attempts: %w", url, maxAttempts, lastErr)
}

// computeBackoff honours a Retry-After header in seconds, otherwise picks a
// jittered wait between MinWait and a ceiling that doubles per attempt up to MaxWait.
func (c *BaseClient) computeBackoff(attempt int, retryAfter string) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
	}

	minWait := c.retryPolicy.MinWait
	ceiling := minWait
	for range attempt {
		ceiling = retry.NextBackoff(ceiling, c.retryPolicy.MaxWait)
	}
	if ceiling <= minWait {
		return minWait
	}
	return minWait + rand.N(ceiling-minWait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if !retry.SleepWithContext(ctx, d) {
		return ctx.Err()
	}
	return nil
}
