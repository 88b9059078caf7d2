package client

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/keboola/go-httpext/pkg/client/trace"
)

const (
	// RetriesCount is the default maximum number of retries of one request.
	RetriesCount = 5
	// RequestTimeout is the default timeout of one request, retries included.
	RequestTimeout = 30 * time.Second
	// RetryWaitTimeStart is the default delay before the first retry.
	RetryWaitTimeStart = 100 * time.Millisecond
	// RetryWaitTimeMax is the default maximum delay between retries.
	RetryWaitTimeMax = 3 * time.Second
)

// RetryConfig configures retries of failed requests.
// The delay grows exponentially from WaitTimeStart up to WaitTimeMax,
// retrying stops after Count retries or when TotalRequestTimeout would be exceeded.
type RetryConfig struct {
	Condition           RetryCondition
	Count               int
	TotalRequestTimeout time.Duration
	WaitTimeStart       time.Duration
	WaitTimeMax         time.Duration
}

// RetryCondition returns true if the request should be retried.
// The response is nil on a network error.
type RetryCondition func(*http.Response, error) bool

// DefaultRetry returns the default retry configuration.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		Condition:           DefaultRetryCondition(),
		Count:               RetriesCount,
		TotalRequestTimeout: RequestTimeout,
		WaitTimeStart:       RetryWaitTimeStart,
		WaitTimeMax:         RetryWaitTimeMax,
	}
}

// TestingRetry returns the default configuration with minimal delays, for tests.
func TestingRetry() RetryConfig {
	cfg := DefaultRetry()
	cfg.WaitTimeStart = time.Millisecond
	cfg.WaitTimeMax = time.Millisecond
	return cfg
}

// NoRetry returns configuration without retries.
func NoRetry() RetryConfig {
	cfg := DefaultRetry()
	cfg.Condition = nil
	cfg.Count = 0
	return cfg
}

// retryStatusCodes are temporary server states.
var retryStatusCodes = map[int]bool{ //nolint:gochecknoglobals
	http.StatusRequestTimeout:      true,
	http.StatusConflict:            true,
	http.StatusLocked:              true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// DefaultRetryCondition retries network errors, except an unknown host, and temporary HTTP statuses.
func DefaultRetryCondition() RetryCondition {
	return func(res *http.Response, err error) bool {
		if res != nil && res.StatusCode != 0 {
			return retryStatusCodes[res.StatusCode]
		}
		if err == nil {
			return false
		}
		msg := err.Error()
		return !strings.Contains(msg, "no such host") && !strings.Contains(msg, "No address associated with hostname")
	}
}

// NewBackoff returns exponential backoff without randomization.
func (c RetryConfig) NewBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.WaitTimeStart
	b.MaxInterval = c.WaitTimeMax
	b.MaxElapsedTime = c.TotalRequestTimeout
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// delay returns the delay before the next attempt, the Retry-After header is used if it is not greater than WaitTimeMax.
func (c RetryConfig) delay(b backoff.BackOff, res *http.Response) time.Duration {
	d := b.NextBackOff()
	if d == backoff.Stop || res == nil {
		return d
	}
	if seconds, err := strconv.Atoi(res.Header.Get("Retry-After")); err == nil && seconds >= 0 {
		if after := time.Duration(seconds) * time.Second; after <= c.WaitTimeMax {
			return after
		}
	}
	return d
}

// roundTripper sends the request by the wrapped transport, retries it and invokes the trace hooks.
type roundTripper struct {
	trace   *trace.ClientTrace
	retry   RetryConfig
	wrapped http.RoundTripper
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	b := rt.retry.NewBackoff()
	for attempt := 1; ; attempt++ {
		res, err := rt.send(req)
		if attempt > rt.retry.Count || rt.retry.Condition == nil || !rt.retry.Condition(res, err) {
			return res, err
		}

		d := rt.retry.delay(b, res)
		if d == backoff.Stop {
			return res, err
		}

		// Drain the failed response, so the connection can be reused
		if res != nil && res.Body != nil {
			_, _ = io.Copy(io.Discard, res.Body)
			_ = res.Body.Close()
		}

		if rt.trace != nil && rt.trace.HTTPRequestRetry != nil {
			rt.trace.HTTPRequestRetry(attempt, d)
		}

		if req.GetBody != nil {
			if req.Body, err = req.GetBody(); err != nil {
				return nil, fmt.Errorf("cannot rewind body: %w", err)
			}
		}

		timer := time.NewTimer(d)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

func (rt roundTripper) send(req *http.Request) (*http.Response, error) {
	if rt.trace != nil && rt.trace.HTTPRequestStart != nil {
		rt.trace.HTTPRequestStart(req)
	}
	res, err := rt.wrapped.RoundTrip(req)
	if rt.trace != nil && rt.trace.HTTPRequestDone != nil {
		rt.trace.HTTPRequestDone(res, err)
	}
	return res, err
}
