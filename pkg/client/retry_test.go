package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/keboola/go-httpext/pkg/client"
	"github.com/keboola/go-httpext/pkg/client/trace"
	"github.com/keboola/go-httpext/pkg/request"
)

// retryRecorder records attempts and delays reported by the HTTPRequestRetry hook.
type retryRecorder struct {
	lock     sync.Mutex
	attempts []int
	delays   []time.Duration
}

func (r *retryRecorder) factory() trace.Factory {
	return func(ctx context.Context, _ request.HTTPRequest) (context.Context, *trace.ClientTrace) {
		return ctx, &trace.ClientTrace{
			HTTPRequestRetry: func(attempt int, delay time.Duration) {
				r.lock.Lock()
				defer r.lock.Unlock()
				r.attempts = append(r.attempts, attempt)
				r.delays = append(r.delays, delay)
			},
		}
	}
}

func TestRetry_ExponentialDelay(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", httpmock.NewStringResponder(503, "unavailable"))

	rec := &retryRecorder{}
	c := client.New().
		WithTransport(transport).
		WithRetry(client.RetryConfig{
			Condition:     client.DefaultRetryCondition(),
			Count:         7,
			WaitTimeStart: time.Microsecond,
			WaitTimeMax:   10 * time.Microsecond,
		}).
		AndTrace(rec.factory())

	_, _, err := request.NewHTTPRequest(c).WithGet("https://example.com").Send(context.Background())
	assert.EqualError(t, err, `request GET "https://example.com" failed: 503 Service Unavailable`)
	assert.Equal(t, 8, transport.GetCallCountInfo()["GET https://example.com"])
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, rec.attempts)
	assert.Equal(t, []time.Duration{
		1 * time.Microsecond,
		2 * time.Microsecond,
		4 * time.Microsecond,
		8 * time.Microsecond,
		10 * time.Microsecond,
		10 * time.Microsecond,
		10 * time.Microsecond,
	}, rec.delays)
}

func TestRetry_RetryAfterHeader(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	rec := &retryRecorder{}
	c := client.New().
		WithTransport(transport).
		WithRetry(client.RetryConfig{
			Condition:     client.DefaultRetryCondition(),
			Count:         3,
			WaitTimeStart: time.Millisecond,
			WaitTimeMax:   time.Minute,
		}).
		AndTrace(rec.factory())

	// The first response is sent with the header "Retry-After: 0"
	transport.RegisterResponder("GET", "https://example.com", func() httpmock.Responder {
		calls := 0
		return func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				res := httpmock.NewStringResponse(429, "slow down")
				res.Header.Set("Retry-After", "0")
				return res, nil
			}
			return httpmock.NewStringResponse(200, "OK"), nil
		}
	}())

	var out string
	_, _, err := request.NewHTTPRequest(c).WithGet("https://example.com").WithResult(&out).Send(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "OK", out)
	assert.Equal(t, []time.Duration{0}, rec.delays)
}

func TestRetry_BodyRewind(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("PUT", "https://example.com/item", func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		assert.NoError(t, err)
		assert.Equal(t, `{"name":"foo"}`, string(body))
		return httpmock.NewStringResponse(500, "error"), nil
	})

	c := client.New().WithTransport(transport).WithRetry(client.TestingRetry())
	_, _, err := request.NewHTTPRequest(c).
		WithPut("https://example.com/item").
		WithJSONBody(map[string]any{"name": "foo"}).
		Send(context.Background())
	assert.EqualError(t, err, `request PUT "https://example.com/item" failed: 500 Internal Server Error`)
	assert.Equal(t, 1+client.RetriesCount, transport.GetTotalCallCount())
}

func TestRetry_StopOnTotalTimeout(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", httpmock.NewStringResponder(504, "timeout"))

	// The first delay would exceed the total timeout
	rec := &retryRecorder{}
	c := client.New().
		WithTransport(transport).
		WithRetry(client.RetryConfig{
			Condition:           client.DefaultRetryCondition(),
			Count:               10,
			TotalRequestTimeout: 30 * time.Millisecond,
			WaitTimeStart:       40 * time.Millisecond,
			WaitTimeMax:         40 * time.Millisecond,
		}).
		AndTrace(rec.factory())

	_, _, err := request.NewHTTPRequest(c).WithGet("https://example.com").Send(context.Background())
	assert.EqualError(t, err, `request GET "https://example.com" failed: 504 Gateway Timeout`)
	assert.Equal(t, 1, transport.GetTotalCallCount())
	assert.Empty(t, rec.delays)
}

func TestRetry_ContextCanceledDuringDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", func(req *http.Request) (*http.Response, error) {
		cancel()
		return httpmock.NewStringResponse(503, "unavailable"), nil
	})

	c := client.New().WithTransport(transport).WithRetry(client.RetryConfig{
		Condition:     client.DefaultRetryCondition(),
		Count:         3,
		WaitTimeStart: time.Minute,
		WaitTimeMax:   time.Minute,
	})

	_, _, err := request.NewHTTPRequest(c).WithGet("https://example.com").Send(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestNoRetry(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", httpmock.NewStringResponder(503, "unavailable"))

	c := client.New().WithTransport(transport).WithRetry(client.NoRetry())
	_, _, err := request.NewHTTPRequest(c).WithGet("https://example.com").Send(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestDefaultRetryCondition(t *testing.T) {
	t.Parallel()

	condition := client.DefaultRetryCondition()
	cases := []struct {
		res      *http.Response
		err      error
		expected bool
	}{
		{res: nil, err: nil, expected: false},
		{res: nil, err: errors.New("read: connection reset by peer"), expected: true},
		{res: nil, err: errors.New("dial tcp: lookup foo.invalid: no such host"), expected: false},
		{res: nil, err: errors.New("dial tcp: lookup foo: No address associated with hostname"), expected: false},
		{res: &http.Response{StatusCode: http.StatusOK}, expected: false},
		{res: &http.Response{StatusCode: http.StatusForbidden}, expected: false},
		{res: &http.Response{StatusCode: http.StatusNotFound}, expected: false},
		{res: &http.Response{StatusCode: http.StatusConflict}, expected: true},
		{res: &http.Response{StatusCode: http.StatusTooManyRequests}, expected: true},
		{res: &http.Response{StatusCode: http.StatusBadGateway}, expected: true},
		{res: &http.Response{StatusCode: http.StatusGatewayTimeout}, expected: true},
	}
	for i, tc := range cases {
		assert.Equal(t, tc.expected, condition(tc.res, tc.err), i)
	}
}

// drainRecorder is a response body which records whether it was read to the end before Close.
type drainRecorder struct {
	io.Reader
	lock    sync.Mutex
	eof     bool
	drained *[]bool
}

func (b *drainRecorder) Read(p []byte) (int, error) {
	n, err := b.Reader.Read(p)
	if errors.Is(err, io.EOF) {
		b.lock.Lock()
		b.eof = true
		b.lock.Unlock()
	}
	return n, err
}

func (b *drainRecorder) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	*b.drained = append(*b.drained, b.eof)
	return nil
}

func TestRetry_DrainsFailedResponse(t *testing.T) {
	t.Parallel()

	var lock sync.Mutex
	var drained []bool
	attempt := 0
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", func(req *http.Request) (*http.Response, error) {
		lock.Lock()
		defer lock.Unlock()
		attempt++
		if attempt == 1 {
			res := httpmock.NewStringResponse(503, "unavailable")
			res.Body = &drainRecorder{Reader: res.Body, drained: &drained}
			return res, nil
		}
		return httpmock.NewStringResponse(200, "OK"), nil
	})

	c := client.New().WithTransport(transport).WithRetry(client.TestingRetry())
	var out string
	_, _, err := request.NewHTTPRequest(c).WithGet("https://example.com").WithResult(&out).Send(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "OK", out)
	assert.Equal(t, []bool{true}, drained)
}
