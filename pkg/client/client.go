// Package client provides the default request.Sender implementation based on the standard net/http package.
//
// Client is immutable, each With* and And* method returns a modified copy.
// Send resolves the request definition, sends it with retries, decodes the response body
// and maps it to the result or to the error of the definition.
//
// Logging and telemetry hooks are registered by AndTrace and WithTelemetry,
// see the trace and trace/otel packages.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	otelMetric "go.opentelemetry.io/otel/metric"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/keboola/go-httpext/pkg/client/counter"
	"github.com/keboola/go-httpext/pkg/client/trace"
	"github.com/keboola/go-httpext/pkg/client/trace/otel"
	"github.com/keboola/go-httpext/pkg/request"
)

const (
	DefaultUserAgent      = "keboola-go-httpext"
	DefaultAcceptEncoding = "gzip, br"
)

// Client sends request definitions by the native http.Client.
type Client struct {
	transport http.RoundTripper
	baseURL   *url.URL
	header    http.Header
	retry     RetryConfig
	tracer    otelTrace.Tracer
	traces    []trace.Factory
}

// New returns a Client with the DefaultTransport, DefaultRetry and default headers.
func New() Client {
	header := make(http.Header)
	header.Set("User-Agent", DefaultUserAgent)
	header.Set("Accept-Encoding", DefaultAcceptEncoding)
	return Client{transport: DefaultTransport(), header: header, retry: DefaultRetry()}
}

// WithBaseURL sets the URL relative request URLs are resolved against.
func (c Client) WithBaseURL(baseURL string) Client {
	v, err := url.Parse(baseURL)
	if err != nil {
		panic(fmt.Errorf(`base url "%s" is not valid: %w`, baseURL, err))
	}
	c.baseURL = v
	return c
}

func (c Client) WithUserAgent(v string) Client {
	return c.WithHeader("User-Agent", v)
}

// WithHeader sets a header sent with each request, a request header of the same name takes precedence.
func (c Client) WithHeader(key, value string) Client {
	return c.WithHeaders(map[string]string{key: value})
}

func (c Client) WithHeaders(headers map[string]string) Client {
	c.header = c.header.Clone()
	for k, v := range headers {
		c.header.Set(k, v)
	}
	return c
}

func (c Client) WithTransport(transport http.RoundTripper) Client {
	if transport == nil {
		panic(fmt.Errorf("transport cannot be nil"))
	}
	c.transport = transport
	return c
}

func (c Client) WithRetry(retry RetryConfig) Client {
	c.retry = retry
	return c
}

// AndTrace adds the trace factory, hooks of all factories are called in the registration order.
func (c Client) AndTrace(fn trace.Factory) Client {
	traces := make([]trace.Factory, len(c.traces), len(c.traces)+1)
	copy(traces, c.traces)
	c.traces = append(traces, fn)
	return c
}

// WithTelemetry adds OpenTelemetry spans and metrics, a nil provider is replaced by the noop one.
func (c Client) WithTelemetry(tracerProvider otelTrace.TracerProvider, meterProvider otelMetric.MeterProvider, opts ...otel.Option) Client {
	if tracerProvider != nil {
		c.tracer = tracerProvider.Tracer(otel.TraceAppName)
	}
	return c.AndTrace(otel.NewTrace(tracerProvider, meterProvider, opts...))
}

// Tracer returns the tracer set by WithTelemetry, or nil.
func (c Client) Tracer() otelTrace.Tracer {
	return c.tracer
}

// Send sends the request and maps the response, it implements the request.Sender interface.
func (c Client) Send(ctx context.Context, reqDef request.HTTPRequest) (res *http.Response, result any, err error) {
	if c.transport == nil {
		panic(fmt.Errorf("client value is not initialized"))
	}

	ctx, hooks := c.newTrace(ctx, reqDef)
	if hooks != nil {
		ctx = httptrace.WithClientTrace(ctx, &hooks.ClientTrace)
		if hooks.RequestProcessed != nil {
			defer func() { hooks.RequestProcessed(result, err) }()
		}
	}

	req, err := c.newRequest(ctx, reqDef)
	if err != nil {
		_ = closeResult(reqDef.ResultDef())
		return nil, nil, err
	}

	// Redirects are handled by the native client, retries by the round tripper
	native := http.Client{
		Timeout:   c.retry.TotalRequestTimeout,
		Transport: roundTripper{retry: c.retry, trace: hooks, wrapped: c.transport},
	}
	startedAt := time.Now()
	if res, err = native.Do(req); err != nil {
		_ = closeResult(reqDef.ResultDef())
		return nil, nil, sendError(req, startedAt, c.retry.TotalRequestTimeout, err)
	}

	if hooks != nil && hooks.ResponseBodyDone != nil {
		res.Body = counter.NewReadCloser(res.Body, counter.OnClose(hooks.ResponseBodyDone))
	}

	result, err, processErr := mapResponse(res, reqDef.ResultDef(), reqDef.ErrorDef())
	switch {
	case processErr != nil:
		return res, nil, fmt.Errorf(`cannot process request %s "%s": %w`, req.Method, req.URL.String(), processErr)
	case err == nil && res.StatusCode >= http.StatusBadRequest:
		return res, nil, HTTPError{Method: req.Method, URL: req.URL.String(), StatusCode: res.StatusCode}
	default:
		return res, result, err
	}
}

// newTrace composes hooks of all trace factories, the hooks are nil if there is none.
func (c Client) newTrace(ctx context.Context, reqDef request.HTTPRequest) (context.Context, *trace.ClientTrace) {
	var hooks *trace.ClientTrace
	for _, factory := range c.traces {
		var next *trace.ClientTrace
		if ctx, next = factory(ctx, reqDef); next != nil {
			next.Compose(hooks)
			hooks = next
		}
	}
	return ctx, hooks
}

// newRequest converts the request definition to the native request.
func (c Client) newRequest(ctx context.Context, reqDef request.HTTPRequest) (*http.Request, error) {
	reqURL, err := c.requestURL(reqDef)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, reqDef.Method(), reqURL.String(), nil)
	if err != nil {
		return nil, err
	}

	// Request headers replace client headers of the same name
	for k, values := range c.header {
		req.Header[k] = append([]string(nil), values...)
	}
	for k, values := range reqDef.RequestHeader() {
		req.Header[k] = append([]string(nil), values...)
	}

	if reqDef.RequestBody() == nil {
		return req, nil
	}

	// GetBody is called again by a redirect or a retry
	req.GetBody = func() (io.ReadCloser, error) {
		body, err := requestBody(reqDef)
		if err != nil {
			return nil, fmt.Errorf(`request %s "%s": cannot prepare request body: %w`, req.Method, req.URL.String(), err)
		}
		return body, nil
	}
	if req.Body, err = req.GetBody(); err != nil {
		return nil, err
	}
	return req, nil
}

// requestURL returns the absolute URL with path and query parameters.
func (c Client) requestURL(reqDef request.HTTPRequest) (*url.URL, error) {
	str := reqDef.URL().String()
	for k, v := range reqDef.PathParams() {
		str = strings.ReplaceAll(str, url.PathEscape("{"+k+"}"), url.PathEscape(v))
	}

	var out *url.URL
	var err error
	if c.baseURL == nil {
		out, err = url.Parse(str)
	} else {
		out, err = c.baseURL.Parse(str)
	}
	if err != nil {
		return nil, err
	}

	// Query parameters of the definition replace the parameters in the URL
	if params := reqDef.QueryParams(); len(params) > 0 {
		query := out.Query()
		for k, values := range params {
			query[k] = values
		}
		out.RawQuery = query.Encode()
	}
	return out, nil
}

func requestBody(r request.HTTPRequest) (io.ReadCloser, error) {
	switch v := r.RequestBody().(type) {
	case string:
		return io.NopCloser(strings.NewReader(v)), nil
	case []byte:
		return io.NopCloser(bytes.NewReader(v)), nil
	case io.ReadSeeker:
		// Rewind, the body may be read by a previous attempt
		if _, err := v.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		if closer, ok := v.(io.ReadSeekCloser); ok {
			return closer, nil
		}
		return io.NopCloser(v), nil
	default:
		if !isJSONContentType(r.RequestHeader().Get("Content-Type")) {
			return nil, fmt.Errorf(`unsupported body type "%T"`, v)
		}
		content, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf(`cannot encode JSON body: %w`, err)
		}
		return io.NopCloser(bytes.NewReader(content)), nil
	}
}
