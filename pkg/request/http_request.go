package request

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Result - any value.
type Result = any

// NoResult type.
type NoResult struct{}

// HTTPRequest is an immutable HTTP request definition.
// Each With* and And* method returns a modified copy, the original value is never changed.
type HTTPRequest interface {
	httpRequestReadOnly

	// WithGet, WithHead, WithPost, WithPut, WithPatch and WithDelete set the method and the URL at once.
	WithGet(url string) HTTPRequest
	WithHead(url string) HTTPRequest
	WithPost(url string) HTTPRequest
	WithPut(url string) HTTPRequest
	WithPatch(url string) HTTPRequest
	WithDelete(url string) HTTPRequest
	WithMethod(method string) HTTPRequest
	// WithBaseURL sets the URL a relative request URL is resolved against.
	WithBaseURL(baseURL string) HTTPRequest
	// WithURL parses the URL, it panics if the URL is not valid.
	WithURL(url string) HTTPRequest
	// WithURI sets an already parsed URL, see ParseURI.
	WithURI(uri *url.URL) HTTPRequest

	// AndHeader sets the header, other headers are kept.
	AndHeader(header string, value string) HTTPRequest
	// AndQueryParam sets the query parameter, other parameters are kept.
	AndQueryParam(param, value string) HTTPRequest
	// WithQueryParams replaces all query parameters.
	WithQueryParams(params map[string]string) HTTPRequest
	// AndPathParam sets the value of a {placeholder} in the URL path.
	AndPathParam(param, value string) HTTPRequest
	// WithPathParams replaces all {placeholder} values.
	WithPathParams(params map[string]string) HTTPRequest

	// WithFormBody encodes the form as "application/x-www-form-urlencoded" body.
	WithFormBody(form map[string]string) HTTPRequest
	// WithJSONBody sets the value encoded to the JSON body.
	WithJSONBody(body any) HTTPRequest
	// WithBody sets the raw body, see RequestBody for supported types.
	WithBody(body any) HTTPRequest
	WithContentType(contentType string) HTTPRequest

	// WithError sets a pointer the JSON error response is decoded to.
	WithError(err error) HTTPRequest
	// WithResult sets a pointer or a writer the response body is mapped to.
	WithResult(result any) HTTPRequest

	// WithOnComplete registers a listener invoked after the request is sent.
	// The listener receives the error of the previous one and returns the new error.
	WithOnComplete(func(ctx context.Context, response HTTPResponse, err error) error) HTTPRequest
	// WithOnSuccess registers a listener invoked only if there is no error.
	WithOnSuccess(func(ctx context.Context, response HTTPResponse) error) HTTPRequest
	// WithOnError registers a listener invoked only if there is an error.
	WithOnError(func(ctx context.Context, response HTTPResponse, err error) error) HTTPRequest

	// Send sends the request by the sender and runs the listeners.
	Send(ctx context.Context) (response HTTPResponse, result any, err error)
	SendOrErr(ctx context.Context) error
}

type httpRequestReadOnly interface {
	Method() string
	// URL returns the request URL resolved against the base URL.
	URL() *url.URL
	RequestHeader() http.Header
	QueryParams() url.Values
	// PathParams returns values of {placeholder} parts of the URL.
	PathParams() map[string]string
	// RequestBody returns the body definition, one of:
	// string, []byte, io.ReadSeeker, io.ReadSeekCloser or any value encoded to JSON.
	RequestBody() any
	ErrorDef() error
	ResultDef() any
}

type withTracer interface {
	Tracer() trace.Tracer
}

// NewHTTPRequest creates an immutable HTTP request sent by the sender.
// The definition is complete when the method and the URL are set, for example by WithGet.
func NewHTTPRequest(sender Sender) HTTPRequest {
	return httpRequest{sender: sender, header: make(http.Header)}
}

type httpRequest struct {
	sender Sender

	method  string
	baseURL *url.URL
	url     *url.URL

	header      http.Header
	queryParams url.Values
	pathParams  map[string]string

	body      any
	resultDef any
	errorDef  error

	listeners []func(ctx context.Context, response HTTPResponse, err error) error
}

// Tracer returns tracer of the sender, if any.
func (r httpRequest) Tracer() trace.Tracer {
	if v, ok := r.sender.(withTracer); ok {
		return v.Tracer()
	}
	return nil
}

func (r httpRequest) Method() string {
	if r.method == "" {
		panic(fmt.Errorf("request method is not set"))
	}
	return r.method
}

func (r httpRequest) URL() *url.URL {
	if r.url == nil {
		panic(fmt.Errorf("request url is not set"))
	}
	if r.baseURL == nil || r.url.IsAbs() {
		clone := *r.url
		return &clone
	}

	// The base URL ends with a slash, the leading slash would replace its path
	rel := *r.url
	rel.Path = strings.TrimLeft(rel.Path, "/")
	rel.RawPath = strings.TrimLeft(rel.RawPath, "/")
	return r.baseURL.ResolveReference(&rel)
}

func (r httpRequest) RequestHeader() http.Header { return r.header }

func (r httpRequest) QueryParams() url.Values { return r.queryParams }

func (r httpRequest) PathParams() map[string]string { return r.pathParams }

func (r httpRequest) RequestBody() any { return r.body }

func (r httpRequest) ErrorDef() error { return r.errorDef }

func (r httpRequest) ResultDef() any { return r.resultDef }

func (r httpRequest) WithGet(url string) HTTPRequest { return r.withMethodURL(http.MethodGet, url) }

func (r httpRequest) WithHead(url string) HTTPRequest { return r.withMethodURL(http.MethodHead, url) }

func (r httpRequest) WithPost(url string) HTTPRequest { return r.withMethodURL(http.MethodPost, url) }

func (r httpRequest) WithPut(url string) HTTPRequest { return r.withMethodURL(http.MethodPut, url) }

func (r httpRequest) WithPatch(url string) HTTPRequest { return r.withMethodURL(http.MethodPatch, url) }

func (r httpRequest) WithDelete(url string) HTTPRequest {
	return r.withMethodURL(http.MethodDelete, url)
}

func (r httpRequest) withMethodURL(method, urlStr string) HTTPRequest {
	r.method = method
	r.url = mustParseURL("url", urlStr)
	return r
}

func (r httpRequest) WithMethod(method string) HTTPRequest {
	r.method = strings.ToUpper(method)
	return r
}

func (r httpRequest) WithURL(urlStr string) HTTPRequest {
	r.url = mustParseURL("url", urlStr)
	return r
}

func (r httpRequest) WithURI(uri *url.URL) HTTPRequest {
	if uri == nil {
		panic(fmt.Errorf("uri cannot be nil"))
	}
	clone := *uri
	r.url = &clone
	return r
}

func (r httpRequest) WithBaseURL(baseURL string) HTTPRequest {
	base := mustParseURL("base url", baseURL)
	// ResolveReference replaces the last path segment, if there is no trailing slash
	base.Path = strings.TrimRight(base.Path, "/") + "/"
	base.RawPath = ""
	r.baseURL = base
	return r
}

func (r httpRequest) AndHeader(header string, value string) HTTPRequest {
	r.header = r.header.Clone()
	r.header.Set(header, value)
	return r
}

func (r httpRequest) AndQueryParam(key, value string) HTTPRequest {
	params := make(url.Values, len(r.queryParams)+1)
	for k, values := range r.queryParams {
		params[k] = append([]string(nil), values...)
	}
	params.Set(key, value)
	r.queryParams = params
	return r
}

func (r httpRequest) WithQueryParams(params map[string]string) HTTPRequest {
	r.queryParams = make(url.Values, len(params))
	for k, v := range params {
		r.queryParams.Set(k, v)
	}
	return r
}

func (r httpRequest) AndPathParam(key, value string) HTTPRequest {
	params := make(map[string]string, len(r.pathParams)+1)
	maps.Copy(params, r.pathParams)
	params[key] = value
	r.pathParams = params
	return r
}

func (r httpRequest) WithPathParams(params map[string]string) HTTPRequest {
	r.pathParams = maps.Clone(params)
	if r.pathParams == nil {
		r.pathParams = make(map[string]string)
	}
	return r
}

func (r httpRequest) WithFormBody(form map[string]string) HTTPRequest {
	r.body = EncodeForm(form)
	return r.WithContentType(ContentTypeForm)
}

func (r httpRequest) WithJSONBody(body any) HTTPRequest {
	r.body = body
	return r.WithContentType(ContentTypeJSON)
}

func (r httpRequest) WithBody(body any) HTTPRequest {
	r.body = body
	return r
}

func (r httpRequest) WithContentType(contentType string) HTTPRequest {
	return r.AndHeader("Content-Type", contentType)
}

func (r httpRequest) WithError(err error) HTTPRequest {
	if reflect.ValueOf(err).Kind() != reflect.Ptr {
		panic(fmt.Errorf(`error must be defined by a pointer`))
	}
	r.errorDef = err
	return r
}

func (r httpRequest) WithResult(result any) HTTPRequest {
	_, isWriter := result.(io.Writer)
	if !isWriter && reflect.ValueOf(result).Kind() != reflect.Ptr {
		panic(fmt.Errorf(`result must be defined by a pointer or an io.Writer`))
	}
	r.resultDef = result
	return r
}

func (r httpRequest) WithOnComplete(fn func(ctx context.Context, response HTTPResponse, err error) error) HTTPRequest {
	r.listeners = appendClone(r.listeners, fn)
	return r
}

func (r httpRequest) WithOnSuccess(fn func(ctx context.Context, response HTTPResponse) error) HTTPRequest {
	return r.WithOnComplete(func(ctx context.Context, response HTTPResponse, err error) error {
		if err != nil {
			return err
		}
		return fn(ctx, response)
	})
}

func (r httpRequest) WithOnError(fn func(ctx context.Context, response HTTPResponse, err error) error) HTTPRequest {
	return r.WithOnComplete(func(ctx context.Context, response HTTPResponse, err error) error {
		if err == nil {
			return nil
		}
		return fn(ctx, response, err)
	})
}

func (r httpRequest) Send(ctx context.Context) (HTTPResponse, any, error) {
	if r.sender == nil {
		panic(fmt.Errorf("request sender is not set"))
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	rawResponse, result, err := r.sender.Send(ctx, r)
	res := &httpResponse{httpRequest: r, rawResponse: rawResponse, result: result, err: err}
	for _, fn := range r.listeners {
		// A listener is not invoked after cancellation
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		res.err = fn(ctx, res, res.err)
	}
	return res, res.result, res.err
}

func (r httpRequest) SendOrErr(ctx context.Context) error {
	_, _, err := r.Send(ctx)
	return err
}

func mustParseURL(kind, str string) *url.URL {
	v, err := url.Parse(str)
	if err != nil {
		panic(fmt.Errorf(`%s "%s" is not valid: %w`, kind, str, err))
	}
	return v
}
