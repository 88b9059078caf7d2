package request

import (
	"context"
	"fmt"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// APIRequestSpanName is the name of the span wrapping all requests of an APIRequest.
const APIRequestSpanName = "keboola.go.httpext.api.request"

// APIRequest with response mapped to the generic type R.
type APIRequest[R Result] interface {
	// WithBefore registers a callback invoked before the requests are sent.
	// If an error is returned, nothing is sent.
	WithBefore(func(ctx context.Context) error) APIRequest[R]
	// WithOnComplete registers a callback invoked when all requests are completed.
	// The returned error replaces the original one.
	WithOnComplete(func(ctx context.Context, result R, err error) error) APIRequest[R]
	// WithOnSuccess registers a callback invoked when all requests succeeded.
	WithOnSuccess(func(ctx context.Context, result R) error) APIRequest[R]
	// WithOnError registers a callback invoked when a request failed.
	WithOnError(func(ctx context.Context, err error) error) APIRequest[R]
	// Send sends the requests and returns the shared result.
	Send(ctx context.Context) (result R, err error)
	SendOrErr(ctx context.Context) error
}

// NewAPIRequest creates an API request with the result mapped to the R type.
// The requests are sent in parallel, all of them usually fill the same result value.
func NewAPIRequest[R Result](result R, requests ...Sendable) APIRequest[R] {
	if len(requests) == 0 {
		panic(fmt.Errorf("at least one request must be provided"))
	}
	return apiRequest[R]{requests: requests, result: result}
}

// NewNoOperationAPIRequest returns an APIRequest that sends nothing and returns the result.
func NewNoOperationAPIRequest[R Result](result R) APIRequest[R] {
	return apiRequest[R]{result: result}
}

type apiRequest[R Result] struct {
	result   R
	requests []Sendable
	before   []func(ctx context.Context) error
	after    []func(ctx context.Context, result R, err error) error
}

func (r apiRequest[R]) WithBefore(fn func(ctx context.Context) error) APIRequest[R] {
	r.before = appendClone(r.before, fn)
	return r
}

func (r apiRequest[R]) WithOnComplete(fn func(ctx context.Context, result R, err error) error) APIRequest[R] {
	r.after = appendClone(r.after, fn)
	return r
}

func (r apiRequest[R]) WithOnSuccess(fn func(ctx context.Context, result R) error) APIRequest[R] {
	return r.WithOnComplete(func(ctx context.Context, result R, err error) error {
		if err != nil {
			return err
		}
		return fn(ctx, result)
	})
}

func (r apiRequest[R]) WithOnError(fn func(ctx context.Context, err error) error) APIRequest[R] {
	return r.WithOnComplete(func(ctx context.Context, _ R, err error) error {
		if err == nil {
			return nil
		}
		return fn(ctx, err)
	})
}

func (r apiRequest[R]) Send(ctx context.Context) (R, error) {
	if tracer := r.tracer(); tracer != nil {
		var span trace.Span
		ctx, span = tracer.Start(ctx, APIRequestSpanName, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(r.attributes()...))
		err := r.send(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		return r.result, err
	}
	return r.result, r.send(ctx)
}

func (r apiRequest[R]) SendOrErr(ctx context.Context) error {
	_, err := r.Send(ctx)
	return err
}

func (r apiRequest[R]) send(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, fn := range r.before {
		if err := fn(ctx); err != nil {
			return err
		}
	}

	// A "before" listener may take a while
	if err := ctx.Err(); err != nil {
		return err
	}

	err := Parallel(r.requests...).SendOrErr(ctx)
	for _, fn := range r.after {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx, r.result, err)
	}
	return err
}

func (r apiRequest[R]) attributes() []attribute.KeyValue {
	resultType := ""
	if t := reflect.TypeOf(r.result); t != nil {
		resultType = t.String()
	}
	return []attribute.KeyValue{
		attribute.String("span.kind", "client"),
		attribute.String("span.type", "http"),
		attribute.Int("api.requests_count", len(r.requests)),
		attribute.String("api.result_type", resultType),
	}
}

// tracer returns the tracer of the first request, if it has one.
func (r apiRequest[R]) tracer() trace.Tracer {
	if len(r.requests) == 0 {
		return nil
	}
	if v, ok := r.requests[0].(withTracer); ok {
		return v.Tracer()
	}
	return nil
}

// appendClone appends to a copy of the slice, so the original request is not modified.
func appendClone[T any](s []T, v T) []T {
	out := make([]T, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}
