// Package trace extends the httptrace.ClientTrace and adds additional HTTPRequest hooks.
// A custom ClientTrace definition can be registered in the client.Client by the AndTrace method.
//
// LogTracer, DumpTracer and ZapTracer are ready-made factories for debugging and structured logs.
package trace

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"reflect"
	"time"

	"github.com/keboola/go-httpext/pkg/request"
)

// Factory creates ClientTrace hooks for a request.
// The returned context is used for the request, so the factory can attach values to it, for example a span.
type Factory func(ctx context.Context, request request.HTTPRequest) (context.Context, *ClientTrace)

// ClientTrace is a set of hooks to run at various stages of an outgoing HTTPRequest.
type ClientTrace struct {
	httptrace.ClientTrace // native, low level trace
	// HTTPRequestStart is called when the request begins. It includes redirects and retries.
	HTTPRequestStart func(request *http.Request)
	// HTTPRequestDone is called when the request completes. It includes redirects and retries.
	HTTPRequestDone func(response *http.Response, err error)
	// HTTPRequestRetry is called before retry delay.
	HTTPRequestRetry func(attempt int, delay time.Duration)
	// ResponseBodyDone is called when the response body is read and closed.
	ResponseBodyDone func(bytes int64, err error)
	// RequestProcessed is called when Client.Send method is done.
	RequestProcessed func(result any, err error)
}

// Compose chains hooks of the old trace before the hooks of t, including the native httptrace hooks.
func (t *ClientTrace) Compose(old *ClientTrace) {
	if old == nil {
		return
	}
	composeHooks(reflect.ValueOf(&t.ClientTrace).Elem(), reflect.ValueOf(&old.ClientTrace).Elem())
	composeHooks(reflect.ValueOf(t).Elem(), reflect.ValueOf(old).Elem())
}

// composeHooks chains function fields of two structs of the same type.
func composeHooks(dst, old reflect.Value) {
	for i := range dst.NumField() {
		d, o := dst.Field(i), old.Field(i)
		if d.Kind() != reflect.Func || o.IsNil() {
			continue
		}
		if d.IsNil() {
			d.Set(o)
			continue
		}
		// Capture the current value, d is overwritten below
		first, second := o, reflect.ValueOf(d.Interface())
		d.Set(reflect.MakeFunc(d.Type(), func(args []reflect.Value) []reflect.Value {
			first.Call(args)
			return second.Call(args)
		}))
	}
}
