// Package otel reports OpenTelemetry spans and metrics of requests sent by the client.Client.
//
// Each logical request, which may include redirects and retries, gets one "keboola.go.httpext.request" span.
// Its children are:
//   - "http.request" span for each sent HTTP request, with "http.dns", "http.getconn", "http.connect"
//     and "http.tls" children from the native httptrace hooks,
//   - "keboola.go.httpext.retry.delay" span for each wait before a retry,
//   - "keboola.go.httpext.request.body" span while the response body is read.
//
// Metrics are prefixed by "keboola.go.httpext.".
package otel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelMetric "go.opentelemetry.io/otel/metric"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/keboola/go-httpext/pkg/client/trace"
	"github.com/keboola/go-httpext/pkg/request"
)

// TraceAppName is the instrumentation name of the tracer and the meter.
const TraceAppName = "github.com/keboola/go-httpext"

const (
	metricPrefix      = "keboola.go.httpext."
	requestSpanName   = "keboola.go.httpext.request"
	bodySpanName      = "keboola.go.httpext.request.body"
	retrySpanName     = "keboola.go.httpext.retry.delay"
	httpSpanName      = "http.request"
	dnsSpanName       = "http.dns"
	getConnSpanName   = "http.getconn"
	connectSpanName   = "http.connect"
	tlsSpanName       = "http.tls"
	attrResourceName  = attribute.Key("resource.name")
	attrServerAddress = attribute.Key("server.address")
	attrRemoteAddr    = attribute.Key("http.remote")
	attrReadBytes     = attribute.Key("http.read_bytes")
)

// NewTrace returns a trace.Factory for client.Client.AndTrace, see also client.Client.WithTelemetry.
// A nil provider is replaced by the noop implementation.
func NewTrace(tracerProvider otelTrace.TracerProvider, meterProvider otelMetric.MeterProvider, opts ...Option) trace.Factory {
	if tracerProvider == nil {
		tracerProvider = noop.NewTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = metricNoop.NewMeterProvider()
	}
	t := &telemetry{
		config: newConfig(opts),
		tracer: tracerProvider.Tracer(TraceAppName),
		meters: newMeters(meterProvider.Meter(TraceAppName)),
	}
	return t.newRequest
}

type telemetry struct {
	config config
	tracer otelTrace.Tracer
	meters *meters
}

// requestTelemetry holds the state of one logical request, the hooks are called sequentially.
type requestTelemetry struct {
	*telemetry
	ctx     context.Context // context of the request span
	httpCtx context.Context // context of the current HTTP request span

	definition attrSet
	request    attrSet
	response   attrSet

	startedAt     time.Time
	httpStartedAt time.Time

	requestSpan otelTrace.Span
	httpSpan    otelTrace.Span
	retrySpan   otelTrace.Span
	bodySpan    otelTrace.Span
	dnsSpan     otelTrace.Span
	getConnSpan otelTrace.Span
	connectSpan otelTrace.Span
	tlsSpan     otelTrace.Span
}

func (t *telemetry) newRequest(ctx context.Context, reqDef request.HTTPRequest) (context.Context, *trace.ClientTrace) {
	definition, defURL := definitionAttrs(t.config, reqDef)
	r := &requestTelemetry{telemetry: t, definition: definition, startedAt: time.Now()}

	t.meters.inFlight.Add(ctx, 1, otelMetric.WithAttributes(definition.metric...))
	r.ctx, r.requestSpan = r.startSpan(ctx, requestSpanName, attrResourceName.String(defURL.Path))
	r.requestSpan.SetAttributes(definition.all()...)
	r.httpCtx = r.ctx

	tc := &trace.ClientTrace{
		HTTPRequestStart: r.httpRequestStart,
		HTTPRequestDone:  r.httpRequestDone,
		HTTPRequestRetry: r.httpRequestRetry,
		ResponseBodyDone: r.responseBodyDone,
		RequestProcessed: r.requestProcessed,
	}
	tc.DNSStart = func(info httptrace.DNSStartInfo) {
		r.dnsSpan = r.startChild(dnsSpanName, attrServerAddress.String(info.Host))
	}
	tc.DNSDone = func(info httptrace.DNSDoneInfo) {
		addrs := make([]string, 0, len(info.Addrs))
		for _, addr := range info.Addrs {
			addrs = append(addrs, addr.String())
		}
		if r.dnsSpan != nil {
			r.dnsSpan.SetAttributes(attribute.String("http.dns.addrs", strings.Join(addrs, ";")))
		}
		endSpan(&r.dnsSpan, info.Err)
	}
	tc.GetConn = func(host string) {
		r.getConnSpan = r.startChild(getConnSpanName, attrServerAddress.String(host))
	}
	tc.GotConn = func(info httptrace.GotConnInfo) {
		if r.getConnSpan == nil {
			return
		}
		if info.Conn != nil {
			r.getConnSpan.SetAttributes(attrRemoteAddr.String(info.Conn.RemoteAddr().String()), attribute.String("http.local", info.Conn.LocalAddr().String()))
		}
		r.getConnSpan.SetAttributes(attribute.Bool("http.conn.reused", info.Reused), attribute.Bool("http.conn.wasidle", info.WasIdle))
		if info.WasIdle {
			r.getConnSpan.SetAttributes(attribute.String("http.conn.idletime", info.IdleTime.String()))
		}
		endSpan(&r.getConnSpan, nil)
	}
	tc.ConnectStart = func(network, addr string) {
		r.connectSpan = r.startChild(connectSpanName, attrRemoteAddr.String(addr), attribute.String("http.conn.network", network))
	}
	tc.ConnectDone = func(_, _ string, err error) {
		endSpan(&r.connectSpan, err)
	}
	// TLS hooks are not called if the http2.Transport is used directly
	tc.TLSHandshakeStart = func() {
		r.tlsSpan = r.startChild(tlsSpanName)
	}
	tc.TLSHandshakeDone = func(_ tls.ConnectionState, err error) {
		endSpan(&r.tlsSpan, err)
	}
	return r.ctx, tc
}

func (r *requestTelemetry) httpRequestStart(req *http.Request) {
	endSpan(&r.retrySpan, nil)
	endSpan(&r.httpSpan, nil) // previous redirect

	r.httpStartedAt = time.Now()
	r.httpCtx, r.httpSpan = r.startSpan(r.ctx, httpSpanName)
	if r.config.propagators != nil {
		r.config.propagators.Inject(r.httpCtx, propagation.HeaderCarrier(req.Header))
	}

	// Attributes include the injected headers
	var reqURL *url.URL
	r.request, reqURL = requestAttrs(r.config, req)
	r.httpSpan.SetAttributes(attrResourceName.String(reqURL.Path))
	r.httpSpan.SetAttributes(r.request.all()...)
	r.meters.httpInFlight.Add(r.ctx, 1, otelMetric.WithAttributes(r.request.metric...))
}

func (r *requestTelemetry) httpRequestDone(res *http.Response, err error) {
	r.response = responseAttrs(r.config, res)
	r.meters.httpInFlight.Add(r.ctx, -1, otelMetric.WithAttributes(r.request.metric...))
	r.meters.httpDuration.Record(r.ctx, sinceMs(r.httpStartedAt),
		otelMetric.WithAttributes(r.request.metric...),
		otelMetric.WithAttributes(r.response.metric...),
		otelMetric.WithAttributes(errorAttrs(res, err)...),
	)

	if r.httpSpan == nil {
		return
	}
	r.httpSpan.SetAttributes(r.response.all()...)
	if err == nil && res != nil && res.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf(`HTTP status code: %d %s`, res.StatusCode, http.StatusText(res.StatusCode))
	}
	if err != nil || isRedirection(res) {
		endSpan(&r.httpSpan, err)
		return
	}

	// The span of a successful response ends when the body is read
	_, r.bodySpan = r.startSpan(r.httpCtx, bodySpanName)
}

func (r *requestTelemetry) httpRequestRetry(attempt int, delay time.Duration) {
	r.meters.retries.Add(r.ctx, 1, otelMetric.WithAttributes(r.definition.metric...))
	// The span ends when the next attempt starts or when the request fails during the delay
	attrs := slices.Concat(r.request.metric, r.response.metric, []attribute.KeyValue{
		attribute.Int("api.request.retry.attempt", attempt),
		attribute.Int64("api.request.retry.delay_ms", delay.Milliseconds()),
		attribute.String("api.request.retry.delay_string", delay.String()),
	})
	_, r.retrySpan = r.startSpan(r.ctx, retrySpanName, attrs...)
}

func (r *requestTelemetry) responseBodyDone(bytes int64, err error) {
	r.meters.bodyBytes.Add(r.ctx, bytes, otelMetric.WithAttributes(r.definition.metric...))
	for _, span := range []otelTrace.Span{r.bodySpan, r.httpSpan} {
		if span != nil {
			span.SetAttributes(attrReadBytes.Int64(bytes))
		}
	}
	endSpan(&r.bodySpan, err)
	endSpan(&r.httpSpan, nil)
}

func (r *requestTelemetry) requestProcessed(_ any, err error) {
	// The in-flight attributes must match the increment
	r.meters.inFlight.Add(r.ctx, -1, otelMetric.WithAttributes(r.definition.metric...))
	r.meters.duration.Record(r.ctx, sinceMs(r.startedAt),
		otelMetric.WithAttributes(r.definition.metric...),
		otelMetric.WithAttributes(r.response.metric...),
	)

	endSpan(&r.retrySpan, nil)
	endSpan(&r.bodySpan, nil)
	endSpan(&r.httpSpan, nil)
	r.requestSpan.SetAttributes(r.response.all()...)
	if err == nil {
		r.requestSpan.End()
		return
	}
	r.requestSpan.RecordError(err)
	r.requestSpan.SetStatus(codes.Error, err.Error())
	r.requestSpan.End(otelTrace.WithStackTrace(true))
}

func (r *requestTelemetry) startChild(name string, attrs ...attribute.KeyValue) otelTrace.Span {
	_, span := r.startSpan(r.httpCtx, name, attrs...)
	return span
}

// startSpan starts a client span, "span.kind" and "span.type" attributes are used by DataDog.
func (t *telemetry) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, otelTrace.Span) {
	return t.tracer.Start(ctx, name,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(attribute.String("span.kind", "client"), attribute.String("span.type", "http")),
		otelTrace.WithAttributes(attrs...),
	)
}

// endSpan ends the span, if any, and clears the reference.
func endSpan(span *otelTrace.Span, err error) {
	if *span == nil {
		return
	}
	if err != nil {
		(*span).RecordError(err)
		(*span).SetStatus(codes.Error, err.Error())
	}
	(*span).End()
	*span = nil
}

func sinceMs(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
