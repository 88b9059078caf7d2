package otel

import otelMetric "go.opentelemetry.io/otel/metric"

type meters struct {
	// per logical request
	inFlight  otelMetric.Int64UpDownCounter
	duration  otelMetric.Float64Histogram
	retries   otelMetric.Int64Counter
	bodyBytes otelMetric.Int64Counter
	// per sent HTTP request
	httpInFlight otelMetric.Int64UpDownCounter
	httpDuration otelMetric.Float64Histogram
}

func newMeters(meter otelMetric.Meter) *meters {
	m := &meters{}
	m.inFlight = must(meter.Int64UpDownCounter(metricPrefix+"request.in_flight",
		otelMetric.WithDescription("Requests in progress, including retries.")))
	m.duration = must(meter.Float64Histogram(metricPrefix+"request.duration",
		otelMetric.WithDescription("Request duration, including retries and the body."), otelMetric.WithUnit("ms")))
	m.retries = must(meter.Int64Counter(metricPrefix+"request.retries",
		otelMetric.WithDescription("Retried attempts."), otelMetric.WithUnit("{retry}")))
	m.bodyBytes = must(meter.Int64Counter(metricPrefix+"response.body.size",
		otelMetric.WithDescription("Received response body bytes."), otelMetric.WithUnit("By")))
	m.httpInFlight = must(meter.Int64UpDownCounter(metricPrefix+"http.request.in_flight",
		otelMetric.WithDescription("Sent HTTP requests waiting for the response headers.")))
	m.httpDuration = must(meter.Float64Histogram(metricPrefix+"http.request.duration",
		otelMetric.WithDescription("Duration until the response headers are received."), otelMetric.WithUnit("ms")))
	return m
}

func must[T any](instrument T, err error) T {
	if err != nil {
		panic(err)
	}
	return instrument
}
