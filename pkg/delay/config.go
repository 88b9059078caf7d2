package delay

import (
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

type config struct {
	logger *zap.Logger
	tracer otelTrace.Tracer
}

// Option configures Execute and ExecuteSeq.
type Option func(*config)

// WithLogger enables debug logging of actions and delays.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracerProvider enables tracing of the iteration and of each delay.
func WithTracerProvider(tp otelTrace.TracerProvider) Option {
	return func(c *config) {
		if tp != nil {
			c.tracer = tp.Tracer(traceAppName)
		}
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		logger: zap.NewNop(),
		tracer: noop.NewTracerProvider().Tracer(traceAppName),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
