package otel

import (
	"strings"

	"go.opentelemetry.io/otel/propagation"
)

const maskedValue = "****"

// Option configures the telemetry created by NewTrace.
type Option func(*config)

type config struct {
	propagators    propagation.TextMapPropagator
	redactedPath   nameSet
	redactedQuery  nameSet
	redactedHeader nameSet
}

// nameSet is a case-insensitive set of names.
type nameSet map[string]struct{}

func newNameSet(names ...string) nameSet {
	s := make(nameSet, len(names))
	s.add(names...)
	return s
}

func (s nameSet) add(names ...string) {
	for _, name := range names {
		s[strings.ToLower(name)] = struct{}{}
	}
}

func (s nameSet) has(name string) bool {
	_, ok := s[strings.ToLower(name)]
	return ok
}

// mask returns the masked value, if the name is in the set.
func (s nameSet) mask(name, value string) string {
	if s.has(name) {
		return maskedValue
	}
	return value
}

// WithPropagators injects the trace context to headers of each sent request.
func WithPropagators(v propagation.TextMapPropagator) Option {
	return func(c *config) { c.propagators = v }
}

// WithRedactedPathParam masks values of the {placeholder} path parameters in attributes.
func WithRedactedPathParam(params ...string) Option {
	return func(c *config) { c.redactedPath.add(params...) }
}

// WithRedactedQueryParam masks values of the query parameters in attributes and URLs.
func WithRedactedQueryParam(params ...string) Option {
	return func(c *config) { c.redactedQuery.add(params...) }
}

// WithRedactedHeaders masks values of the headers in attributes.
// Authorization and cookie headers are always masked.
func WithRedactedHeaders(headers ...string) Option {
	return func(c *config) { c.redactedHeader.add(headers...) }
}

func newConfig(opts []Option) config {
	cfg := config{
		redactedPath:   newNameSet(),
		redactedQuery:  newNameSet(),
		redactedHeader: newNameSet("Authorization", "Proxy-Authorization", "WWW-Authenticate", "Proxy-Authenticate", "Cookie", "Set-Cookie"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
