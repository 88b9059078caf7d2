package otel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/go-httpext/pkg/request"
)

// attrSet splits attributes by usage, metric attributes must have a low cardinality.
type attrSet struct {
	metric []attribute.KeyValue // span and metrics
	span   []attribute.KeyValue // span only
}

func (s attrSet) all() []attribute.KeyValue {
	return slices.Concat(s.metric, s.span)
}

// definitionAttrs describes the request definition, before path params and the base URL are applied by the client.
func definitionAttrs(cfg config, reqDef request.HTTPRequest) (attrSet, *url.URL) {
	defURL := cfg.redactURL(reqDef.URL())
	resultType := ""
	if t := reflect.TypeOf(reqDef.ResultDef()); t != nil {
		resultType = t.String()
	}

	var out attrSet
	out.metric = []attribute.KeyValue{
		attribute.String("definition.method", reqDef.Method()),
		attribute.String("definition.result.type", resultType),
		attribute.String("definition.url.full", pathUnescape(defURL.String())),
		attribute.String("definition.url.path", pathUnescape(defURL.Path)),
		attribute.String("definition.url.host.full", defURL.Host),
	}
	// Service name is usually the first part of the host
	if prefix, suffix, found := strings.Cut(defURL.Host, "."); found && prefix != "" {
		out.metric = append(out.metric,
			attribute.String("definition.url.host.prefix", prefix),
			attribute.String("definition.url.host.suffix", suffix),
		)
	}

	out.span = cfg.headerAttrs("definition.header.", reqDef.RequestHeader())
	query := reqDef.QueryParams()
	for _, k := range sortedKeys(query) {
		value := cfg.redactedQuery.mask(k, strings.Join(query[k], ";"))
		out.span = append(out.span, attribute.String("definition.params.query."+k, value))
	}
	path := reqDef.PathParams()
	for _, k := range sortedKeys(path) {
		out.span = append(out.span, attribute.String("definition.params.path."+k, cfg.redactedPath.mask(k, path[k])))
	}
	return out, defURL
}

// requestAttrs describes one sent HTTP request, a redirect or a retry attempt.
func requestAttrs(cfg config, req *http.Request) (attrSet, *url.URL) {
	reqURL := cfg.redactURL(req.URL)

	var out attrSet
	out.metric = []attribute.KeyValue{
		attribute.String("http.request.method", req.Method),
		attribute.String("server.address", req.URL.Hostname()),
		attribute.String("url.scheme", req.URL.Scheme),
	}
	if port := req.URL.Port(); port != "" {
		out.metric = append(out.metric, attribute.String("server.port", port))
	}
	out.span = append([]attribute.KeyValue{
		attribute.String("url.full", reqURL.String()),
		attribute.String("user_agent.original", req.UserAgent()),
	}, cfg.headerAttrs("http.header.", req.Header)...)
	return out, reqURL
}

// responseAttrs describes the response, res is nil on a network error.
func responseAttrs(cfg config, res *http.Response) attrSet {
	if res == nil {
		return attrSet{}
	}
	return attrSet{
		metric: []attribute.KeyValue{attribute.Int("http.response.status_code", res.StatusCode)},
		span:   cfg.headerAttrs("http.response.header.", res.Header),
	}
}

// errorAttrs classifies the result of a sent HTTP request for metrics.
func errorAttrs(res *http.Response, err error) []attribute.KeyValue {
	var netErr net.Error
	isNetErr := errors.As(err, &netErr)
	return []attribute.KeyValue{
		attribute.Bool("http.response.isSuccess", isSuccess(res, err)),
		attribute.Bool("http.response.isRedirection", isRedirection(res)),
		attribute.Bool("http.response.error.has", err != nil),
		attribute.Bool("http.response.error.net", isNetErr),
		attribute.Bool("http.response.error.timeout", isNetErr && netErr.Timeout()),
		attribute.Bool("http.response.error.cancelled", errors.Is(err, context.Canceled)),
		attribute.Bool("http.response.error.deadline_exceeded", errors.Is(err, context.DeadlineExceeded)),
	}
}

func (c config) headerAttrs(prefix string, header http.Header) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(header))
	for _, key := range sortedKeys(header) {
		name := strings.ToLower(key)
		if name == "user-agent" {
			// See "user_agent.original"
			continue
		}
		attrs = append(attrs, attribute.String(prefix+name, c.redactedHeader.mask(name, strings.Join(header[key], ";"))))
	}
	return attrs
}

// redactURL returns a copy without user info and with masked query parameters.
func (c config) redactURL(in *url.URL) *url.URL {
	out := *in
	out.User = nil
	if out.RawQuery == "" || len(c.redactedQuery) == 0 {
		return &out
	}
	query := out.Query()
	for k := range query {
		if c.redactedQuery.has(k) {
			query.Set(k, maskedValue)
		}
	}
	out.RawQuery = query.Encode()
	return &out
}

func isSuccess(res *http.Response, err error) bool {
	return err == nil && res != nil && res.StatusCode < http.StatusBadRequest
}

func isRedirection(res *http.Response) bool {
	return res != nil && res.StatusCode/100 == 3
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func pathUnescape(in string) string {
	if out, err := url.PathUnescape(in); err == nil {
		return out
	}
	return in
}
