package request

import (
	"context"
	"net/http"
	"net/url"
)

// Load sends a GET request to the uri and waits for the response body.
//
// The body is mapped to the result, supported types are
// `*string`, `*[]byte`, `io.Writer`, `io.WriteCloser` (always closed, on an error too)
// and a pointer to a value for JSON responses.
// A response status >= 400 is returned as an error, its body is not mapped.
// The same result value is returned, so the function can be used as an expression.
func Load[R Result](ctx context.Context, sender Sender, uri *url.URL, result R) (R, error) {
	return LoadRequest(ctx, NewHTTPRequest(sender).WithMethod(http.MethodGet).WithURI(uri), result)
}

// LoadRequest sends the request and waits for the response body, see Load.
func LoadRequest[R Result](ctx context.Context, req HTTPRequest, result R) (R, error) {
	return NewAPIRequest(result, req.WithResult(result)).Send(ctx)
}

// LoadString sends a GET request to the uri and returns the response body as a string.
func LoadString(ctx context.Context, sender Sender, uri *url.URL) (string, error) {
	var out string
	_, err := Load(ctx, sender, uri, &out)
	return out, err
}

// LoadBytes sends a GET request to the uri and returns the response body as bytes.
func LoadBytes(ctx context.Context, sender Sender, uri *url.URL) ([]byte, error) {
	var out []byte
	_, err := Load(ctx, sender, uri, &out)
	return out, err
}
