// Package decode wraps a response body with a decoder of the Content-Encoding.
package decode

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// Decode returns a reader of the decoded body for "gzip" and "br", any other encoding is returned as is.
func Decode(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	if strings.EqualFold(contentEncoding, "br") {
		return io.NopCloser(brotli.NewReader(body)), nil
	}
	if !strings.EqualFold(contentEncoding, "gzip") {
		return body, nil
	}
	reader, err := gzip.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("cannot decode gzip: %w", err)
	}
	return reader, nil
}
