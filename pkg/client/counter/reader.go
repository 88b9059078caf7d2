// Package counter counts bytes read from a request or response body.
package counter

import (
	"errors"
	"io"
)

// OnClose receives the number of read bytes and the read error, or the close error if reading succeeded.
type OnClose func(bytes int64, err error)

// ReadCloser is an io.ReadCloser wrapper, it counts read bytes and reports them on Close.
type ReadCloser struct {
	io.ReadCloser
	onClose OnClose
	bytes   int64
	err     error // first read error other than io.EOF
}

// NewReadCloser wraps the body, onClose may be nil.
func NewReadCloser(body io.ReadCloser, onClose OnClose) *ReadCloser {
	return &ReadCloser{ReadCloser: body, onClose: onClose}
}

// Bytes returns number of bytes read so far.
func (r *ReadCloser) Bytes() int64 {
	return r.bytes
}

func (r *ReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.bytes += int64(n)
	if err != nil && r.err == nil && !errors.Is(err, io.EOF) {
		r.err = err
	}
	return n, err
}

func (r *ReadCloser) Close() error {
	err := r.ReadCloser.Close()
	if r.onClose != nil {
		reported := r.err
		if reported == nil {
			reported = err
		}
		r.onClose(r.bytes, reported)
	}
	return err
}
