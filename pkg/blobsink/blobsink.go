// Package blobsink streams response bodies into cloud buckets.
//
// A Destination describes an object in AWS S3, Google Cloud Storage or Azure Blob Storage,
// together with temporary credentials. NewWriter returns an io.WriteCloser,
// so it can be used directly as a result of request.Load.
//
// OpenWriter opens any gocloud bucket URL, for example "file:///tmp/dir" or "mem://".
package blobsink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/relvacode/iso8601"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // register file:// scheme
	_ "gocloud.dev/blob/memblob"  // register mem:// scheme

	"github.com/keboola/go-httpext/pkg/blobsink/abs"
	"github.com/keboola/go-httpext/pkg/blobsink/gcs"
	"github.com/keboola/go-httpext/pkg/blobsink/s3"
)

// Destination of the body, only the params of the Provider are used.
type Destination struct {
	Provider string      `json:"provider"`
	S3       *s3.Params  `json:"s3Params,omitempty"`
	GCS      *gcs.Params `json:"gcsParams,omitempty"`
	ABS      *abs.Params `json:"absParams,omitempty"`
}

// URL returns the gocloud URL of the destination object.
func (d *Destination) URL() (string, error) {
	switch d.Provider {
	case s3.Provider:
		if d.S3 != nil {
			return d.S3.URL(), nil
		}
	case gcs.Provider:
		if d.GCS != nil {
			return d.GCS.URL(), nil
		}
	case abs.Provider:
		if d.ABS != nil {
			return d.ABS.URL(), nil
		}
	default:
		return "", fmt.Errorf(`unsupported provider "%s"`, d.Provider)
	}
	return "", fmt.Errorf(`params for provider "%s" are not set`, d.Provider)
}

// Writer writes to a blob, Close flushes the blob and closes the bucket.
type Writer struct {
	*blob.Writer
	bucket *blob.Bucket
}

func (w *Writer) Close() error {
	errs := &multierror.Error{}
	if err := w.Writer.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("cannot close blob writer: %w", err))
	}
	if err := w.bucket.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("cannot close bucket: %w", err))
	}
	if len(errs.Errors) == 1 {
		return errs.Errors[0]
	}
	return errs.ErrorOrNil()
}

var _ io.WriteCloser = (*Writer)(nil)

type config struct {
	transport http.RoundTripper
	now       func() time.Time
}

type Option func(c *config)

// WithTransport sets the HTTP transport used by the cloud SDK.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.transport = transport
	}
}

// WithNow sets the clock used to check credentials expiration.
func WithNow(fn func() time.Time) Option {
	return func(c *config) {
		c.now = fn
	}
}

// NewWriter opens the bucket given by the destination provider and returns a writer of the object.
func NewWriter(ctx context.Context, dest *Destination, opts ...Option) (*Writer, error) {
	c := config{now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}

	if dest == nil {
		return nil, fmt.Errorf("destination is not set")
	}
	if _, err := dest.URL(); err != nil {
		return nil, err
	}

	var b *blob.Bucket
	var key string
	var writerOpts *blob.WriterOptions
	var err error
	switch dest.Provider {
	case s3.Provider:
		if err := checkExpiration(dest.S3.Credentials.Expiration, c.now()); err != nil {
			return nil, err
		}
		key, writerOpts = dest.S3.Key, s3.WriterOptions(dest.S3)
		b, err = s3.OpenBucket(ctx, dest.S3, c.transport)
	case gcs.Provider:
		key = dest.GCS.Key
		b, err = gcs.OpenBucket(ctx, dest.GCS, c.transport)
	case abs.Provider:
		if err := checkExpiration(dest.ABS.Credentials.Expiration, c.now()); err != nil {
			return nil, err
		}
		key = dest.ABS.BlobName
		b, err = abs.OpenBucket(ctx, dest.ABS, c.transport)
	}
	if err != nil {
		return nil, fmt.Errorf(`cannot open bucket: %w`, err)
	}

	return newWriter(ctx, b, key, writerOpts)
}

// OpenWriter opens the gocloud bucket URL and returns a writer of the key.
func OpenWriter(ctx context.Context, bucketURL, key string) (*Writer, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf(`cannot open bucket "%s": %w`, bucketURL, err)
	}
	return newWriter(ctx, b, key, nil)
}

func newWriter(ctx context.Context, b *blob.Bucket, key string, opts *blob.WriterOptions) (*Writer, error) {
	bw, err := b.NewWriter(ctx, key, opts)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf(`opening blob "%s" failed: %w`, key, err)
	}
	return &Writer{Writer: bw, bucket: b}, nil
}

func checkExpiration(expiration iso8601.Time, now time.Time) error {
	if !expiration.IsZero() && !now.Before(expiration.Time) {
		return fmt.Errorf(`credentials expired at "%s"`, expiration.UTC().Format(time.RFC3339))
	}
	return nil
}
