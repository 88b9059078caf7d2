// Package gcs opens Google Cloud Storage buckets for the blob sink.
package gcs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/googleapis/gax-go/v2"
	"gocloud.dev/blob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/gcp"
	"golang.org/x/oauth2"
)

const Provider = "gcp"

//nolint:tagliatelle
type Credentials struct {
	ProjectID   string `json:"projectId"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type Params struct {
	Bucket      string      `json:"bucket"`
	Key         string      `json:"key"`
	Credentials Credentials `json:"credentials"`
}

// URL returns the gocloud URL of the object.
func (p *Params) URL() string {
	return fmt.Sprintf("gs://%s/%s", p.Bucket, p.Key)
}

// OpenBucket opens the bucket authorized by the static OAuth2 token.
// Only idempotent operations are retried by the storage client.
// The default GCP transport is used if the transport is nil.
func OpenBucket(ctx context.Context, params *Params, transport http.RoundTripper) (*blob.Bucket, error) {
	if transport == nil {
		transport = gcp.DefaultTransport()
	}
	token := &oauth2.Token{AccessToken: params.Credentials.AccessToken, TokenType: params.Credentials.TokenType}
	httpClient, err := gcp.NewHTTPClient(transport, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, err
	}

	bucket, err := gcsblob.OpenBucket(ctx, httpClient, params.Bucket, nil)
	if err != nil {
		return nil, err
	}

	var storageClient *storage.Client
	if !bucket.As(&storageClient) {
		_ = bucket.Close()
		return nil, fmt.Errorf(`bucket "%s" is not backed by a storage.Client`, params.Bucket)
	}
	storageClient.SetRetry(storage.WithBackoff(retryBackoff), storage.WithPolicy(storage.RetryIdempotent))
	return bucket, nil
}

var retryBackoff = gax.Backoff{Initial: 100 * time.Millisecond, Max: 5 * time.Second, Multiplier: 2} //nolint:gochecknoglobals
