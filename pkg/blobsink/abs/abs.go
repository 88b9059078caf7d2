// Package abs opens Azure Blob Storage containers for the blob sink.
package abs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/relvacode/iso8601"
	"gocloud.dev/blob"
	"gocloud.dev/blob/azureblob"
)

const Provider = "azure"

type Credentials struct {
	SASConnectionString string       `json:"SASConnectionString"`
	Expiration          iso8601.Time `json:"expiration"`
}

type Params struct {
	AccountName string      `json:"accountName"`
	Container   string      `json:"container"`
	BlobName    string      `json:"blobName"`
	Credentials Credentials `json:"absCredentials"`
}

// URL returns the gocloud URL of the blob.
func (p *Params) URL() string {
	return fmt.Sprintf("azblob://%s/%s?storage_account=%s", p.Container, p.BlobName, p.AccountName)
}

// OpenBucket opens the container using the SAS connection string.
// If the transport is nil, the default Azure HTTP client is used.
func OpenBucket(ctx context.Context, params *Params, transport http.RoundTripper) (*blob.Bucket, error) {
	opts := &azblob.ClientOptions{}
	if transport != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: &http.Client{Transport: transport}}
	}

	client, err := azblob.NewClientFromConnectionString(params.Credentials.SASConnectionString, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot create azure client: %w", err)
	}

	return azureblob.OpenBucket(ctx, client.ServiceClient().NewContainerClient(params.Container), nil)
}
