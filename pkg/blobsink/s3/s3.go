// Package s3 opens AWS S3 buckets for the blob sink.
package s3

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/relvacode/iso8601"
	"gocloud.dev/blob"
	"gocloud.dev/blob/s3blob"
)

const Provider = "aws"

// DefaultRegion is used if Params.Region is empty.
const DefaultRegion = "us-east-1"

//nolint:tagliatelle
type Credentials struct {
	AccessKeyID     string       `json:"AccessKeyId"`
	SecretAccessKey string       `json:"SecretAccessKey"`
	SessionToken    string       `json:"SessionToken"`
	Expiration      iso8601.Time `json:"Expiration"`
}

//nolint:tagliatelle
type Params struct {
	Bucket      string                       `json:"bucket"`
	Key         string                       `json:"key"`
	Region      string                       `json:"region"`
	Credentials Credentials                  `json:"credentials"`
	ACL         s3types.ObjectCannedACL      `json:"acl"`
	Encryption  s3types.ServerSideEncryption `json:"x-amz-server-side-encryption"`
}

// URL returns the gocloud URL of the object.
func (p *Params) URL() string {
	return fmt.Sprintf("s3://%s/%s?region=%s", p.Bucket, p.Key, p.region())
}

func (p *Params) region() string {
	if p.Region == "" {
		return DefaultRegion
	}
	return p.Region
}

// OpenBucket opens the bucket using the static credentials.
// If the transport is nil, the default AWS HTTP client is used.
func OpenBucket(ctx context.Context, params *Params, transport http.RoundTripper) (*blob.Bucket, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.region()),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.Credentials.AccessKeyID,
			params.Credentials.SecretAccessKey,
			params.Credentials.SessionToken,
		)),
	}
	if transport != nil {
		opts = append(opts, config.WithHTTPClient(&http.Client{Transport: transport}))
	}

	var cfg aws.Config
	var err error
	if cfg, err = config.LoadDefaultConfig(ctx, opts...); err != nil {
		return nil, err
	}

	return s3blob.OpenBucketV2(ctx, s3.NewFromConfig(cfg), params.Bucket, nil)
}

// WriterOptions sets the object ACL and encryption.
func WriterOptions(params *Params) *blob.WriterOptions {
	return &blob.WriterOptions{
		BeforeWrite: func(as func(any) bool) error {
			var req *s3.PutObjectInput
			if as(&req) {
				req.ACL = params.ACL
				req.ServerSideEncryption = params.Encryption
			}
			return nil
		},
		// 5MB is the minimum part size of a multipart upload
		BufferSize: int(s3manager.MinUploadPartSize),
	}
}
