// Package objstore is the single object storage edge of the pipeline.
// Both the provisioning snapshot and the durable state records live
// behind it.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/opsrun-io/opsrun/internal/config"
)

// ErrNotExist is returned by Get when the object is absent. Callers
// distinguish "not provisioned yet" from real read failures with it.
var ErrNotExist = errors.New("object does not exist")

// Store is the minimal read/write surface the pipeline needs. The
// production implementation is Client; tests substitute an in-memory map.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
}

// s3API is the subset of the S3 client used here.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client talks to an S3-compatible object store. For scope "oci" the
// client is pointed at the OCI S3-compatibility endpoint, which is
// where the namespace identifier from the environment contract is
// consumed.
type Client struct {
	api    s3API
	bucket string
}

// New builds a Client for the configured bucket. OCI object storage is
// reached through https://{namespace}.compat.objectstorage.{region}.oraclecloud.com
// with path-style addressing; any other scope uses the default AWS
// endpoint resolution.
func New(ctx context.Context, cfg config.Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BucketRegion))
	if err != nil {
		return nil, fmt.Errorf("unable to load object storage config: %w", err)
	}

	var optFns []func(*s3.Options)
	if cfg.Scope == "oci" {
		endpoint := OCICompatEndpoint(cfg.Namespace, cfg.BucketRegion)
		optFns = append(optFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &Client{
		api:    s3.NewFromConfig(awsCfg, optFns...),
		bucket: cfg.Bucket,
	}, nil
}

// OCICompatEndpoint returns the S3-compatibility endpoint for an OCI
// object storage namespace and region.
func OCICompatEndpoint(namespace, region string) string {
	return fmt.Sprintf("https://%s.compat.objectstorage.%s.oraclecloud.com", namespace, region)
}

// Get fetches an object. Absence is reported as ErrNotExist, never as a
// generic failure.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotExist, c.bucket, key)
		}
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", c.bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body for %s: %w", key, err)
	}
	return body, nil
}

// Put writes an object in full.
func (c *Client) Put(ctx context.Context, key string, body []byte) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to write s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// isNotFound covers the typed NoSuchKey error plus the looser variants
// some S3-compatible services return.
func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404")
}
