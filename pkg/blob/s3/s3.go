// Package s3 implements the blob uploader on S3-compatible object storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/cloudspool/cloudspool/internal/logger"
	"github.com/cloudspool/cloudspool/pkg/blob"
)

// Config holds configuration for the S3 blob uploader.
type Config struct {
	// Region is the AWS region (optional, SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for MinIO/Localstack).
	Endpoint string

	// AccessKeyID and SecretAccessKey override the SDK credential chain
	// when both are set.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style addressing (required for MinIO).
	ForcePathStyle bool
}

// Uploader is an S3 implementation of blob.Uploader. Containers map to
// buckets, which must already exist.
type Uploader struct {
	client *s3.Client
}

var _ blob.Uploader = (*Uploader)(nil)

// New creates an S3 uploader with an existing client.
func New(client *s3.Client) *Uploader {
	return &Uploader{client: client}
}

// NewFromConfig creates an S3 uploader by building a client from config.
func NewFromConfig(ctx context.Context, cfg Config) (*Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...)), nil
}

// Upload streams the local file to bucket container under objectName.
// PutObject with a seekable file body streams without buffering the whole
// file; an existing object of the same key is overwritten.
func (u *Uploader) Upload(ctx context.Context, localPath, container, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return blob.Permanent(fmt.Errorf("open %s: %w", localPath, err))
	}
	defer f.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(objectName),
		Body:   f,
	})
	if err != nil {
		return classify(fmt.Errorf("s3 put object %s/%s: %w", container, objectName, err))
	}
	return nil
}

// ListContainers returns the bucket names visible to the credentials.
func (u *Uploader) ListContainers(ctx context.Context) ([]string, error) {
	resp, err := u.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, classify(fmt.Errorf("s3 list buckets: %w", err))
	}
	names := make([]string, 0, len(resp.Buckets))
	for _, b := range resp.Buckets {
		if b.Name != nil {
			names = append(names, *b.Name)
		}
	}
	return names, nil
}

// Probe verifies the endpoint is reachable with the configured credentials.
func (u *Uploader) Probe(ctx context.Context) error {
	if _, err := u.client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		return classify(fmt.Errorf("probe s3 endpoint: %w", err))
	}
	logger.Debug("S3 endpoint reachable")
	return nil
}

// classify maps S3 SDK errors onto the transient/permanent taxonomy using
// the HTTP status of the response, when there is one.
func classify(err error) error {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		switch {
		case code == 408, code == 429, code >= 500:
			return blob.Transient(err)
		case code >= 400:
			return blob.Permanent(err)
		}
	}
	return blob.Transient(err)
}
