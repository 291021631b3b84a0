// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package reporter // import "go.opentelemetry.io/gpu-range-profiler/reporter"

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
)

// ObjectPutter stores objects. *s3.Client satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput,
		optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Compile time check for interface adherence
var _ ObjectPutter = (*s3.Client)(nil)

// S3Uploader copies a finished report into a bucket.
type S3Uploader struct {
	client ObjectPutter
	bucket string
	key    string
}

// NewS3Uploader returns an uploader writing to bucket/key.
func NewS3Uploader(client ObjectPutter, bucket, key string) (*S3Uploader, error) {
	if client == nil {
		return nil, errors.New("nil object store client")
	}
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("bucket %q and key %q must both be set", bucket, key)
	}
	return &S3Uploader{client: client, bucket: bucket, key: key}, nil
}

// NewS3Client builds a client from the default AWS configuration chain. A non-empty
// endpoint selects an S3 compatible store with path style addressing.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if region != "" {
			o.Region = region
		}
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Upload sends the file at path.
func (u *S3Uploader) Upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	if _, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(u.key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	}); err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", path, u.bucket, u.key, err)
	}
	log.Infof("Uploaded report to s3://%s/%s", u.bucket, u.key)
	return nil
}
