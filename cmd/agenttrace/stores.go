package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ravi-parthasarathy/agenttrace/pkg/artifact"
	"github.com/ravi-parthasarathy/agenttrace/pkg/config"
)

func localStore(dir string) *artifact.LocalStore {
	return artifact.NewLocalStore(dir)
}

func newS3Client(ctx context.Context, region string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// s3Store returns a store for bucket under the configured upload prefix.
func s3Store(ctx context.Context, cfg config.Config, bucket string) (*artifact.S3Store, error) {
	client, err := newS3Client(ctx, cfg.Agent.Region)
	if err != nil {
		return nil, err
	}
	return artifact.NewS3Store(client, bucket, artifact.WithS3Prefix(cfg.Storage.UploadPrefix)), nil
}

// uploadStore returns where attachments and generated diagrams go: GCS
// when a GCS bucket is configured, otherwise S3. The returned close
// function is never nil. A nil store means uploads are not configured.
func uploadStore(ctx context.Context, cfg config.Config) (artifact.Store, func() error, error) {
	noop := func() error { return nil }
	switch {
	case cfg.Storage.GCSBucket != "":
		s, err := artifact.NewGCSStore(ctx, cfg.Storage.GCSBucket, cfg.Storage.UploadPrefix)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case cfg.Storage.Bucket != "":
		s, err := s3Store(ctx, cfg, cfg.Storage.Bucket)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
	return nil, noop, nil
}
