package sink

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"PatentReporter/internal/config"
	"PatentReporter/internal/ports"
)

const markdownContentType = "text/markdown; charset=utf-8"

// MinioSink uploads reports to an S3-compatible bucket.
type MinioSink struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ ports.ReportSink = (*MinioSink)(nil)

// NewMinioSink creates the client; no request is made until EnsureBucket or Publish.
func NewMinioSink(cfg config.MinioConfig) (*MinioSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Name identifies the sink in logs.
func (s *MinioSink) Name() string {
	return "minio"
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioSink) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// ObjectName returns the key a run's report is stored under.
func (s *MinioSink) ObjectName(runID string) string {
	if s.prefix == "" {
		return ReportFileName(runID)
	}
	return path.Join(s.prefix, ReportFileName(runID))
}

// Publish uploads the report as a Markdown object.
func (s *MinioSink) Publish(ctx context.Context, runID, report string) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.ObjectName(runID), strings.NewReader(report), int64(len(report)),
		minio.PutObjectOptions{ContentType: markdownContentType})
	if err != nil {
		return fmt.Errorf("upload report: %w", err)
	}
	return nil
}
