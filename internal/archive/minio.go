package archive

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"evalgo.org/dataflowmigrator/internal/domain"
)

// MinioConfig points at an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

// Validate checks the required connection fields.
func (c MinioConfig) Validate() error {
	switch {
	case c.Endpoint == "":
		return domain.NewValidationError("archive.minio.endpoint", "required")
	case c.Bucket == "":
		return domain.NewValidationError("archive.minio.bucket", "required")
	case c.AccessKey == "" || c.SecretKey == "":
		return domain.NewValidationError("archive.minio.access_key", "access and secret key are required")
	}
	return nil
}

// MinioSink writes documents as objects.
type MinioSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioSink connects and creates the bucket when it is missing.
func NewMinioSink(ctx context.Context, cfg MinioConfig) (*MinioSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("archive bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create archive bucket: %w", err)
		}
	}

	return &MinioSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put uploads data as a JSON object below the configured prefix.
func (s *MinioSink) Put(ctx context.Context, key string, data []byte) error {
	objectKey := path.Join(s.prefix, key)
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.bucket, objectKey, err)
	}
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
