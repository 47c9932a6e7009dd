// Package storage keeps generated export files in MinIO and hands out
// short-lived download links for them.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"callsubs-backend/pkg/config"
	"callsubs-backend/pkg/logger"
	"callsubs-backend/pkg/resilience"
)

// MinioClient wraps a MinIO bucket with the shared circuit breaker
type MinioClient struct {
	client  *minio.Client
	bucket  string
	breaker *resilience.Breaker
}

// NewMinioClient creates a client for cfg.Bucket. Setting a region skips
// the bucket location lookup, so presigning works without a round trip.
func NewMinioClient(cfg config.MinIOConfig, region string, breaker *resilience.Breaker) (*MinioClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	if breaker == nil {
		breaker = resilience.NewBreaker("minio", resilience.DefaultOptions())
	}

	return &MinioClient{
		client:  client,
		bucket:  cfg.Bucket,
		breaker: breaker,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet
func (c *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	logger.Info("Created export bucket", zap.String("bucket", c.bucket))
	return nil
}

// Upload stores data under objectName. The payload is held in memory so
// retries can resend it.
func (c *MinioClient) Upload(ctx context.Context, objectName string, data []byte, contentType string) error {
	return c.breaker.Execute(ctx, "put_object", func(ctx context.Context) error {
		_, err := c.client.PutObject(ctx, c.bucket, objectName, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		return err
	})
}

// PresignedDownloadURL returns a GET link valid for expiry. filename sets the
// name the browser saves the file as.
func (c *MinioClient) PresignedDownloadURL(ctx context.Context, objectName, filename string, expiry time.Duration) (string, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}

	u, err := c.client.PresignedGetObject(ctx, c.bucket, objectName, expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectName, err)
	}
	return u.String(), nil
}

// Delete removes an object; missing objects are not an error
func (c *MinioClient) Delete(ctx context.Context, objectName string) error {
	return c.breaker.Execute(ctx, "remove_object", func(ctx context.Context) error {
		return c.client.RemoveObject(ctx, c.bucket, objectName, minio.RemoveObjectOptions{})
	})
}
