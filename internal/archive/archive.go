// Package archive stores original upload bytes in S3-compatible object
// storage. Archival is an optional, best-effort side channel of the
// pipeline; it never fails a photo.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/config"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/logger"
)

// Client archives objects into one bucket under an optional prefix.
type Client struct {
	client *minio.Client
	cfg    config.ArchiveConfig
}

// New connects to the configured endpoint and verifies the bucket exists.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket name is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("archive access key and secret key are required")
	}

	endpoint := strings.TrimPrefix(cfg.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	logger.Info("Archive connected to %s, bucket %s", endpoint, cfg.Bucket)
	return &Client{client: client, cfg: cfg}, nil
}

// Store uploads one object.
func (c *Client) Store(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	objectKey = c.objectKey(objectKey)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := c.client.PutObject(ctx, c.cfg.Bucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to archive object: %w", err)
	}

	logger.Debug("Archived %s (%d bytes, etag: %s)", objectKey, info.Size, info.ETag)
	return nil
}

// Exists reports whether an object is already archived.
func (c *Client) Exists(ctx context.Context, objectKey string) (bool, error) {
	objectKey = c.objectKey(objectKey)

	_, err := c.client.StatObject(ctx, c.cfg.Bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

func (c *Client) objectKey(key string) string {
	if c.cfg.Prefix == "" {
		return key
	}
	return path.Join(strings.TrimSuffix(c.cfg.Prefix, "/"), strings.TrimPrefix(key, "/"))
}
