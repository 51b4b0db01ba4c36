// Package minio implements the object-store backend on MinIO.
package minio

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cfg "github.com/rmaraujo/fiscalflow/config"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

type Client struct {
	client     *minio.Client
	bucketName string
	log        logger.Logger
}

// NewClient connects to MinIO and ensures the archive bucket exists.
func NewClient(log logger.Logger) (*Client, error) {
	mc := cfg.GetMinioConfig()
	client, err := minio.New(mc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
		Secure: mc.UseSSL,
		Region: mc.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(context.Background(), mc.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", mc.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(context.Background(), mc.BucketName, minio.MakeBucketOptions{Region: mc.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", mc.BucketName, err)
		}
	}

	return &Client{client: client, bucketName: mc.BucketName, log: log.Named("minio")}, nil
}

func (c *Client) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	if _, err := c.client.PutObject(ctx, c.bucketName, key, reader, -1, minio.PutObjectOptions{}); err != nil {
		c.log.Error("store object failed",
			logger.String("bucket", c.bucketName),
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("store object %s: %w", key, err)
	}
	return key, nil
}

func (c *Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, c.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return obj, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.client.RemoveObject(ctx, c.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// CleanupBefore removes archived objects older than the threshold.
func (c *Client) CleanupBefore(ctx context.Context, threshold time.Time) error {
	for obj := range c.client.ListObjects(ctx, c.bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			c.log.Error("list objects failed",
				logger.String("bucket", c.bucketName),
				logger.Error(obj.Err),
			)
			continue
		}
		if !obj.LastModified.Before(threshold) {
			continue
		}
		if err := c.Delete(ctx, obj.Key); err != nil {
			c.log.Error("delete expired object failed",
				logger.String("key", obj.Key),
				logger.Error(err),
			)
			continue
		}
		c.log.Info("expired object deleted",
			logger.String("key", obj.Key),
			logger.Time("lastModified", obj.LastModified),
		)
	}
	return nil
}
