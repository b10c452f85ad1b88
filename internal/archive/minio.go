// Package archive keeps the raw webhook bodies in S3-compatible object
// storage as an audit trail.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type MinIO struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinIO connects to the object store and creates the bucket if needed.
func NewMinIO(ctx context.Context, cfg Config) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinIO{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// Put stores body under a key derived from the repository, the current UTC
// date, and the delivery id, and returns that key.
func (m *MinIO) Put(ctx context.Context, repoFullName, deliveryID string, body []byte) (string, error) {
	key := ObjectKey(repoFullName, deliveryID, m.now())
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"repository":  repoFullName,
			"delivery-id": deliveryID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// Ping checks that the bucket is still reachable.
func (m *MinIO) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", m.bucket)
	}
	return nil
}

// ObjectKey returns <owner>/<repo>/<yyyy>/<mm>/<dd>/<delivery id>.json.
func ObjectKey(repoFullName, deliveryID string, at time.Time) string {
	repo := strings.Trim(strings.ReplaceAll(repoFullName, "..", ""), "/")
	if repo == "" {
		repo = "unknown"
	}
	id := strings.ReplaceAll(strings.ReplaceAll(deliveryID, "..", ""), "/", "_")
	if id == "" {
		id = fmt.Sprintf("%d", at.UnixNano())
	}
	return path.Join(repo, at.UTC().Format("2006/01/02"), id+".json")
}
