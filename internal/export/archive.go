package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver stores a rendered export and returns the key it was stored under.
type Archiver interface {
	Store(ctx context.Context, sessionID string, result *Result) (string, error)
}

type ArchiveConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioArchiver keeps exports in an S3 compatible bucket.
type MinioArchiver struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

func NewMinioArchiver(cfg ArchiveConfig) (*MinioArchiver, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("archive endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioArchiver{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *MinioArchiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

func (a *MinioArchiver) Store(ctx context.Context, sessionID string, result *Result) (string, error) {
	key := archiveKey(sessionID, result.Filename, a.now())
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)),
		minio.PutObjectOptions{ContentType: result.MimeType})
	if err != nil {
		return "", fmt.Errorf("put export object: %w", err)
	}
	return key, nil
}

func archiveKey(sessionID, filename string, at time.Time) string {
	return path.Join("sessions", sessionID, at.UTC().Format("20060102T150405Z")+"-"+filename)
}
