package publish

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"inkday/internal/config"
	"inkday/internal/model"
)

// MinioMirror copies artifacts to an S3-compatible bucket.
type MinioMirror struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioMirror(cfg config.MirrorConfig) (*MinioMirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: init minio client: %w", err)
	}
	return &MinioMirror{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put uploads the artifact under prefix/name, overwriting the previous copy.
func (m *MinioMirror) Put(ctx context.Context, name string, a model.Artifact) error {
	key := path.Join(m.prefix, name)
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(a.Bytes), int64(len(a.Bytes)), minio.PutObjectOptions{
		ContentType:  "image/png",
		CacheControl: "no-store",
		UserMetadata: map[string]string{
			"fingerprint": a.Fingerprint,
			"produced-at": a.ProducedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("mirror: put %s/%s: %w", m.bucket, key, err)
	}
	return nil
}
