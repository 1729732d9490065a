package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/domain"
)

// MinioStorage targets self-hosted S3-compatible servers.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

func NewMinio(cfg *config.MinioConfig) (*MinioStorage, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioStorage) Name() string {
	return "minio"
}

func (m *MinioStorage) Upload(ctx context.Context, localPath string, remotePath string) (domain.RemoteEntry, error) {
	target, err := freeName(ctx, remotePath, m.exists)
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "probe", remotePath, err)
	}
	key := objectKey(target)

	if _, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/x-tar",
	}); err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "put", target, err)
	}

	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "stat", target, err)
	}

	return domain.RemoteEntry{Name: path.Base(key), ModifiedAt: info.LastModified}, nil
}

func (m *MinioStorage) exists(ctx context.Context, remotePath string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, objectKey(remotePath), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

// List drains the listing channel; minio-go pages internally.
func (m *MinioStorage) List(ctx context.Context, dir string) ([]domain.RemoteEntry, error) {
	prefix := objectPrefix(dir)

	// Cancelling stops the lister goroutine when we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var entries []domain.RemoteEntry
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, domain.NewOpError(domain.ErrList, "list objects", dir, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		if obj.LastModified.IsZero() {
			return nil, domain.NewOpError(domain.ErrList, "parse listing", dir,
				fmt.Errorf("object %q has no LastModified", name))
		}
		entries = append(entries, domain.RemoteEntry{Name: name, ModifiedAt: obj.LastModified})
	}

	return entries, nil
}

func (m *MinioStorage) Delete(ctx context.Context, remotePath string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectKey(remotePath), minio.RemoveObjectOptions{}); err != nil {
		return domain.NewOpError(domain.ErrDelete, "remove object", remotePath, err)
	}
	return nil
}
