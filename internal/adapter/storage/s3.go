package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appconfig "github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/domain"
)

type S3Storage struct {
	client   *s3.Client
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3 creates a new S3Storage instance using AWS SDK v2. Without static
// keys the default credential chain is used.
func NewS3(ctx context.Context, cfg *appconfig.S3Config) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:   client,
		uploader: s3manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

func (s *S3Storage) Name() string {
	return "s3"
}

// Upload stores the file under the first free key derived from remotePath.
// S3 has no conditional rename, so a concurrent writer can still win the
// race between the probe and the put.
func (s *S3Storage) Upload(ctx context.Context, localPath string, remotePath string) (domain.RemoteEntry, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "open", localPath, err)
	}
	defer file.Close()

	target, err := freeName(ctx, remotePath, s.exists)
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "probe", remotePath, err)
	}
	key := objectKey(target)

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	}); err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "put", target, err)
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return domain.RemoteEntry{}, domain.NewOpError(domain.ErrUpload, "head", target, err)
	}

	return domain.RemoteEntry{Name: path.Base(key), ModifiedAt: aws.ToTime(head.LastModified)}, nil
}

func (s *S3Storage) exists(ctx context.Context, remotePath string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(remotePath)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, err
}

// List returns the objects directly under dir, across every page.
func (s *S3Storage) List(ctx context.Context, dir string) ([]domain.RemoteEntry, error) {
	prefix := objectPrefix(dir)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var objects []types.Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, domain.NewOpError(domain.ErrList, "list objects", dir, err)
		}
		objects = append(objects, page.Contents...)
	}

	entries, err := s3Entries(prefix, objects)
	if err != nil {
		return nil, domain.NewOpError(domain.ErrList, "parse listing", dir, err)
	}
	return entries, nil
}

func (s *S3Storage) Delete(ctx context.Context, remotePath string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(remotePath)),
	}); err != nil {
		return domain.NewOpError(domain.ErrDelete, "delete object", remotePath, err)
	}
	return nil
}

func s3Entries(prefix string, objects []types.Object) ([]domain.RemoteEntry, error) {
	entries := make([]domain.RemoteEntry, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		if obj.LastModified == nil {
			return nil, fmt.Errorf("object %q has no LastModified", name)
		}
		entries = append(entries, domain.RemoteEntry{Name: name, ModifiedAt: *obj.LastModified})
	}
	return entries, nil
}

// objectKey maps a remote path to a bucket key; keys carry no leading slash.
func objectKey(remotePath string) string {
	return strings.TrimPrefix(path.Clean("/"+remotePath), "/")
}

func objectPrefix(dir string) string {
	key := objectKey(dir)
	if key == "" {
		return ""
	}
	return key + "/"
}
