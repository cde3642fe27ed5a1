package storage

import (
	"bytes"
	"context"
	"docuvault/config"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const minioScheme = "minio://"

// MinioStore implements Store on a MinIO bucket. Locations look like
// minio://<bucket>/<dir>/<name>.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.Config) (*MinioStore, error) {
	client, err := minio.New(fmt.Sprintf("%s:%s", cfg.MinioHost, cfg.MinioPort), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioUsername, cfg.MinioPassword, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists { // 不需要人工去 minio 建立 bucket 直接后端进行操作
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.BucketName}, nil
}

func objectKey(dir, name string) string {
	return path.Join(strings.Trim(dir, "/"), name)
}

func (s *MinioStore) location(key string) string {
	return minioScheme + s.bucket + "/" + key
}

// parseMinioLocation splits minio://bucket/key.
func parseMinioLocation(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, minioScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, location)
	}
	return bucket, key, nil
}

// Put uploads an object to MinIO.
func (s *MinioStore) Put(ctx context.Context, dir, name string, data []byte, opts PutOptions) (string, error) {
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: file name %q", ErrInvalidPath, name)
	}
	key := objectKey(dir, name)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	if err != nil {
		return "", err
	}
	return s.location(key), nil
}

// Get fetches an object's bytes from MinIO.
func (s *MinioStore) Get(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := parseMinioLocation(location)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, key)
		}
		return nil, err
	}
	return data, nil
}

// RemoveAll deletes every object under dir.
func (s *MinioStore) RemoveAll(ctx context.Context, dir string) error {
	prefix := strings.Trim(dir, "/") + "/"
	objectsCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})

	var firstErr error
	for object := range objectsCh {
		if object.Err != nil {
			if firstErr == nil {
				firstErr = object.Err
			}
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
