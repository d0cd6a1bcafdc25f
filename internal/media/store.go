package media

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore writes objects into buckets.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	URL(bucket, key string) string
}

// MinioStore is an ObjectStore backed by MinIO or any S3 compatible service.
type MinioStore struct {
	client   *minio.Client
	endpoint *url.URL
}

// NewMinioStore connects to endpoint with static credentials
func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &MinioStore{client: client, endpoint: client.EndpointURL()}, nil
}

// PutObject implements ObjectStore
func (s *MinioStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

// URL implements ObjectStore. Objects are addressed path-style.
func (s *MinioStore) URL(bucket, key string) string {
	return s.endpoint.JoinPath(bucket, key).String()
}
