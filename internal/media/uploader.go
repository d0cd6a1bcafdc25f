// Package media stores uploaded images in object storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
)

// ErrNoBucket is returned when none of the candidate buckets exists.
var ErrNoBucket = errors.New("no storage bucket available")

// IsMissingBucket reports whether err means the bucket does not exist.
func IsMissingBucket(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchBucket"
	}
	return false
}

// Object is a stored upload.
type Object struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	URL    string `json:"url"`
}

// Uploader writes to the first bucket of its candidate list that exists.
type Uploader struct {
	store   ObjectStore
	buckets []string
}

// NewUploader creates an uploader over buckets, tried in order.
func NewUploader(store ObjectStore, buckets []string) *Uploader {
	return &Uploader{store: store, buckets: buckets}
}

// Upload stores r under key. r is rewound before each bucket is tried.
func (u *Uploader) Upload(ctx context.Context, key string, r io.ReadSeeker, size int64, contentType string) (*Object, error) {
	for _, bucket := range u.buckets {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind upload: %w", err)
		}
		err := u.store.PutObject(ctx, bucket, key, r, size, contentType)
		if err == nil {
			return &Object{Bucket: bucket, Key: key, URL: u.store.URL(bucket, key)}, nil
		}
		if !IsMissingBucket(err) {
			return nil, fmt.Errorf("failed to upload to %s: %w", bucket, err)
		}
		log.Printf("media: bucket %s missing, trying next", bucket)
	}
	return nil, ErrNoBucket
}
