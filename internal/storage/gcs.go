package storage

import (
	"context"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCSArchive stores raw session audio. Objects stay private; access goes
// through signed URLs.
type GCSArchive struct {
	client *gcs.Client
	bucket string
}

func NewGCSArchive(ctx context.Context, bucket string) (*GCSArchive, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSArchive{client: c, bucket: bucket}, nil
}

func (a *GCSArchive) Close() error { return a.client.Close() }

func (a *GCSArchive) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) error {
	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (a *GCSArchive) SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error) {
	return a.client.Bucket(a.bucket).SignedURL(objectName, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
}
