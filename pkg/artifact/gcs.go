package artifact

import (
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
)

// GCSStore writes artifacts to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
}

// NewGCSStore opens a client with application default credentials.
func NewGCSStore(ctx context.Context, bucketName, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(bucketName),
		name:   bucketName,
		prefix: prefix,
	}, nil
}

func (s *GCSStore) object(name string) string {
	return path.Join(s.prefix, path.Base(name))
}

// Save implements Store and returns a gs:// URI.
func (s *GCSStore) Save(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	obj := s.object(name)
	w := s.bucket.Object(obj).NewWriter(ctx)
	w.ContentType = ContentType(name, mimeType)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", obj, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", obj, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.name, obj), nil
}

// Load implements Loader.
func (s *GCSStore) Load(ctx context.Context, name string) ([]byte, error) {
	obj := s.object(name)
	r, err := s.bucket.Object(obj).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs open %s: %w", obj, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", obj, err)
	}
	return data, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error { return s.client.Close() }
