package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

const defaultS3Prefix = "uploaded_images/"

// S3Store uploads artifacts to a bucket under unique keys of the form
// <prefix><YYYYmmdd_HHMMSS>_<id>_<name> and returns their public URL.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
	newID  func() string
}

// S3Option configures an S3Store.
type S3Option func(*S3Store)

// WithS3Prefix sets the key prefix (default "uploaded_images/"). A
// non-empty prefix is treated as a folder.
func WithS3Prefix(prefix string) S3Option {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return func(s *S3Store) { s.prefix = prefix }
}

// WithS3Clock overrides the time source used in keys.
func WithS3Clock(now func() time.Time) S3Option {
	return func(s *S3Store) { s.now = now }
}

// WithS3IDFunc overrides the unique id used in keys.
func WithS3IDFunc(f func() string) S3Option {
	return func(s *S3Store) { s.newID = f }
}

// NewS3Store creates an S3Store for bucket.
func NewS3Store(client S3API, bucket string, opts ...S3Option) *S3Store {
	s := &S3Store{
		client: client,
		bucket: bucket,
		prefix: defaultS3Prefix,
		now:    time.Now,
		newID:  func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// key returns the object key used for name at the current time.
func (s *S3Store) key(name string) string {
	return fmt.Sprintf("%s%s_%s_%s", s.prefix, s.now().Format("20060102_150405"), s.newID(), name)
}

// URL returns the virtual-hosted URL of key.
func (s *S3Store) URL(key string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

// Save implements Store.
func (s *S3Store) Save(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	if s.bucket == "" {
		return "", fmt.Errorf("s3 store: bucket not configured")
	}
	key := s.key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentType(name, mimeType)),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s/%s: %w", s.bucket, key, err)
	}
	return s.URL(key), nil
}

// Load implements Loader; name is an object key in the store's bucket.
func (s *S3Store) Load(ctx context.Context, name string) ([]byte, error) {
	return s.get(ctx, s.bucket, name)
}

// Fetch downloads the object referenced by a URL produced by URL or found
// by ExtractS3URLs. The bucket is taken from the URL.
func (s *S3Store) Fetch(ctx context.Context, url string) ([]byte, error) {
	bucket, key, err := ParseS3URL(url)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, bucket, key)
}

func (s *S3Store) get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

var s3URLPattern = regexp.MustCompile(`https://[\w\-.]+\.s3\.amazonaws\.com/[\w\-./]+`)

// ExtractS3URLs returns the virtual-hosted S3 URLs mentioned in text, in
// order of appearance.
func ExtractS3URLs(text string) []string {
	return s3URLPattern.FindAllString(text, -1)
}

// ParseS3URL splits a virtual-hosted S3 URL into bucket and key.
func ParseS3URL(url string) (bucket, key string, err error) {
	const host = ".s3.amazonaws.com/"
	rest, ok := strings.CutPrefix(url, "https://")
	if !ok {
		return "", "", fmt.Errorf("not an https S3 URL: %q", url)
	}
	bucket, key, ok = strings.Cut(rest, host)
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("not an S3 object URL: %q", url)
	}
	return bucket, key, nil
}
