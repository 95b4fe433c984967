// Package s3blob stores replay history files and opportunity archives in
// S3 or an S3-compatible object store (MinIO, R2, iDrive e2).
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// minPartSize is the smallest part S3 accepts in a multipart upload.
const minPartSize int64 = 5 << 20

var (
	_ domain.BlobReader = (*Bucket)(nil)
	_ domain.BlobWriter = (*Bucket)(nil)
)

// Config selects the bucket and how to reach it.
type Config struct {
	// Endpoint targets an S3-compatible provider. Empty means AWS.
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// UseSSL picks the scheme when Endpoint has none.
	UseSSL bool
	// ForcePathStyle addresses the bucket in the path, as MinIO and most
	// self-hosted providers require.
	ForcePathStyle bool
}

// Bucket reads and writes objects of a single bucket.
type Bucket struct {
	api  *s3.Client
	name string
}

// Open validates cfg and builds the SDK client. It does not contact the
// provider; use Health for that.
func Open(ctx context.Context, cfg Config) (*Bucket, error) {
	var missing []error
	if cfg.Bucket == "" {
		missing = append(missing, errors.New("bucket is required"))
	}
	if cfg.Region == "" {
		missing = append(missing, errors.New("region is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("s3blob: %w", err)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Bucket{api: api, name: cfg.Bucket}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Health issues a HeadBucket with the configured credentials.
func (b *Bucket) Health(ctx context.Context) error {
	if _, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)}); err != nil {
		return fmt.Errorf("s3blob: bucket %s: %w", b.name, err)
	}
	return nil
}

// Get opens an object for reading; the caller closes it. A missing key
// reports domain.ErrNotFound.
func (b *Bucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.name), Key: aws.String(key)})
	if err != nil {
		return nil, b.wrap("get", key, err)
	}
	return out.Body, nil
}

// Exists reports whether key is present.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.name), Key: aws.String(key)})
	switch {
	case err == nil:
		return true, nil
	case missingObject(err):
		return false, nil
	default:
		return false, b.wrap("head", key, err)
	}
}

// Put stores small objects such as archive batches with one request.
func (b *Bucket) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	return b.wrap("put", key, err)
}

// PutMultipart streams a large object, a recorded session for instance, in
// parts of at least partSize bytes.
func (b *Bucket) PutMultipart(ctx context.Context, key string, data io.Reader, partSize int64) error {
	up := manager.NewUploader(b.api, func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
	_, err := up.Upload(ctx, &s3.PutObjectInput{Bucket: aws.String(b.name), Key: aws.String(key), Body: data})
	return b.wrap("upload", key, err)
}

func (b *Bucket) wrap(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case missingObject(err):
		return fmt.Errorf("s3blob: %s s3://%s/%s: %w", op, b.name, key, domain.ErrNotFound)
	default:
		return fmt.Errorf("s3blob: %s s3://%s/%s: %w", op, b.name, key, err)
	}
}

// missingObject matches the typed NoSuchKey and NotFound errors as well as
// the bare 404 some S3-compatible providers send instead.
func missingObject(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &noKey) ||
		errors.As(err, &notFound) ||
		(errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound)
}

// endpointURL adds a scheme to a bare host[:port] endpoint.
func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
