// Package s3 stores case file content in an S3 compatible bucket
// (AWS S3 or MinIO).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/internal/metrics"
)

// Config holds bucket connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Backend is a storage.Backend on one bucket.
type Backend struct {
	api    *s3.Client
	bucket string
}

// New connects to the bucket, creating it when it does not exist yet.
// A failed bucket check is logged, not returned: the first object call
// reports the real problem.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 storage: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 storage: %w", err)
	}

	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
	b := &Backend{
		bucket: cfg.Bucket,
		api: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
			o.UsePathStyle = true
		}),
	}
	if err := b.ensureBucket(ctx); err != nil {
		logging.Error("bucket check failed", zap.String("bucket", cfg.Bucket), zap.Error(err))
	}
	return b, nil
}

// endpointURL adds a scheme to a bare host:port endpoint.
func endpointURL(endpoint string, tls bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if tls {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func observe(op string, start time.Time, err *error) {
	metrics.RecordStorageOperation("s3", op, time.Since(start), *err == nil)
}

func (b *Backend) ensureBucket(ctx context.Context) (err error) {
	defer observe("ensure_bucket", time.Now(), &err)

	if _, err = b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &b.bucket}); err == nil {
		return nil
	}
	if _, err = b.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &b.bucket}); err != nil {
		return fmt.Errorf("create bucket %s: %w", b.bucket, err)
	}
	logging.Info("created bucket", zap.String("bucket", b.bucket))
	return nil
}

// missing reports whether err is a NoSuchKey or NotFound response.
func missing(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

// GetObject opens the content of key. A missing key yields an error
// wrapping fs.ErrNotExist.
func (b *Backend) GetObject(ctx context.Context, key string) (_ io.ReadCloser, _ int64, err error) {
	defer observe("get", time.Now(), &err)

	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: aws.String(key)})
	switch {
	case err == nil:
		return out.Body, aws.ToInt64(out.ContentLength), nil
	case missing(err):
		return nil, 0, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
	default:
		return nil, 0, fmt.Errorf("object %s: %w", key, err)
	}
}

// PutObject uploads body under key. A negative size streams with unknown length.
func (b *Backend) PutObject(ctx context.Context, key string, body io.Reader, size int64) (err error) {
	defer observe("put", time.Now(), &err)

	in := &s3.PutObjectInput{Bucket: &b.bucket, Key: aws.String(key), Body: body}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err = b.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("object %s: %w", key, err)
	}
	logging.Debug("object stored", zap.String("key", key), zap.Int64("size", size))
	return nil
}

// DeleteObject removes key. A missing key is not an error.
func (b *Backend) DeleteObject(ctx context.Context, key string) (err error) {
	defer observe("delete", time.Now(), &err)

	_, err = b.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: aws.String(key)})
	if err != nil && !missing(err) {
		return fmt.Errorf("object %s: %w", key, err)
	}
	return nil
}

// ObjectExists reports whether key has content.
func (b *Backend) ObjectExists(ctx context.Context, key string) (_ bool, err error) {
	defer observe("head", time.Now(), &err)

	_, err = b.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.bucket, Key: aws.String(key)})
	switch {
	case err == nil:
		return true, nil
	case missing(err):
		return false, nil
	default:
		return false, fmt.Errorf("object %s: %w", key, err)
	}
}

// Type returns "s3".
func (b *Backend) Type() string { return "s3" }

// Close is a no-op.
func (b *Backend) Close() error { return nil }
