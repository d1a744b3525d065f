package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"vetreview/internal/adapters/observability"
)

type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads objects by s3://bucket/key or by bare key in the default bucket.
type S3Fetcher struct {
	api           s3API
	defaultBucket string
	maxSize       int64
}

func NewS3Fetcher(cfg aws.Config, defaultBucket string, maxSize int64) *S3Fetcher {
	return newS3Fetcher(s3.NewFromConfig(cfg), defaultBucket, maxSize)
}

func newS3Fetcher(api s3API, defaultBucket string, maxSize int64) *S3Fetcher {
	return &S3Fetcher{api: api, defaultBucket: defaultBucket, maxSize: maxSize}
}

func (f *S3Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := f.locate(ref)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := f.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	observability.ObserveExternal("s3", "GetObject", observability.StatusOf(err), time.Since(start))
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > f.maxSize {
		return nil, ErrTooLarge
	}
	return readLimited(out.Body, f.maxSize)
}

func (f *S3Fetcher) locate(ref string) (bucket, key string, err error) {
	if strings.HasPrefix(ref, "s3://") {
		u, perr := url.Parse(ref)
		if perr != nil {
			return "", "", fmt.Errorf("%w: %v", ErrUnsupportedRef, perr)
		}
		bucket, key = u.Host, strings.TrimPrefix(u.Path, "/")
	} else {
		bucket, key = f.defaultBucket, strings.TrimPrefix(ref, "/")
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedRef, ref)
	}
	return bucket, key, nil
}
