// Package objectstore loads receipt images from S3 or plain HTTP(S) URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

var (
	ErrNotFound       = errors.New("objectstore: not found")
	ErrForbidden      = errors.New("objectstore: forbidden")
	ErrTooLarge       = errors.New("objectstore: image too large")
	ErrUnsupportedRef = errors.New("objectstore: unsupported image reference")
)

type Getter interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Router picks a fetcher by reference scheme:
//
//	s3://bucket/key      -> S3
//	http(s)://...        -> HTTP
//	bare/key.jpg         -> S3 in the default bucket
type Router struct {
	S3   Getter
	HTTP Getter
}

func (r *Router) Fetch(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedRef, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if r.HTTP == nil {
			return nil, ErrUnsupportedRef
		}
		return r.HTTP.Fetch(ctx, ref)
	case "s3", "":
		if r.S3 == nil {
			return nil, ErrUnsupportedRef
		}
		return r.S3.Fetch(ctx, ref)
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedRef, u.Scheme)
	}
}

// readLimited reads at most max bytes and fails when the body is larger.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, ErrTooLarge
	}
	return b, nil
}
