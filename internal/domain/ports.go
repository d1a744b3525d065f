package domain

import (
	"context"
	"time"
)

// Datastore hands out one Session per request.
type Datastore interface {
	Session(ctx context.Context) (Session, error)
}

// Session is a single pinned datastore connection. Close must be called on
// every path.
type Session interface {
	GetClinic(ctx context.Context, id int64) (Clinic, error)
	// RunInTx runs fn in one transaction; fn's error rolls it back.
	RunInTx(ctx context.Context, fn func(ctx context.Context, w ReviewWriter) error) error
	Close() error
}

// ReviewWriter works inside one transaction.
type ReviewWriter interface {
	// LockClinicAggregate reads the clinic's current aggregate and holds its
	// row until the transaction ends, so concurrent submissions serialize.
	LockClinicAggregate(ctx context.Context, clinicID int64) (RatingAggregate, error)
	InsertReview(ctx context.Context, s ReviewSubmission) (int64, error)
	UpdateClinicRating(ctx context.Context, clinicID int64, agg RatingAggregate, at time.Time) error
}

// ReviewReader serves the read endpoints.
type ReviewReader interface {
	GetClinic(ctx context.Context, id int64) (Clinic, error)
	ListReviewsByClinic(ctx context.Context, clinicID int64, limit int) ([]Review, error)
	SearchReviews(ctx context.Context, q ReviewSearch) ([]Review, error)
	SearchClinics(ctx context.Context, q ClinicSearch) ([]Clinic, error)
}

// ImageFetcher loads receipt image bytes by reference (URL or s3://bucket/key).
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Detection is one text/label hit with confidence in [0,100].
type Detection struct {
	Text       string
	Confidence float64
}

type Detector interface {
	DetectText(ctx context.Context, img []byte) ([]Detection, error)
}

// TextExtractor runs OCR. The first block, when present, is the full text.
type TextExtractor interface {
	ExtractText(ctx context.Context, img []byte) ([]string, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
