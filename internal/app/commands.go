package app

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"vetreview/internal/adapters/observability"
	"vetreview/internal/domain"
)

// SubmitRequest is the POST /reviews body.
type SubmitRequest struct {
	ReceiptImage  string  `json:"receiptImage" validate:"required,max=2048"`
	ClinicID      int64   `json:"id" validate:"required,gt=0"`
	UserID        string  `json:"userId" validate:"required,max=128"`
	Rate          float64 `json:"rate" validate:"required,min=1,max=5"`
	Comment       string  `json:"comment" validate:"max=2000"`
	TreatmentName string  `json:"treatmentNm" validate:"max=200"`
}

func (r SubmitRequest) trimmed() SubmitRequest {
	r.ReceiptImage = strings.TrimSpace(r.ReceiptImage)
	r.UserID = strings.TrimSpace(r.UserID)
	r.Comment = strings.TrimSpace(r.Comment)
	r.TreatmentName = strings.TrimSpace(r.TreatmentName)
	return r
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so messages match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest maps validator failures onto MissingField/InvalidField.
// A missing field wins over an invalid one.
func validateRequest(ctx context.Context, req SubmitRequest) *domain.SubmissionError {
	err := validate.StructCtx(ctx, req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.WrapError(domain.KindInvalidField, err, "")
	}
	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	if len(missing) > 0 {
		return domain.NewError(domain.KindMissingField, strings.Join(missing, ", ")+" is required.")
	}
	return domain.NewError(domain.KindInvalidField, strings.Join(invalid, ", ")+" is invalid.")
}

type SubmissionOptions struct {
	// AddressKeywords selects which OCR lines are address candidates.
	// Empty means every line.
	AddressKeywords []string
	Now             func() time.Time
}

// SubmissionService verifies a receipt and records the review together with
// the clinic's new rating aggregate.
type SubmissionService struct {
	store      domain.Datastore
	images     domain.ImageFetcher
	classifier Classifier
	matcher    *domain.AddressMatcher
	cache      domain.Cache
	keywords   []string
	now        func() time.Time
}

func NewSubmissionService(
	store domain.Datastore,
	images domain.ImageFetcher,
	classifier Classifier,
	matcher *domain.AddressMatcher,
	cache domain.Cache,
	opts SubmissionOptions,
) *SubmissionService {
	if matcher == nil {
		matcher = domain.NewAddressMatcher()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SubmissionService{
		store:      store,
		images:     images,
		classifier: classifier,
		matcher:    matcher,
		cache:      cache,
		keywords:   opts.AddressKeywords,
		now:        now,
	}
}

// Submit runs the verification steps in order and writes the review only when
// the receipt's address matches the clinic. A non-nil error is always a
// *domain.SubmissionError.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (domain.Review, error) {
	start := time.Now()
	req = req.trimmed()

	l := log.With().
		Int64("clinic_id", req.ClinicID).
		Str("user_id", req.UserID).
		Logger()

	rv, serr := s.submit(ctx, l, req)
	outcome := "ok"
	if serr != nil {
		outcome = serr.Kind.String()
	}
	observability.ObserveSubmission(outcome, time.Since(start))

	if serr != nil {
		return domain.Review{}, serr
	}
	return rv, nil
}

func (s *SubmissionService) submit(ctx context.Context, l zerolog.Logger, req SubmitRequest) (domain.Review, *domain.SubmissionError) {
	// 0) validate before any I/O
	if verr := validateRequest(ctx, req); verr != nil {
		return domain.Review{}, s.fail(l, verr)
	}

	sess, err := s.store.Session(ctx)
	if err != nil {
		return domain.Review{}, s.fail(l, domain.WrapError(domain.KindDatastoreError, err, "acquire session"))
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			l.Warn().Err(cerr).Msg("session close failed")
		}
	}()

	// 1) image
	img, err := s.images.Fetch(ctx, req.ReceiptImage)
	if err != nil {
		return domain.Review{}, s.fail(l, domain.WrapError(domain.KindImageFetchFailed, err, ""))
	}
	if len(img) == 0 {
		return domain.Review{}, s.fail(l, domain.NewError(domain.KindImageFetchFailed, "empty image"))
	}

	// 2+3) classification and clinic lookup are independent; join both, then
	// judge them in step order so the reported kind does not depend on timing.
	var (
		cls    ClassificationResult
		clinic domain.Clinic
		g      errgroup.Group
	)
	g.Go(func() error {
		cls = s.classifier.Classify(ctx, img)
		return nil
	})
	g.Go(func() error {
		c, err := sess.GetClinic(ctx, req.ClinicID)
		if err != nil {
			return err
		}
		clinic = c
		return nil
	})
	clinicErr := g.Wait()

	switch cls.Verdict {
	case VerdictVerified:
	case VerdictNotAReceipt:
		return domain.Review{}, s.fail(l, domain.NewError(domain.KindNotAReceipt, ""))
	case VerdictTextUnverifiable:
		return domain.Review{}, s.fail(l, domain.NewError(domain.KindTextUnverifiable, ""))
	default:
		// the client sees the same outcome as a non-receipt; the service
		// failure is only visible in the log
		l.Error().
			Str("kind", domain.KindClassificationServiceError.String()).
			Str("reason", cls.Reason).
			Msg("receipt classification failed")
		return domain.Review{}, s.fail(l, domain.NewError(domain.KindNotAReceipt, cls.Reason))
	}

	if clinicErr != nil {
		if errors.Is(clinicErr, domain.ErrNotFound) {
			return domain.Review{}, s.fail(l, domain.NewError(domain.KindClinicNotFound, ""))
		}
		return domain.Review{}, s.fail(l, domain.WrapError(domain.KindDatastoreError, clinicErr, "get clinic"))
	}

	// 4) address
	lines := AddressLines(cls.Lines(), s.keywords)
	decision := s.matcher.MatchAny(lines, clinic.Addresses())
	if !decision.Matched {
		l.Debug().
			Int("lines", len(lines)).
			Float64("best_similarity", decision.Similarity).
			Str("best_line", decision.Line).
			Msg("no receipt line matched the clinic address")
		return domain.Review{}, s.fail(l, domain.NewError(domain.KindAddressMismatch, ""))
	}

	// 5) build
	sub := domain.ReviewSubmission{
		ClinicID:      req.ClinicID,
		UserID:        req.UserID,
		Rating:        req.Rate,
		Comment:       req.Comment,
		ReceiptImage:  req.ReceiptImage,
		TreatmentName: req.TreatmentName,
		SubmittedAt:   s.now(),
	}

	// 6) both writes or neither. The aggregate is recomputed from the locked
	// row, not from the clinic read above, so concurrent reviews all count.
	var (
		id                int64
		agg               domain.RatingAggregate
		inserted, updated bool
	)
	txErr := sess.RunInTx(ctx, func(ctx context.Context, w domain.ReviewWriter) error {
		prior, err := w.LockClinicAggregate(ctx, sub.ClinicID)
		if err != nil {
			return err
		}
		if prior.Drifted() {
			l.Warn().
				Float64("rating", prior.Average).
				Int("review_count", prior.Count).
				Msg("clinic aggregate drifted; run reconcile")
		}
		agg = domain.NextAggregate(prior, sub.Rating)
		if id, err = w.InsertReview(ctx, sub); err != nil {
			return err
		}
		inserted = true
		if err := w.UpdateClinicRating(ctx, sub.ClinicID, agg, sub.SubmittedAt); err != nil {
			return err
		}
		updated = true
		return nil
	})
	if txErr != nil {
		if inserted && !updated {
			l.Error().
				Err(txErr).
				Bool("partial_write", true).
				Bool("rolled_back", !errors.Is(txErr, domain.ErrRollbackFailed)).
				Int64("review_id", id).
				Msg("review inserted but clinic aggregate update failed")
			return domain.Review{}, domain.WrapError(domain.KindPartialWriteFailure, txErr, "update clinic rating")
		}
		return domain.Review{}, s.fail(l, domain.WrapError(domain.KindDatastoreError, txErr, "persist review"))
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, reviewsKey(sub.ClinicID)); err != nil {
			l.Warn().Err(err).Msg("review cache invalidation failed")
		}
	}

	l.Info().
		Int64("review_id", id).
		Float64("rating", agg.Average).
		Int("review_count", agg.Count).
		Str("matched_line", decision.Line).
		Float64("similarity", decision.Similarity).
		Msg("review accepted")
	return sub.Review(id), nil
}

// fail logs by severity: expected outcomes are routine, the rest are faults.
func (s *SubmissionService) fail(l zerolog.Logger, e *domain.SubmissionError) *domain.SubmissionError {
	if e.Kind.Expected() {
		l.Info().Str("kind", e.Kind.String()).Str("detail", e.Detail).Msg("review rejected")
	} else {
		l.Error().Err(e).Str("kind", e.Kind.String()).Msg("review submission failed")
	}
	return e
}
