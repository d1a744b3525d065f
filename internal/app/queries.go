package app

import (
	"context"
	"fmt"
	"time"

	"vetreview/internal/domain"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

type QueryService struct {
	repo     domain.ReviewReader
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ReviewReader, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func reviewsKey(clinicID int64) string {
	return fmt.Sprintf("reviews:clinic:%d", clinicID)
}

// ListClinicReviews returns a clinic's reviews, newest first. Only the default
// page size is cached; submissions evict it.
func (s *QueryService) ListClinicReviews(ctx context.Context, clinicID int64, limit int) ([]domain.Review, error) {
	limit = clampLimit(limit)
	cacheable := s.cache != nil && limit == DefaultListLimit
	key := reviewsKey(clinicID)

	if cacheable {
		var cached []domain.Review
		if ok, _ := s.cache.Get(ctx, key, &cached); ok {
			return cached, nil
		}
	}

	rs, err := s.repo.ListReviewsByClinic(ctx, clinicID, limit)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = []domain.Review{}
	}
	// copy so callers can't mutate what was cached
	out := make([]domain.Review, len(rs))
	copy(out, rs)

	if cacheable {
		_ = s.cache.Set(ctx, key, out, s.cacheTTL)
	}
	return out, nil
}

func (s *QueryService) SearchReviews(ctx context.Context, q domain.ReviewSearch) ([]domain.Review, error) {
	if q.ClinicID != 0 && q.SidoNm == "" && q.SigunNm == "" && q.DongNm == "" {
		return s.ListClinicReviews(ctx, q.ClinicID, q.Limit)
	}
	q.Limit = clampLimit(q.Limit)
	return s.repo.SearchReviews(ctx, q)
}

func (s *QueryService) SearchClinics(ctx context.Context, q domain.ClinicSearch) ([]domain.Clinic, error) {
	q.Limit = clampLimit(q.Limit)
	return s.repo.SearchClinics(ctx, q)
}

func (s *QueryService) GetClinic(ctx context.Context, id int64) (domain.Clinic, error) {
	return s.repo.GetClinic(ctx, id)
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}
