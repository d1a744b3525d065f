package mysql

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"vetreview/internal/adapters/observability"
	"vetreview/internal/domain"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func prefixed(alias, cols string) []string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return parts
}

// reviewSearchQuery filters by clinic and/or the clinic's region.
func reviewSearchQuery(q domain.ReviewSearch) sq.SelectBuilder {
	b := sq.Select(prefixed("r", reviewColumns)...).
		From("reviews r").
		Join("clinics c ON c.id = r.clinic_id")
	if q.ClinicID != 0 {
		b = b.Where(sq.Eq{"r.clinic_id": q.ClinicID})
	}
	if q.SidoNm != "" {
		b = b.Where(sq.Eq{"c.sido_nm": q.SidoNm})
	}
	if q.SigunNm != "" {
		b = b.Where(sq.Eq{"c.sigun_nm": q.SigunNm})
	}
	if q.DongNm != "" {
		b = b.Where(sq.Eq{"c.dong_nm": q.DongNm})
	}
	return b.OrderBy("r.create_time DESC", "r.id DESC").Limit(uint64(q.Limit))
}

func clinicSearchQuery(q domain.ClinicSearch) sq.SelectBuilder {
	b := sq.Select(prefixed("c", clinicColumns)...).From("clinics c")
	if q.SidoNm != "" {
		b = b.Where(sq.Eq{"c.sido_nm": q.SidoNm})
	}
	if q.SigunNm != "" {
		b = b.Where(sq.Eq{"c.sigun_nm": q.SigunNm})
	}
	if q.DongNm != "" {
		b = b.Where(sq.Eq{"c.dong_nm": q.DongNm})
	}
	if name := strings.TrimSpace(q.Name); name != "" {
		b = b.Where(sq.Like{"c.name": "%" + likeEscaper.Replace(name) + "%"})
	}
	return b.OrderBy("c.id").Limit(uint64(q.Limit))
}

func (r *Repo) SearchReviews(ctx context.Context, q domain.ReviewSearch) ([]domain.Review, error) {
	query, args, err := reviewSearchQuery(q).ToSql()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	observability.ObserveExternal("mysql", "search_reviews", observability.StatusOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return scanReviews(rows)
}

func (r *Repo) SearchClinics(ctx context.Context, q domain.ClinicSearch) ([]domain.Clinic, error) {
	query, args, err := clinicSearchQuery(q).ToSql()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	observability.ObserveExternal("mysql", "search_clinics", observability.StatusOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return scanClinics(rows)
}
