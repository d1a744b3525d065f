package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vetreview/internal/adapters/observability"
	"vetreview/internal/domain"
)

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// Open connects and pings. The DSN must carry parseTime=true.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repo) GetClinic(ctx context.Context, id int64) (domain.Clinic, error) {
	return getClinic(ctx, r.db, id)
}

func (r *Repo) ListReviewsByClinic(ctx context.Context, clinicID int64, limit int) ([]domain.Review, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, listReviewsByClinicSQL, clinicID, limit)
	observability.ObserveExternal("mysql", "list_reviews", observability.StatusOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return scanReviews(rows)
}

// ListClinicIDs returns every clinic id in ascending order.
func (r *Repo) ListClinicIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, listClinicIDsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecomputeAggregate rebuilds a clinic's rating aggregate from its reviews and
// stores it. It repairs drift left behind by a partial write.
func (r *Repo) RecomputeAggregate(ctx context.Context, clinicID int64, at time.Time) (domain.RatingAggregate, error) {
	var agg domain.RatingAggregate
	err := runInTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		var (
			count int
			avg   float64
			id    int64
		)
		// same lock order as a submission: clinic row first
		if err := tx.QueryRowContext(ctx, lockClinicSQL, clinicID).Scan(&id); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, aggregateReviewsSQL, clinicID).Scan(&count, &avg); err != nil {
			return err
		}
		agg = domain.RatingAggregate{Average: domain.Round2(avg), Count: count}
		return txWriter{tx: tx}.UpdateClinicRating(ctx, clinicID, agg, at)
	})
	return agg, err
}

func getClinic(ctx context.Context, q querier, id int64) (domain.Clinic, error) {
	start := time.Now()
	row := q.QueryRowContext(ctx, getClinicSQL, id)

	var (
		c          domain.Clinic
		lot, road  sql.NullString
		phone      sql.NullString
		updateTime sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.SidoNm, &c.SigunNm, &c.DongNm,
		&lot, &road,
		&phone,
		&c.Rating,
		&c.ReviewCount,
		&updateTime,
	)
	observability.ObserveExternal("mysql", "get_clinic", observability.StatusOf(ignoreNoRows(err)), time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Clinic{}, domain.ErrNotFound
		}
		return domain.Clinic{}, err
	}
	c.LotAddress = lot.String
	c.RoadAddress = road.String
	c.Phone = phone.String
	if updateTime.Valid {
		c.UpdateTime = updateTime.Time.UTC()
	}
	return c, nil
}

func scanReviews(rows *sql.Rows) ([]domain.Review, error) {
	defer rows.Close()

	out := []domain.Review{}
	for rows.Next() {
		var (
			rv        domain.Review
			comment   sql.NullString
			treatment sql.NullString
		)
		if err := rows.Scan(
			&rv.ID,
			&rv.ClinicID,
			&rv.UserID,
			&rv.Rating,
			&comment,
			&treatment,
			&rv.ReceiptImage,
			&rv.CreateTime,
		); err != nil {
			return nil, err
		}
		rv.Comment = comment.String
		rv.TreatmentName = treatment.String
		rv.CreateTime = rv.CreateTime.UTC()
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanClinics(rows *sql.Rows) ([]domain.Clinic, error) {
	defer rows.Close()

	out := []domain.Clinic{}
	for rows.Next() {
		var (
			c          domain.Clinic
			lot, road  sql.NullString
			phone      sql.NullString
			updateTime sql.NullTime
		)
		if err := rows.Scan(
			&c.ID, &c.Name,
			&c.SidoNm, &c.SigunNm, &c.DongNm,
			&lot, &road, &phone,
			&c.Rating, &c.ReviewCount, &updateTime,
		); err != nil {
			return nil, err
		}
		c.LotAddress, c.RoadAddress, c.Phone = lot.String, road.String, phone.String
		if updateTime.Valid {
			c.UpdateTime = updateTime.Time.UTC()
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
