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

// Session pins one pooled connection for the lifetime of a request.
type Session struct {
	conn *sql.Conn
}

func (r *Repo) Session(ctx context.Context) (domain.Session, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Session{conn: conn}, nil
}

func (s *Session) GetClinic(ctx context.Context, id int64) (domain.Clinic, error) {
	return getClinic(ctx, s.conn, id)
}

// RunInTx commits when fn returns nil and rolls back otherwise. A failed
// rollback is reported with domain.ErrRollbackFailed joined to fn's error.
func (s *Session) RunInTx(ctx context.Context, fn func(ctx context.Context, w domain.ReviewWriter) error) error {
	start := time.Now()
	err := runInTx(ctx, s.conn, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, txWriter{tx: tx})
	})
	observability.ObserveExternal("mysql", "tx", observability.StatusOf(err), time.Since(start))
	return err
}

// Close returns the connection to the pool. Safe to call twice.
func (s *Session) Close() error {
	err := s.conn.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

type beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func runInTx(ctx context.Context, b beginner, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("%w: %v", domain.ErrRollbackFailed, rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txWriter struct{ tx *sql.Tx }

func (w txWriter) LockClinicAggregate(ctx context.Context, clinicID int64) (domain.RatingAggregate, error) {
	var agg domain.RatingAggregate
	err := w.tx.QueryRowContext(ctx, lockClinicAggregateSQL, clinicID).Scan(&agg.Average, &agg.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RatingAggregate{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("lock clinic aggregate: %w", err)
	}
	return agg, nil
}

func (w txWriter) InsertReview(ctx context.Context, s domain.ReviewSubmission) (int64, error) {
	res, err := w.tx.ExecContext(ctx, insertReviewSQL,
		s.ClinicID,
		s.UserID,
		s.Rating,
		nullStr(s.Comment),
		nullStr(s.TreatmentName),
		s.ReceiptImage,
		s.SubmittedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert review: %w", err)
	}
	return res.LastInsertId()
}

func (w txWriter) UpdateClinicRating(ctx context.Context, clinicID int64, agg domain.RatingAggregate, at time.Time) error {
	if _, err := w.tx.ExecContext(ctx, updateClinicRatingSQL, agg.Average, agg.Count, at.UTC(), clinicID); err != nil {
		return fmt.Errorf("update clinic rating: %w", err)
	}
	return nil
}
