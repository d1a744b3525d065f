// Command reconcile recomputes every clinic's rating aggregate from its
// reviews. Run it after a PartialWriteFailure or manual data edits.
package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"vetreview/internal/adapters/observability"
	"vetreview/internal/shared"
	mysqlrepo "vetreview/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel, "reconcile")

	log.Info().Int("workers", cfg.ReconcileWorkers).Msg("reconcile starting")

	db, err := mysqlrepo.Open(ctx, cfg.MySQLDSN, cfg.ReconcileWorkers+1, cfg.ReconcileWorkers, cfg.MySQLConnMaxLifetime)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	repo := mysqlrepo.New(db)
	ids, err := repo.ListClinicIDs(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list clinics failed")
	}

	sem := semaphore.NewWeighted(int64(cfg.ReconcileWorkers))
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	now := time.Now().UTC()

	for _, id := range ids {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(clinicID int64) {
			defer wg.Done()
			defer sem.Release(1)

			agg, err := repo.RecomputeAggregate(ctx, clinicID, now)
			if err != nil {
				failed.Add(1)
				log.Warn().Int64("clinic_id", clinicID).Err(err).Msg("reconcile failed")
				return
			}
			log.Debug().Int64("clinic_id", clinicID).Float64("rating", agg.Average).Int("count", agg.Count).Msg("reconciled")
		}(id)
	}

	wg.Wait()
	log.Info().Int("clinics", len(ids)).Int64("failed", failed.Load()).Msg("reconcile completed")
}
