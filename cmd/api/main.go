package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "vetreview/internal/adapters/http_server"
	"vetreview/internal/adapters/objectstore"
	"vetreview/internal/adapters/observability"
	redisad "vetreview/internal/adapters/redis"
	"vetreview/internal/adapters/rekognition"
	"vetreview/internal/adapters/vision"
	"vetreview/internal/app"
	"vetreview/internal/domain"
	"vetreview/internal/shared"
	mysqlrepo "vetreview/internal/storage/mysql"
)

func main() {
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// db
	db, err := mysqlrepo.Open(ctx, cfg.MySQLDSN, cfg.MySQLMaxOpenConns, cfg.MySQLMaxIdleConns, cfg.MySQLConnMaxLifetime)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()
	log.Info().Msg("database connection ok")

	if cfg.MigrateOnStart {
		if err := mysqlrepo.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
	}

	// external collaborators, built once and shared by every request
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("aws config failed")
	}
	ocr, err := vision.New(ctx, cfg.GCPCredentials, cfg.DetectRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("vision client failed")
	}
	defer ocr.Close()

	images := &objectstore.Router{
		S3:   objectstore.NewS3Fetcher(awsCfg, cfg.ReceiptBucket, cfg.ImageMaxBytes),
		HTTP: objectstore.NewHTTPFetcher(cfg.ImageFetchTimeout, cfg.ImageMaxBytes, cfg.DetectRPS, cfg.ImageAllowedHosts),
	}
	classifier := app.NewReceiptClassifier(
		rekognition.New(awsCfg, cfg.DetectRPS),
		ocr,
		app.ReceiptPolicy{MinConfidence: cfg.ReceiptMinConfidence, Keyword: cfg.ReceiptKeyword},
	)

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

	log.Info().
		Strs("address_keywords", cfg.AddressLineKeywords).
		Strs("image_allowed_hosts", cfg.ImageAllowedHosts).
		Msg("receipt verification filters")
	submit := app.NewSubmissionService(repo, images, classifier, domain.NewAddressMatcher(), cache,
		app.SubmissionOptions{AddressKeywords: cfg.AddressLineKeywords})
	q := app.NewQueryService(repo, cache, cfg.CacheTTL)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{S: submit, Q: q, Ready: []server.Check{repo.Ping, cache.Ping}})
	observability.Serve(cfg.MetricsAddr, reg)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
