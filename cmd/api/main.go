package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/noah-isme/civic-report-api/internal/handler"
	"github.com/noah-isme/civic-report-api/internal/repository"
	"github.com/noah-isme/civic-report-api/internal/service"
	"github.com/noah-isme/civic-report-api/pkg/cache"
	"github.com/noah-isme/civic-report-api/pkg/config"
	"github.com/noah-isme/civic-report-api/pkg/database"
	"github.com/noah-isme/civic-report-api/pkg/jobs"
	"github.com/noah-isme/civic-report-api/pkg/logger"
	"github.com/noah-isme/civic-report-api/pkg/storage"
)

// @title Civic Report API
// @version 1.0.0
// @description Citizen issue reporting: submission, municipal workflow and listings.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard counts will not be cached", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	var activityCollection *mongo.Collection
	var mongoClient *mongo.Client
	if cfg.Mongo.URI != "" {
		client, mongoDB, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			logr.Warn("mongo unavailable, report activity will not be recorded", zap.Error(err))
		} else {
			mongoClient = client
			activityCollection = mongoDB.Collection(database.ActivityCollection)
			defer mongoClient.Disconnect(context.Background()) //nolint:errcheck
		}
	}

	uploader, err := newUploader(cfg)
	if err != nil {
		logr.Fatal("failed to init media uploader", zap.Error(err))
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	policy := service.NewRolePolicy()
	rules := service.ReportRulesFromConfig(cfg.Rules)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	reportRepo := repository.NewReportRepository(db)
	reportSvc := service.NewReportService(
		reportRepo,
		repository.NewMunicipalityRepository(db),
		repository.NewUserRepository(db),
		uploader,
		repository.NewActivityRepository(activityCollection),
		cacheSvc,
		metrics,
		policy,
		rules,
		validate,
		logr,
		service.ReportServiceConfig{CountsTTL: cfg.Dashboard.CacheTTL},
	)

	exportHandler := handler.NewExportHandler(nil)
	if cfg.Exports.Enabled {
		exportJobs, queue, err := newExportPipeline(ctx, cfg, db, reportRepo, policy, validate, logr)
		if err != nil {
			logr.Fatal("failed to init exports", zap.Error(err))
		}
		defer queue.Stop()
		exportHandler = handler.NewExportHandler(exportJobs)
	}

	router := newRouter(cfg, logr, routerDeps{
		tokens:  service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}),
		metrics: metrics,
		reports: handler.NewReportHandler(reportSvc),
		exports: exportHandler,
		health:  handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient, mongoClient)),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func newUploader(cfg *config.Config) (service.MediaUploader, error) {
	switch cfg.Uploads.Driver {
	case config.UploadDriverCloudinary:
		return storage.NewCloudinaryUploader(cfg.Uploads.Cloudinary)
	case config.UploadDriverLocal, "":
		store, err := storage.NewLocalStorage(cfg.Uploads.Dir)
		if err != nil {
			return nil, err
		}
		return storage.NewLocalUploader(store, cfg.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown upload driver %q", cfg.Uploads.Driver)
	}
}

func newExportPipeline(
	ctx context.Context,
	cfg *config.Config,
	db *sqlx.DB,
	reports *repository.ReportRepository,
	policy service.ReportPolicy,
	validate *validator.Validate,
	logr *zap.Logger,
) (*service.ExportJobService, *jobs.Queue, error) {
	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	exporter := service.NewExportService(
		reports,
		store,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
		logr,
		nil,
		nil,
	)
	exportRepo := repository.NewExportRepository(db)
	worker := service.NewExportWorker(exportRepo, exporter, cfg.Exports.WorkerRetries, logr)
	queue := jobs.NewQueue("report-exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	queue.Start(ctx)

	exportJobs := service.NewExportJobService(exportRepo, queue, exporter, policy, validate, logr, service.ExportJobServiceConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})
	exportJobs.RecoverPendingJobs(ctx)
	exportJobs.StartCleanup(ctx)
	return exportJobs, queue, nil
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client, mongoClient *mongo.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if mongoClient != nil {
		checks["mongo"] = func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }
	}
	return checks
}
