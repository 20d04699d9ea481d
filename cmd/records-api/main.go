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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/academic-records-api/api/swagger"
	"github.com/noah-isme/academic-records-api/internal/grading"
	"github.com/noah-isme/academic-records-api/internal/handler"
	"github.com/noah-isme/academic-records-api/internal/repository"
	"github.com/noah-isme/academic-records-api/internal/service"
	"github.com/noah-isme/academic-records-api/pkg/cache"
	"github.com/noah-isme/academic-records-api/pkg/config"
	"github.com/noah-isme/academic-records-api/pkg/database"
	"github.com/noah-isme/academic-records-api/pkg/logger"
)

// @title Academic Records API
// @version 1.0.0
// @description Weighted grade engine: evaluation schemes, scores, summaries and change notifications.
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

	db, err := database.NewPostgres(cfg.Database, 5*time.Second)
	if err != nil {
		logr.Sugar().Fatalw("database unavailable", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	runner := database.NewRunner(db, cfg.Storage.Timeout, logger.Component(logr, "database"))
	runner.SetObserver(metrics.ObserveDBQuery)

	var (
		cacheRepo   service.CacheRepository
		redisClient *redis.Client
	)
	if cfg.Ledger.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis, cfg.Storage.Timeout)
		if err != nil {
			// Summaries are recomputed from storage, so a missing cache only costs latency.
			logr.Sugar().Warnw("redis unavailable, summary cache disabled", "error", err)
		} else {
			repo := repository.NewCacheRepository(redisClient, logger.Component(logr, "cache"))
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}

	validate := validator.New()
	policy := grading.PolicyFromConfig(cfg.Grading)

	categoryRepo := repository.NewCategoryRepository(runner)
	schemeRepo := repository.NewSchemeRepository(runner)
	scoreRepo := repository.NewScoreRepository(runner)
	enrollmentRepo := repository.NewEnrollmentRepository(runner)
	outboxRepo := repository.NewOutboxRepository(runner)
	notificationRepo := repository.NewNotificationRepository(runner)
	auditRepo := repository.NewAuditRepository(runner)
	archiveRepo := repository.NewArchiveRepository(runner)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Ledger.CacheTTL, logger.Component(logr, "cache"), cfg.Ledger.CacheEnabled)
	notifier := service.NewNotifierService(outboxRepo, metrics, logger.Component(logr, "notifier"))
	schemeSvc := service.NewSchemeService(schemeRepo, categoryRepo, cacheSvc, policy, validate, logger.Component(logr, "scheme"))
	scoreSvc := service.NewScoreService(scoreRepo, enrollmentRepo, schemeRepo, cacheSvc, notifier, metrics, policy, validate, logger.Component(logr, "score"))
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, schemeRepo, cacheSvc, notifier, metrics, validate, logger.Component(logr, "enrollment"))
	ledgerSvc := service.NewLedgerService(enrollmentRepo, schemeRepo, scoreRepo, cacheSvc, policy, logger.Component(logr, "ledger"))
	notificationSvc := service.NewNotificationService(notificationRepo, logger.Component(logr, "notification"))
	auditSvc := service.NewAuditService(auditRepo, validate)
	authSvc := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var relay *service.OutboxRelay
	if cfg.Outbox.Enabled {
		relay = service.NewOutboxRelay(outboxRepo, notifier, metrics, service.OutboxRelayConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
			Workers:      cfg.Outbox.Workers,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
		}, logger.Component(logr, "outbox"))
		relay.Start(ctx)
	}

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	handlers := handler.Handlers{
		Scheme:       handler.NewSchemeHandler(schemeSvc),
		Score:        handler.NewScoreHandler(scoreSvc),
		Enrollment:   handler.NewEnrollmentHandler(enrollmentSvc),
		Ledger:       handler.NewLedgerHandler(ledgerSvc),
		Notification: handler.NewNotificationHandler(notificationSvc),
		Audit:        handler.NewAuditHandler(auditSvc),
		Archive:      handler.NewArchiveHandler(service.NewArchiveService(archiveRepo, logger.Component(logr, "archive"))),
		Metrics:      handler.NewMetricsHandler(metrics, checks, logger.Component(logr, "health")),
	}
	if cfg.Exports.Enabled {
		handlers.Export = handler.NewExportHandler(service.NewExportService(ledgerSvc, schemeRepo, logger.Component(logr, "export")))
	}

	r := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		TrustedProxies: cfg.CORS.TrustedProxies,
	}, authSvc, metrics, handlers, logr)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down", zap.String("reason", context.Cause(ctx).Error()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown failed", zap.Error(err))
	}
	if relay != nil {
		relay.Stop()
	}
}
