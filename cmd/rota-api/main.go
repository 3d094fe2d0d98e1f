package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/clinic-rota-api/api/swagger"
	"github.com/noah-isme/clinic-rota-api/internal/handler"
	internalmiddleware "github.com/noah-isme/clinic-rota-api/internal/middleware"
	"github.com/noah-isme/clinic-rota-api/internal/repository"
	"github.com/noah-isme/clinic-rota-api/internal/service"
	"github.com/noah-isme/clinic-rota-api/pkg/cache"
	"github.com/noah-isme/clinic-rota-api/pkg/config"
	"github.com/noah-isme/clinic-rota-api/pkg/database"
	"github.com/noah-isme/clinic-rota-api/pkg/jobs"
	"github.com/noah-isme/clinic-rota-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/clinic-rota-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/clinic-rota-api/pkg/middleware/requestid"
	"github.com/noah-isme/clinic-rota-api/pkg/storage"
)

// @title Clinic Rota API
// @version 1.0.0
// @description Constraint-based weekly clinic schedule generation for residency programs
// @BasePath /
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()

	// Run persistence: Postgres keeps runs across restarts, the in-memory
	// store serves single-node setups without one.
	var store service.RotaJobStore = repository.NewMemoryJobStore()
	var db *sqlx.DB
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
		}
		defer db.Close() //nolint:errcheck
		store = repository.NewRotaJobRepository(db)
		logr.Sugar().Infow("using postgres job store", "host", cfg.Database.Host, "db", cfg.Database.Name)
	} else {
		logr.Sugar().Infow("using in-memory job store; runs are lost on restart")
	}

	var cacheSvc *service.CacheService
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		cacheRepo := repository.NewCacheRepository(client, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Jobs.DedupTTL, logr, true)
		logr.Sugar().Infow("redis cache enabled", "host", cfg.Redis.Host)
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init artifact storage", "dir", cfg.Exports.StorageDir, "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, nil, nil, nil)

	rulesSvc, err := service.NewRulesService(cfg.Rules.Path, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to load rules document", "path", cfg.Rules.Path, "error", err)
	}

	validationSvc := service.NewValidationService()
	authSvc := service.NewAuthService(validator.New(), logr, service.AuthConfig{
		AdminEmail:        cfg.Auth.AdminEmail,
		AdminPasswordHash: cfg.Auth.AdminPasswordHash,
		TokenSecret:       cfg.Auth.JWTSecret,
		TokenExpiry:       cfg.Auth.JWTExpiration,
	})

	worker := service.NewRotaWorker(store, exportSvc, metricsSvc, service.RotaWorkerConfig{
		MaxRetries:     cfg.Jobs.WorkerRetries,
		RunTimeout:     cfg.Engine.RunTimeout,
		PopulationSize: cfg.Engine.PopulationSize,
		MaxGenerations: cfg.Engine.MaxGenerations,
		Parallelism:    cfg.Engine.Parallelism,
	}, logr)
	queue := jobs.NewQueue("rota", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Jobs.WorkerConcurrency,
		MaxRetries: cfg.Jobs.WorkerRetries,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	rotaSvc := service.NewRotaService(store, queue, cacheSvc, exportSvc, validationSvc, rulesSvc, service.RotaServiceConfig{
		DedupTTL:        cfg.Jobs.DedupTTL,
		RetentionPeriod: cfg.Jobs.RetentionPeriod,
		CleanupInterval: cfg.Jobs.CleanupInterval,
	}, logr)
	rotaSvc.RecoverPendingJobs(ctx)
	rotaSvc.StartCleanup(ctx)

	rotaHandler := handler.NewRotaHandler(rotaSvc, validationSvc)
	exportHandler := handler.NewExportHandler(rotaSvc)
	rulesHandler := handler.NewRulesHandler(rulesSvc, rotaSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, nil)
	if db != nil {
		metricsHandler = handler.NewMetricsHandler(metricsSvc, db)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/snapshot", metricsHandler.Snapshot)

	if cfg.Docs.Enabled && cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	schedule := api.Group("/schedule")
	schedule.POST("/runs", internalmiddleware.OptionalJWT(authSvc), rotaHandler.CreateRun)
	schedule.GET("/runs", rotaHandler.ListRuns)
	schedule.GET("/runs/:id", rotaHandler.GetRun)
	schedule.GET("/runs/:id/result", rotaHandler.GetRunResult)
	schedule.POST("/preview", rotaHandler.Preview)
	schedule.POST("/validate", rotaHandler.ValidateRoster)
	schedule.POST("/validate-field", rotaHandler.ValidateField)
	schedule.GET("/defaults", rotaHandler.Defaults)

	api.GET("/rules", rulesHandler.Get)
	api.PUT("/rules", internalmiddleware.JWT(authSvc), internalmiddleware.RequireAdmin(), rulesHandler.Replace)
	api.GET("/export/:token", exportHandler.Download)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/me", internalmiddleware.JWT(authSvc), authHandler.Me)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()
	logr.Sugar().Infow("server started", "addr", addr, "env", cfg.Env)

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown failed", "error", err)
	}
}
