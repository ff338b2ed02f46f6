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
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-leave-api/api/swagger"
	"github.com/noah-isme/campus-leave-api/internal/handler"
	internalmiddleware "github.com/noah-isme/campus-leave-api/internal/middleware"
	"github.com/noah-isme/campus-leave-api/internal/repository"
	"github.com/noah-isme/campus-leave-api/internal/service"
	"github.com/noah-isme/campus-leave-api/pkg/cache"
	"github.com/noah-isme/campus-leave-api/pkg/config"
	"github.com/noah-isme/campus-leave-api/pkg/database"
	"github.com/noah-isme/campus-leave-api/pkg/export"
	"github.com/noah-isme/campus-leave-api/pkg/jobs"
	"github.com/noah-isme/campus-leave-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-leave-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-leave-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-leave-api/pkg/storage"
)

// @title Campus Leave API
// @version 0.1.0
// @description Filtering, pagination and statistics over campus leave records
// @BasePath /api/v1
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

	loc, err := time.LoadLocation(cfg.Records.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid records timezone", "timezone", cfg.Records.Timezone, "error", err)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()
	readiness := map[string]handler.ReadinessCheck{}

	source, db, err := openSource(cfg)
	if err != nil {
		logr.Sugar().Fatalw("failed to open leave source", "kind", cfg.Source.Kind, "error", err)
	}
	if db != nil {
		defer db.Close() //nolint:errcheck
		readiness["database"] = db.PingContext
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		repo := repository.NewCacheRepository(redisClient, "campus-leave:")
		defer repo.Close() //nolint:errcheck
		readiness["redis"] = repo.Ping
		cacheRepo = repo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Sessions.TTL, logr, cacheRepo != nil && cfg.Sessions.CacheEnabled)

	store := repository.NewLeaveRecordStore()
	readiness["records"] = func(context.Context) error {
		snap := store.Snapshot()
		switch {
		case snap.Sequence == 0:
			return errors.New("records not loaded")
		case snap.Unavailable:
			return fmt.Errorf("records unavailable: %s", snap.Error)
		}
		return nil
	}

	engine := service.NewLeaveFilterEngine(cfg.Records.PageSize)
	stats := service.NewLeaveStatisticsAggregator(loc)
	validate := service.NewLeaveValidator()

	var hub *service.StreamHub
	if cfg.Stream.Enabled {
		hub = service.NewStreamHub(cfg.Stream.PingInterval, corsmiddleware.AllowOrigin(cfg.CORS.AllowedOrigins), metricsSvc, logr)
	}

	refresher := service.NewLeaveRefresher(source, store, stats, hub, metricsSvc, logr, service.LeaveRefresherConfig{
		Timeout:  cfg.Refresh.Timeout,
		Location: loc,
	})
	leaves := service.NewLeaveViewService(store, refresher, engine, stats, validate, logr, service.LeaveViewServiceConfig{
		DefaultPageSize: cfg.Records.PageSize,
		Location:        loc,
	})
	registry := service.NewLeaveSessionRegistry(store, service.NewLeaveViewBuilder(engine, stats), cacheSvc, validate, metricsSvc, logr, service.LeaveSessionRegistryConfig{
		TTL:             cfg.Sessions.TTL,
		DefaultPageSize: cfg.Records.PageSize,
		Location:        loc,
	})
	exports := service.NewExportService(leaves, loc, logr, nil, nil)

	scheduler := jobs.NewScheduler(logr)
	mustSchedule(logr, scheduler.Add("leave-refresh", cfg.Refresh.Schedule, cfg.Refresh.Timeout, refresher.Run))
	mustSchedule(logr, scheduler.Add("session-sweep", cfg.Sessions.SweepEvery, 0, func(context.Context) {
		if evicted := registry.Sweep(); evicted > 0 {
			logr.Sugar().Infow("view sessions evicted", "count", evicted)
		}
	}))

	handlers := handler.Handlers{
		Leaves:  handler.NewLeaveHandler(leaves, exports),
		Views:   handler.NewViewHandler(registry),
		Metrics: handler.NewMetricsHandler(metricsSvc, readiness),
	}
	if hub != nil {
		handlers.Stream = handler.NewStreamHandler(hub, leaves, logr)
	}

	if cfg.Slips.Enabled {
		slips, queue, err := buildSlips(cfg, store, metricsSvc, logr, loc)
		if err != nil {
			logr.Sugar().Fatalw("failed to init leave slips", "error", err)
		}
		queue.Start(ctx)
		defer queue.Stop()
		mustSchedule(logr, scheduler.Add("slip-cleanup", cfg.Slips.CleanupSchedule, time.Minute, func(taskCtx context.Context) {
			if removed := slips.Cleanup(taskCtx); removed > 0 {
				logr.Sugar().Infow("expired leave slips removed", "count", removed)
			}
		}))
		handlers.Slips = handler.NewSlipHandler(slips)
	}

	scheduler.Start()
	go refresher.Run(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, cfg.APIPrefix+"/stream"))
	r.Use(internalmiddleware.WithResponseMeta())

	handler.RegisterRoutes(r, cfg.APIPrefix, handlers)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "source", source.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if hub != nil {
		hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown", "error", err)
	}
}

func openSource(cfg *config.Config) (service.LeaveSource, *sqlx.DB, error) {
	switch cfg.Source.Kind {
	case config.SourceSQL:
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLLeaveSource(db, cfg.Source.GradeScope), db, nil
	case config.SourceHTTP, "":
		return repository.NewHTTPLeaveSource(cfg.Source.BaseURL, cfg.Source.RecordsPath, cfg.Source.Timeout), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown leave source %q", cfg.Source.Kind)
	}
}

func buildSlips(cfg *config.Config, store *repository.LeaveRecordStore, metricsSvc *service.MetricsService, logr *zap.Logger, loc *time.Location) (*service.LeaveSlipService, *jobs.Queue, error) {
	files, err := storage.NewLocalStorage(cfg.Slips.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	renderer, err := export.NewPDFExporter(cfg.Slips.FontPath)
	if err != nil {
		return nil, nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Slips.SignedURLSecret, cfg.Slips.SignedURLTTL)
	tokens := service.NewSlipTokenIssuer(cfg.Slips.TokenSecret, cfg.Slips.TokenTTL, loc)
	repo := repository.NewSlipJobRepository()
	slipCfg := service.LeaveSlipConfig{
		APIPrefix:     cfg.APIPrefix,
		VerifyBaseURL: cfg.Slips.VerifyBaseURL,
		ResultTTL:     cfg.Slips.SignedURLTTL,
		Location:      loc,
	}

	worker := service.NewLeaveSlipWorker(store, repo, files, signer, tokens, renderer, metricsSvc, logr, slipCfg)
	queue := jobs.NewQueue("leave-slips", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Slips.Workers,
		MaxRetries: cfg.Slips.Retries,
		OnGiveUp:   worker.GiveUp,
		Logger:     logr,
	})
	slips := service.NewLeaveSlipService(store, repo, queue, files, signer, tokens, metricsSvc, logr, slipCfg)
	return slips, queue, nil
}

func mustSchedule(logr *zap.Logger, err error) {
	if err != nil {
		logr.Sugar().Fatalw("failed to schedule task", "error", err)
	}
}
