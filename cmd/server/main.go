package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Padu76/lifeOS-sub000/internal"
	"github.com/Padu76/lifeOS-sub000/internal/api"
	"github.com/Padu76/lifeOS-sub000/internal/auth"
	"github.com/Padu76/lifeOS-sub000/internal/burnout"
	"github.com/Padu76/lifeOS-sub000/internal/config"
	"github.com/Padu76/lifeOS-sub000/internal/content"
	"github.com/Padu76/lifeOS-sub000/internal/device"
	"github.com/Padu76/lifeOS-sub000/internal/pattern"
	"github.com/Padu76/lifeOS-sub000/internal/predict"
	"github.com/Padu76/lifeOS-sub000/internal/scheduler"
	"github.com/Padu76/lifeOS-sub000/internal/service"
	"github.com/Padu76/lifeOS-sub000/internal/storage"
	"github.com/Padu76/lifeOS-sub000/internal/worker"
)

func main() {
	cfg := config.Load()
	logger, err := internal.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := storage.NewRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init storage: %v", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Errorf("storage close: %v", err)
		}
	}()

	var (
		status    scheduler.DeliveryContextProvider = device.StaticStatus{Context: device.Permissive}
		transport scheduler.Transport               = device.NewLogTransport(logger)
	)
	if cfg.RedisAddr != "" {
		rdb, err := device.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		status = device.NewRedisStatus(rdb)
		transport = device.NewRedisTransport(rdb, cfg.RedisChannel, logger)
	} else {
		logger.Warnf("REDIS_ADDR not set: device status is static and deliveries are only logged")
	}

	guard := burnout.NewGuard()
	schedCfg := scheduler.DefaultConfig()
	schedCfg.DailyMax = cfg.DailyMax
	schedCfg.SendTimeout = cfg.SendTimeout
	sched, err := scheduler.New(schedCfg, scheduler.Deps{
		Gate:      scheduler.DefaultGate{},
		Transport: transport,
		Device:    status,
		Patterns:  repos.Patterns,
		Repo:      repos.Interventions,
	}, guard, logger)
	if err != nil {
		logger.Fatalf("failed to init scheduler: %v", err)
	}
	if _, err := sched.Restore(ctx); err != nil {
		logger.Fatalf("failed to restore pending interventions: %v", err)
	}

	planner := service.NewPlanner(service.PlannerConfig{
		DefaultMinGap: cfg.DefaultMinGap,
		PatternMaxAge: cfg.PatternRebuildInterval,
	}, service.PlannerDeps{
		Analyzer:  pattern.NewAnalyzer(repos.History, time.Duration(cfg.HistoryLookbackDays)*24*time.Hour, logger),
		Predictor: predict.NewPredictor(guard),
		Scheduler: sched,
		History:   repos.History,
		Patterns:  repos.Patterns,
		Catalog:   content.NewStaticCatalog(),
	}, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestIDMiddleware(), api.AccessLogMiddleware(logger))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	provider := auth.NewProvider(cfg.Env, cfg.AuthToken, cfg.DevUserID, cfg.AuthServiceURL, logger)
	protected := r.Group("/")
	protected.Use(auth.AuthMiddleware(provider, cfg))
	app := api.NewApp(logger, planner, sched, time.Now)
	api.RegisterRoutes(protected, app)

	if cfg.CronToken == "" {
		logger.Infof("CRON_TOKEN not set: POST /scheduler/tick is closed, the in-process sweeper drives delivery")
	}
	operator := r.Group("/")
	operator.Use(auth.OperatorMiddleware(cfg.CronToken))
	api.RegisterOperatorRoutes(operator, app)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.NewSweeper(sched, cfg.TickInterval, time.Now, logger).Start(gctx)
		return nil
	})
	g.Go(func() error {
		worker.NewRebuilder(planner, cfg.PatternRebuildInterval, logger).Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Infof("server running on %s (env=%s, storage=%s)", cfg.HTTPAddr, cfg.Env, cfg.DBType)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server stopped with error: %v", err)
	}
	logger.Info("shutdown complete")
}
