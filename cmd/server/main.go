package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bekzodm/jobscout/internal/api"
	"github.com/bekzodm/jobscout/internal/config"
	"github.com/bekzodm/jobscout/internal/core"
	"github.com/bekzodm/jobscout/internal/httpx"
	"github.com/bekzodm/jobscout/internal/notify"
	"github.com/bekzodm/jobscout/internal/scraper"
	"github.com/bekzodm/jobscout/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	dbStore, err := store.NewStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to store", zap.Error(err))
	}
	defer dbStore.Close()

	workDir, _ := os.Getwd()
	schemaPath := filepath.Join(workDir, "internal", "store", "schema.sql")
	if err := dbStore.RunMigrations(schemaPath); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	exec := httpx.NewExecutor(httpx.ExecutorConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.RateLimit.BurstSize,
		RequestDelay:      cfg.Scraping.RequestDelay,
		RotateUserAgent:   cfg.Identity.RotateUserAgent,
		Proxies:           proxyPool(cfg),
	}, logger)

	adapters := []scraper.SourceAdapter{
		scraper.NewRemoteOKAdapter(exec, cfg.Sources.RemoteOK, logger),
		scraper.NewYCombinatorAdapter(exec, cfg.Sources.YCombinator, logger),
		scraper.NewWWRAdapter(exec.Bucket(), cfg.Sources.WeWorkRemotely, logger),
		scraper.NewWellfoundAdapter(cfg.Sources.Wellfound, logger),
		scraper.NewOttaAdapter(cfg.Sources.Otta, logger),
	}

	var notifier notify.Notifier
	if cfg.Notify.SlackWebhookURL != "" {
		notifier = notify.NewSlackNotifier(cfg.Notify.SlackWebhookURL)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	orch := core.NewOrchestrator(adapters, dbStore, cfg.Scraping.RunTimeout, logger)
	metrics := core.NewRunMetrics(cfg.Scraping.Interval)
	scheduler := core.NewScheduler(core.SchedulerConfig{
		Enabled:        cfg.Scraping.Enabled,
		Interval:       cfg.Scraping.Interval,
		TargetPerRun:   cfg.Scraping.TargetPerRun,
		HousekeepEvery: cfg.Scraping.HousekeepEach,
		Retention:      cfg.Scraping.Retention,
	}, orch, metrics, dbStore, notifier, logger)
	scheduler.Start(context.Background())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(scheduler, dbStore, logger).Router(),
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := scheduler.Stop(ctx); err != nil {
		logger.Warn("scheduler did not stop cleanly", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
}

func proxyPool(cfg *config.Config) []string {
	if !cfg.Identity.ProxyRotation {
		return nil
	}
	return cfg.Identity.ProxyList
}
