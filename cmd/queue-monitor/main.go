package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/slot-token-queue/internal/config"
	"github.com/hackgods/slot-token-queue/internal/db"
	"github.com/hackgods/slot-token-queue/internal/logging"
	"github.com/hackgods/slot-token-queue/internal/metrics"
	"github.com/hackgods/slot-token-queue/internal/monitor"
	redisclient "github.com/hackgods/slot-token-queue/internal/redis"
	"github.com/hackgods/slot-token-queue/internal/slotqueue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.UsesPostgres() {
		logger.Fatal("queue-monitor reads shared state and needs POSTGRES_DSN")
	}

	logger.Info("queue-monitor starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.MonitorInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgOpts := cfg.PoolOptions("slotqueue-monitor")
	pgOpts.ReadOnly = true
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, pgOpts)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// read-only use, the locker is never taken
	svc := slotqueue.NewService(
		slotqueue.NewPgRepository(pgPool),
		redisclient.NewLocalSlotLocker(cfg.LockWait),
		slotqueue.WithLocation(cfg.Location),
		slotqueue.WithLogger(logger.Named("slotqueue")),
		slotqueue.WithMetrics(m),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
			stop()
		}
	}()

	monitor.New(svc, m, logger.Named("monitor")).Run(rootCtx, cfg.MonitorInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}
}
