package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hackgods/slot-token-queue/internal/api"
	"github.com/hackgods/slot-token-queue/internal/config"
	"github.com/hackgods/slot-token-queue/internal/db"
	"github.com/hackgods/slot-token-queue/internal/logging"
	"github.com/hackgods/slot-token-queue/internal/metrics"
	redisclient "github.com/hackgods/slot-token-queue/internal/redis"
	"github.com/hackgods/slot-token-queue/internal/slotqueue"
)

var version = "dev"

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

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("time_zone", cfg.Location.String()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo   slotqueue.Repository
		pgPool *pgxpool.Pool
	)
	if cfg.UsesPostgres() {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.Open(pgCtx, cfg.PostgresDSN, cfg.PoolOptions("slotqueue-api"))
		cancelPg()
		if err != nil {
			logger.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()
		repo = slotqueue.NewPgRepository(pgPool)
		logger.Info("connected to Postgres")
	} else {
		repo = slotqueue.NewMemoryRepository()
		logger.Warn("POSTGRES_DSN not set, slots are kept in memory")
	}

	locker, rdb, err := redisclient.NewSlotLocker(rootCtx, cfg.RedisOptions(), cfg.LockTTL, cfg.LockWait)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis")
	} else {
		logger.Warn("REDIS_ADDR not set, slot locks are local to this process")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := slotqueue.NewService(repo, locker,
		slotqueue.WithLocation(cfg.Location),
		slotqueue.WithLogger(logger.Named("slotqueue")),
		slotqueue.WithMetrics(metrics.New(reg)),
	)

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		PgPool:   pgPool,
		Redis:    rdb,
		Gatherer: reg,
		Logger:   logger.Named("http"),
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
