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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicdesk/scheduler/internal/api"
	"github.com/clinicdesk/scheduler/internal/config"
	"github.com/clinicdesk/scheduler/internal/db"
	"github.com/clinicdesk/scheduler/internal/directory"
	"github.com/clinicdesk/scheduler/internal/lock"
	"github.com/clinicdesk/scheduler/internal/logging"
	"github.com/clinicdesk/scheduler/internal/schedule"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store_driver", cfg.StoreDriver),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pool  *pgxpool.Pool
		store schedule.Store
		dir   schedule.Directory
	)

	switch cfg.StoreDriver {
	case "postgres":
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pool, err = db.Connect(pgCtx, cfg.PostgresDSN, db.PoolSettings{
			MaxConns: int32(cfg.PGMaxConns),
			MinConns: int32(cfg.PGMinConns),
		})
		cancelPg()
		if err != nil {
			logger.Fatal("postgres connection error", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("connected to Postgres")

		if cfg.AutoMigrate {
			if err := db.Migrate(rootCtx, pool); err != nil {
				logger.Fatal("migration error", zap.Error(err))
			}
			logger.Info("migrations applied")
		}

		store = schedule.NewPgStore(pool)
		dir = directory.NewPgDirectory(pool)
	case "memory":
		// Standalone mode: volatile store, no identity verification.
		store = schedule.NewMemoryStore()
	}

	var (
		rdb    *redis.Client
		locker lock.Locker
	)
	if cfg.RedisAddr != "" {
		rdb, err = lock.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
		logger.Info("connected to Redis, using distributed locking")
	} else {
		locker = lock.NewMutexLocker()
		logger.Info("using in-process locking")
	}

	scheduler := schedule.NewScheduler(store, locker, schedule.SchedulerConfig{
		Directory:     dir,
		Logger:        logger,
		RetryAttempts: uint64(cfg.RetryAttempts),
		RetryBackoff:  cfg.RetryBackoff,
		StoreTimeout:  cfg.StoreTimeout,
	})

	router := api.NewRouter(api.RouterConfig{
		Scheduler: scheduler,
		Logger:    logger,
		PgPool:    pool,
		Redis:     rdb,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
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
