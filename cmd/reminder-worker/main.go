package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinicdesk/scheduler/internal/config"
	"github.com/clinicdesk/scheduler/internal/db"
	"github.com/clinicdesk/scheduler/internal/logging"
	"github.com/clinicdesk/scheduler/internal/schedule"
)

// The reminder worker periodically walks tomorrow's schedule and emits one
// reminder per live appointment. It is read-only; delivery (SMS, email) is
// left to whatever tails these logs.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
	)

	if cfg.StoreDriver != "postgres" {
		logger.Fatal("reminder-worker requires STORE_DRIVER=postgres")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pool, err := db.Connect(pgCtx, cfg.PostgresDSN, db.PoolSettings{})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to Postgres")

	store := schedule.NewPgStore(pool)

	runOnce(rootCtx, store, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, store, logger)
		}
	}
}

func runOnce(ctx context.Context, store schedule.Store, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	tomorrow := schedule.DateOf(time.Now().AddDate(0, 0, 1))

	appts, err := store.QueryAll(runCtx, schedule.Filter{Date: &tomorrow})
	if err != nil {
		logger.Error("reminder run error", zap.Error(err))
		return
	}

	sent := 0
	for _, appt := range appts {
		if appt.Status == schedule.StatusCancelled || appt.Status == schedule.StatusCompleted {
			continue
		}
		logger.Info("appointment reminder",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("patient_id", appt.PatientID.String()),
			zap.String("practitioner_id", appt.PractitionerID.String()),
			zap.String("date", string(appt.Date)),
			zap.String("start", string(appt.Start)),
		)
		sent++
	}

	logger.Info("reminder run complete",
		zap.String("date", string(tomorrow)),
		zap.Int("reminders", sent),
	)
}
