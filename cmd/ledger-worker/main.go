package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/avalove/avalove-ledger/internal/config"
	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/pool"
	"github.com/avalove/avalove-ledger/internal/domain/settings"
	"github.com/avalove/avalove-ledger/internal/pkg/database"
	"github.com/avalove/avalove-ledger/internal/pkg/logger"
	"github.com/avalove/avalove-ledger/internal/pkg/metrics"
)

const snapshotTimeout = 30 * time.Second

type snapshotter interface {
	Record(ctx context.Context) (*pool.Snapshot, error)
}

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
		Service:     "ledger-worker",
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().Str("schedule", cfg.PoolSnapshotSchedule).Msg("Starting ledger-worker")

	db, err := database.NewPostgres(cfg.DatabaseURL, cfg.DBMaxOpenConn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if cfg.ApplySchema {
		if err := database.EnsureSchema(context.Background(), db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply ledger schema")
		}
	}

	// The worker never changes settings, so nothing listens for changes.
	settingsService := settings.NewService(settings.NewRepository(db), settings.Defaults{
		EarnRatePerSecond: cfg.EarnRatePerSecond,
		PoolCeiling:       cfg.DefaultPoolCeiling,
		ActiveWindow:      cfg.DecayActiveWindow,
	}, nil)
	accountant := pool.NewAccountant(earning.NewRepository(db), settingsService, metrics.Get())
	recorder := pool.NewRecorder(accountant, pool.NewSnapshotRepository(db))

	scheduler := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := scheduler.AddFunc(cfg.PoolSnapshotSchedule, snapshotJob(recorder)); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.PoolSnapshotSchedule).Msg("Invalid pool snapshot schedule")
	}

	scheduler.Start()
	log.Info().Msg("Cron jobs started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	ctx := scheduler.Stop()
	select {
	case <-ctx.Done():
		log.Info().Msg("ledger-worker stopped")
	case <-time.After(snapshotTimeout):
		log.Warn().Msg("ledger-worker forced to stop after timeout")
	}
}

func snapshotJob(recorder snapshotter) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()

		start := time.Now()
		snap, err := recorder.Record(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Pool snapshot failed")
			return
		}

		log.Info().
			Str("distributed", snap.Distributed.String()).
			Str("remaining", snap.Remaining.String()).
			Str("percentage", snap.Percentage.String()).
			Bool("over_distributed", snap.OverDistributed).
			Dur("took", time.Since(start)).
			Msg("Pool snapshot recorded")
	}
}
