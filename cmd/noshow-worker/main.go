package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetdesk/clinic-scheduling/internal/booking"
	"github.com/vetdesk/clinic-scheduling/internal/config"
	"github.com/vetdesk/clinic-scheduling/internal/db"
	redisclient "github.com/vetdesk/clinic-scheduling/internal/redis"
	"github.com/vetdesk/clinic-scheduling/internal/registry"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "noshow-worker").Logger()
	logger.Info().Msg("noshow-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("grace", cfg.NoShowGrace).
		Msg("running no-show worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	locker := redisclient.NewRedisResourceLocker(rdb, redisclient.LockerConfig{
		TTL:           cfg.LockTTL,
		Wait:          cfg.LockWait,
		RetryInterval: cfg.LockRetry,
	})

	repo := booking.NewPgRepository(pgPool)
	svc := booking.NewService(repo, registry.NewPgStore(pgPool), locker, logger)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.NoShowGrace, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping no-show worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.NoShowGrace, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, grace time.Duration, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	flagged, err := svc.FlagNoShows(runCtx, grace)
	if err != nil {
		logger.Error().Err(err).Msg("no-show run error")
		return
	}
	logger.Info().Int("flagged", flagged).Dur("took", time.Since(start)).Msg("no-show run complete")
}
