package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/config"
	"github.com/hackgods/telemed-scheduling/internal/db"
	"github.com/hackgods/telemed-scheduling/internal/doctor"
	"github.com/hackgods/telemed-scheduling/internal/logging"
	"github.com/hackgods/telemed-scheduling/internal/metrics"
	redisclient "github.com/hackgods/telemed-scheduling/internal/redis"
	"github.com/hackgods/telemed-scheduling/internal/retention"
	"github.com/hackgods/telemed-scheduling/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("prod", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "sweeper").Logger()

	at, err := schedule.ParseClock(cfg.SweepAt)
	if err != nil {
		logger.Fatal().Err(err).Str("sweep_at", cfg.SweepAt).Msg("invalid SWEEP_AT")
	}
	logger.Info().Str("env", cfg.Env).Str("sweep_at", at.String()).Str("tz", cfg.Location.String()).Msg("sweeper starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	registry := metrics.NewRegistry()
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, registry)
	go func() {
		logger.Info().Str("addr", metricsSrv.Addr).Msg("metrics listener started")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics listener error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics listener shutdown failed")
		}
	}()

	doctors := doctor.NewService(doctor.NewPgRepository(pgPool), doctor.ServiceConfig{
		Location:      cfg.Location,
		HorizonDays:   cfg.SlotHorizonDays,
		RemoteTimeout: cfg.RemoteTimeout,
	}, logger)

	svc := appointment.NewService(appointment.Dependencies{
		Repo:    appointment.NewPgRepository(pgPool),
		Doctors: doctors,
		Cache:   appointment.NewRedisListCache(rdb, cfg.ListCacheTTL, logger),
		Metrics: metrics.NewSchedulingMetrics(registry),
	}, appointment.ServiceConfig{
		Location:      cfg.Location,
		HorizonDays:   cfg.SlotHorizonDays,
		RemoteTimeout: cfg.RemoteTimeout,
	}, logger)

	// the lease lives as long as one sweep may take
	lease := redisclient.NewRedisLocker(rdb, cfg.SweepTimeout)

	sweeper := retention.NewSweeper(svc, lease, retention.Config{
		At:       at,
		Startup:  cfg.SweepStartup,
		Timeout:  cfg.SweepTimeout,
		Location: cfg.Location,
	}, logger)

	if err := sweeper.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("sweeper stopped")
	}
	logger.Info().Msg("shutdown signal received, sweeper stopped")
}
