package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/telemed-scheduling/internal/api"
	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/config"
	"github.com/hackgods/telemed-scheduling/internal/db"
	"github.com/hackgods/telemed-scheduling/internal/doctor"
	"github.com/hackgods/telemed-scheduling/internal/logging"
	"github.com/hackgods/telemed-scheduling/internal/metrics"
	"github.com/hackgods/telemed-scheduling/internal/notify"
	redisclient "github.com/hackgods/telemed-scheduling/internal/redis"
	"github.com/hackgods/telemed-scheduling/internal/session"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("prod", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "api-server").Logger()
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("tz", cfg.Location.String()).Msg("api-server starting up")

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

	// Connect Redis
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

	sender, err := notify.NewEmailSender(rootCtx, notify.ProviderConfig{
		Provider:       cfg.NotifyProvider,
		SendGridAPIKey: cfg.SendGridAPIKey,
		FromEmail:      cfg.NotifyFromEmail,
		FromName:       cfg.NotifyFromName,
		AWSRegion:      cfg.AWSRegion,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("notification provider error")
	}

	registry := metrics.NewRegistry()
	schedMetrics := metrics.NewSchedulingMetrics(registry)

	doctors := doctor.NewService(doctor.NewPgRepository(pgPool), doctor.ServiceConfig{
		Location:      cfg.Location,
		HorizonDays:   cfg.SlotHorizonDays,
		RemoteTimeout: cfg.RemoteTimeout,
	}, logger.With().Str("component", "doctor").Logger())

	appointments := appointment.NewService(appointment.Dependencies{
		Repo:     appointment.NewPgRepository(pgPool),
		Doctors:  doctors,
		Locker:   redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		Cache:    appointment.NewRedisListCache(rdb, cfg.ListCacheTTL, logger),
		Notifier: notify.NewEmailInviteDispatcher(sender),
		Metrics:  schedMetrics,
	}, appointment.ServiceConfig{
		Location:      cfg.Location,
		HorizonDays:   cfg.SlotHorizonDays,
		RemoteTimeout: cfg.RemoteTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	}, logger.With().Str("component", "appointment").Logger())

	router := api.NewRouter(api.RouterConfig{
		Appointments: appointments,
		Doctors:      doctors,
		Gate:         session.NewGate(cfg.Location, schedMetrics),
		Postgres:     pgPool,
		Redis:        rdb,
		Gatherer:     registry,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}
