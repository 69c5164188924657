package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"examdesk/internal/api"
	"examdesk/internal/composer"
	"examdesk/internal/config"
	"examdesk/internal/dataapi"
	"examdesk/internal/journal"
	"examdesk/internal/metrics"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = logger.Level(cfg.LogLevel())

	client := dataapi.NewClient(dataapi.Options{
		BaseURL:       cfg.API.BaseURL,
		APIKey:        cfg.API.APIKey,
		Timeout:       cfg.APITimeout(),
		RatePerSecond: cfg.API.RatePerSecond,
		Burst:         cfg.API.Burst,
	}, &logger)

	checks := []api.ReadyCheck{{Name: "data service", Check: client.HealthCheck}}

	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.CacheTTL())
		checks = append(checks, api.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	session := composer.New(client, composer.Options{
		DefaultDuration: cfg.DefaultDuration(),
		Print:           cfg.PrintOptions(),
	}, &logger)

	var (
		history api.HistoryReader
		jr      *journal.Journal
	)
	if cfg.Journal.Enabled {
		jr, err = journal.Open(cfg.Journal.Path, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open journal error")
		}
		defer jr.Close()
		session.UseHistorySink(jr)
		session.UseDeletionSink(jr)
		history = jr
		checks = append(checks, api.ReadyCheck{Name: "journal", Check: jr.Ping})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if jr != nil && cfg.Journal.Backup.Enabled {
		backup := journal.NewBackupService(jr, journal.BackupConfig{
			Dir:           cfg.Journal.Backup.Path,
			Interval:      cfg.BackupInterval(),
			RetentionDays: cfg.Journal.Backup.RetentionDays,
		}, &logger)
		go backup.Start(ctx)
	}

	if err := session.LoadReference(ctx); err != nil {
		// The console can retry through POST /api/session/reload.
		logger.Error().Err(err).Msg("initial reference load failed")
	}

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := api.NewHTTPServer(cfg.Server.Address, session, history, checks, &logger)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("data_service", cfg.API.BaseURL).Msg("examdesk started")
	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("console API error")
	}
	logger.Info().Msg("examdesk stopped")
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
