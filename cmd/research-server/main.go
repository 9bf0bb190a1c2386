// cmd/research-server/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"deepsearch-workers/internal/api"
	"deepsearch-workers/internal/bootstrap"
	"deepsearch-workers/internal/common/config"
	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/common/observability"
	"deepsearch-workers/internal/research/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting research server...")

	obs := observability.New("research-server")
	defer obs.Shutdown()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := observability.InitTracing(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			zapLog.Fatal("tracing init failed", zap.Error(err))
		}
		defer shutdownTracing(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := notify.NewRegistry(log)

	services, err := bootstrap.Build(ctx, cfg, registry, obs, log)
	if err != nil {
		zapLog.Fatal("research services failed", zap.Error(err))
	}
	defer services.Close()

	checks := map[string]api.Check{}
	if services.Redis != nil {
		checks["redis"] = services.Redis.Ping
	}
	if services.Postgres != nil {
		checks["postgres"] = services.Postgres.Ping
	}
	if services.Elastic != nil {
		checks["elasticsearch"] = services.Elastic.Ping
	}

	// Runs started by this or any other process publish to Redis; the relay
	// delivers the ones whose WebSocket is held here.
	if cfg.Notifications.Mode == config.NotificationModeRedis {
		relay := notify.NewRedisRelay(services.Redis.Client, cfg.Notifications.ChannelPrefix, registry, log)
		go func() {
			if err := relay.Run(ctx, nil); err != nil && ctx.Err() == nil {
				zapLog.Error("progress relay stopped", zap.Error(err))
			}
		}()
	}

	var runs api.RunReader
	if services.Runs != nil {
		runs = services.Runs
	}

	server := api.NewServer(services.Orchestrator, registry, runs, api.Options{
		RequestTimeout: config.GetDuration(cfg.Server.RequestTimeout),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WriteTimeout:   config.GetDuration(cfg.Notifications.WriteTimeout),
		Checks:         checks,
	}, log)

	zapLog.Info("Research server listening", zap.String("addr", cfg.Server.Address))
	if err := server.Start(ctx, cfg.Server.Address, config.GetDuration(cfg.Server.ReadTimeout)); err != nil {
		zapLog.Fatal("research server failed", zap.Error(err))
	}
	zapLog.Info("Research server stopped gracefully")
}
