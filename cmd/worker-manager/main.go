// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deepsearch-workers/internal/bootstrap"
	"deepsearch-workers/internal/common/camunda"
	"deepsearch-workers/internal/common/config"
	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/common/observability"

	dr "deepsearch-workers/internal/workers/ai-conversation/deep-research"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := observability.InitTracing(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			zapLog.Fatal("tracing init failed", zap.Error(err))
		}
		defer shutdownTracing(context.Background())
	}

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	zeebe, err := camunda.NewClientWithConfig(ctx, camunda.ClientConfigFrom(cfg.Camunda))
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Research services (Redis, PostgreSQL, Elasticsearch as configured) ---
	// Progress from a worker can only reach a browser through Redis; in
	// local mode it is discarded.
	services, err := bootstrap.Build(ctx, cfg, nil, obs, log)
	if err != nil {
		zapLog.Fatal("research services failed", zap.Error(err))
	}
	defer services.Close()

	// --- Register Workers ---
	var workers []worker.JobWorker

	drLogAdapter := &deepResearchLoggerAdapter{log}
	wcfg := config.GetWorkerConfig(cfg, dr.TaskType)
	handlerCfg := dr.LoadConfig()
	handlerCfg.Timeout = config.GetDuration(wcfg.Timeout)
	handler := dr.NewHandler(handlerCfg, services.Orchestrator, drLogAdapter)
	if w := camunda.StartWorker(zeebe.Zeebe(), dr.TaskType, wcfg, handler.Handle, log); w != nil {
		workers = append(workers, w)
	}
	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	mux := newHealthMux(zeebe.HealthCheck)
	healthServer := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: mux}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.Server.MetricsAddress))
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	_ = healthServer.Shutdown(shutdownCtx)

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// newHealthMux serves liveness, readiness, Prometheus metrics and pprof.
func newHealthMux(ready func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ready", http.StatusOK
		if err := ready(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Logger adapter for workers that declare their own Logger interface
type deepResearchLoggerAdapter struct {
	logger.Logger
}

func (a *deepResearchLoggerAdapter) With(fields map[string]interface{}) dr.Logger {
	return &deepResearchLoggerAdapter{a.Logger.With(fields)}
}
