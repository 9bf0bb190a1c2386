// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/research"
	"deepsearch-workers/internal/research/chat"
	"deepsearch-workers/internal/research/notify"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Researcher runs the research loop for one conversation.
type Researcher interface {
	Run(ctx context.Context, conv chat.Conversation) (*research.Outcome, error)
	Prompts() research.Prompts
}

// RunReader loads archived runs.
type RunReader interface {
	Get(ctx context.Context, runID string) (*research.RunRecord, error)
}

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type Options struct {
	// RequestTimeout bounds one POST /research call; zero means none.
	RequestTimeout time.Duration
	AllowedOrigins []string
	WriteTimeout   time.Duration
	Checks         map[string]Check
}

type Server struct {
	researcher Researcher
	registry   *notify.Registry
	runs       RunReader
	opts       Options
	logger     logger.Logger
}

// NewServer wires the HTTP surface. runs may be nil when run archiving is off.
func NewServer(researcher Researcher, registry *notify.Registry, runs RunReader, opts Options, log logger.Logger) *Server {
	return &Server{
		researcher: researcher,
		registry:   registry,
		runs:       runs,
		opts:       opts,
		logger:     log.With(map[string]interface{}{"component": "api"}),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/research", s.runResearch)
	r.Get("/ws/{sessionId}", notify.WebSocketHandler(
		s.registry,
		func(r *http.Request) string { return chi.URLParam(r, "sessionId") },
		s.opts.AllowedOrigins,
		s.opts.WriteTimeout,
		s.logger,
	))
	r.Get("/runs/{id}", s.getRun)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string, readTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"durationMs": time.Since(start).Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		})
	})
}

func shouldSuppressRequestLog(method, path string) bool {
	if method != http.MethodGet {
		return false
	}
	return path == "/health" || path == "/ready" || path == "/metrics" || strings.HasPrefix(path, "/ws/")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
	Sessions   int                        `json:"sessions"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.opts.Checks))
	for name := range s.opts.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK
	for _, name := range names {
		if err := s.opts.Checks[name](ctx); err != nil {
			subsystems[name] = subsystemStatus{Status: "error", Error: err.Error()}
			overall = http.StatusServiceUnavailable
			continue
		}
		subsystems[name] = subsystemStatus{Status: "ok"}
	}

	status := "ready"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{
		Status:     status,
		Subsystems: subsystems,
		Sessions:   len(s.registry.Sessions()),
	}, overall)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, statusCode int, message string, details ...string) {
	writeJSONStatus(w, errorResponse{Error: message, Details: details}, statusCode)
}
