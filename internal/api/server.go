package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nelcapetown/audible-scraper/internal/pipeline"
)

// StatusSource provides the current run state.
type StatusSource interface {
	Snapshot() pipeline.Snapshot
}

type Handlers struct {
	status StatusSource
	logger *slog.Logger
}

func NewHandlers(status StatusSource, logger *slog.Logger) *Handlers {
	return &Handlers{status: status, logger: logger}
}

// Health reports liveness. A failed run is reported as an error.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.status.Snapshot()

	health := map[string]interface{}{
		"status": "ok",
		"stage":  snap.Stage,
	}
	status := http.StatusOK
	if snap.Stage == pipeline.StageFailed {
		health["status"] = "error"
		health["message"] = snap.Error
		status = http.StatusServiceUnavailable
	}

	h.respondJSON(w, status, health)
}

// GetStatus returns the run snapshot.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.status.Snapshot())
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// NewRouter mounts /health, /api/v1/status and, when registry is set, /metrics.
func NewRouter(status StatusSource, registry *prometheus.Registry, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	handlers := NewHandlers(status, logger.With("component", "api"))

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handlers.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", handlers.GetStatus)
	})
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return r
}

// Server serves the status router until its context ends.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "status_server"),
	}
}

// Run listens on the configured address and shuts down gracefully once ctx
// is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server starting", "addr", ln.Addr().String())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("status server shutdown failed", "error", err)
		return err
	}
	s.logger.Info("status server stopped")
	return nil
}
