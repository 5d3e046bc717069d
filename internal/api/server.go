// Package api provides the HTTP REST surface of the analysis pipeline.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/events"
	"github.com/hugo-lorenzo-mato/codepulse/internal/logging"
	"github.com/hugo-lorenzo-mato/codepulse/internal/snapshot"
)

// AnalysisService is the orchestrator surface the server depends on.
type AnalysisService interface {
	Start(ctx context.Context, projectID string, opts core.AnalysisOptions, force bool) (*core.AnalysisExecution, error)
	Cancel(ctx context.Context, id core.ExecutionID, reason string) (*core.AnalysisExecution, error)
	Status(ctx context.Context, id core.ExecutionID) (*core.AnalysisExecution, error)
	List(ctx context.Context, projectID string, limit int) ([]*core.AnalysisExecution, error)
	CaptureSnapshot(ctx context.Context, id core.ExecutionID) (*snapshot.SnapshotMeta, error)
}

// Server exposes analyses, snapshots, and event streaming over HTTP.
type Server struct {
	router     chi.Router
	service    AnalysisService
	executions core.ExecutionStore
	snapshots  snapshot.Store
	eventBus   *events.EventBus
	logger     *logging.Logger
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithEventBus enables the SSE endpoint.
func WithEventBus(bus *events.EventBus) ServerOption {
	return func(s *Server) {
		s.eventBus = bus
	}
}

// NewServer creates the API server.
func NewServer(service AnalysisService, executions core.ExecutionStore, snapshots snapshot.Store, opts ...ServerOption) *Server {
	s := &Server{
		service:    service,
		executions: executions,
		snapshots:  snapshots,
		logger:     logging.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.handleStartAnalysis)
			r.Route("/{executionID}", func(r chi.Router) {
				r.Get("/", s.handleGetAnalysis)
				r.Post("/cancel", s.handleCancelAnalysis)
				r.Get("/findings", s.handleGetFindings)
			})
		})

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/analyses", s.handleListAnalyses)
			r.Get("/snapshots", s.handleListSnapshots)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Post("/", s.handleCaptureSnapshot)
			r.Get("/compare", s.handleCompareSnapshots)
			r.Route("/{snapshotID}", func(r chi.Router) {
				r.Get("/", s.handleGetSnapshot)
				r.Get("/verify", s.handleVerifySnapshot)
			})
		})

		r.Get("/events", s.handleSSE)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps a domain error to its HTTP status.
func respondDomainError(w http.ResponseWriter, err error) {
	if status, ok := httpStatusForDomainError(err); ok {
		respondError(w, status, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListenAndServe starts the HTTP server and shuts it down gracefully when
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	return srv.ListenAndServe()
}
