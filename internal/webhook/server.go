package webhook

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/slackgw/internal/auth"
	"github.com/mattjoyce/slackgw/internal/credential"
	"github.com/mattjoyce/slackgw/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server represents the gateway HTTP server.
type Server struct {
	config     Config
	installer  Installer
	dispatcher EventDispatcher
	store      credential.Store
	logger     *slog.Logger
	server     *http.Server
	pages      *template.Template
}

// New creates a new server instance.
func New(config Config, installer Installer, dispatcher EventDispatcher, store credential.Store, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Server{
		config:     config,
		installer:  installer,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
		pages:      template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server starting", "listen", s.config.Listen, "admin", s.adminEnabled())

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/slack", func(r chi.Router) {
		r.Get("/install", s.handleInstall)
		r.Post("/events", s.handleEvents)
		r.Get("/oauth_redirect", s.handleOAuthRedirect)
		r.Get("/oauth_redirect/completed", s.handleCompleted)
	})

	if s.adminEnabled() {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.config.AdminAPIKey, s.config.AdminTokens, auth.ScopeInstallationsRW))
			r.Post("/admin/installations/reset", s.handleReset)
		})
	}

	return r
}

func (s *Server) adminEnabled() bool {
	return s.config.AdminAPIKey != "" || len(s.config.AdminTokens) > 0
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Query strings are omitted; the OAuth redirect carries the code there.
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.DeleteAll(r.Context())
	if err != nil {
		s.logger.Error("failed to reset installations", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to reset installations")
		return
	}

	metrics.AdminResets.Inc()
	s.logger.Warn("all installations deleted", "deleted", n, "request_id", middleware.GetReqID(r.Context()))
	s.respondJSON(w, http.StatusOK, ResetResponse{Deleted: n})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
