// Package server exposes the redaction pipeline over HTTP. Routing,
// authentication, and audit recording live here — the pipeline itself
// stays transport-agnostic.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/veil-io/veil/internal/audit"
	"github.com/veil-io/veil/internal/otel"
	"github.com/veil-io/veil/internal/pipeline"
)

const defaultTimeout = 5 * time.Minute

// Server holds all dependencies for the HTTP API.
type Server struct {
	router     *chi.Mux
	pipeline   *pipeline.Pipeline
	auditStore *audit.Store
	apiKey     string
	startTime  time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAuditStore enables per-run audit recording.
func WithAuditStore(store *audit.Store) Option {
	return func(s *Server) { s.auditStore = store }
}

// WithAPIKey enables X-API-Key authentication on the redaction endpoint.
// An empty key leaves the endpoint open (local development).
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// NewServer builds a Server around a configured pipeline.
func NewServer(p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		pipeline:  p,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultTimeout))
	r.Use(otel.Middleware())

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/v1/redact", s.handleRedact)
		r.Get("/v1/runs", s.handleListRuns)
	})

	return r
}

// requireAPIKey rejects requests without the configured X-API-Key header.
// No-op when no key is configured.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
