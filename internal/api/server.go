// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/service"
	"github.com/ledger-sync/internal/storage"
	"github.com/ledger-sync/internal/worker"
)

// Service interfaces for dependency injection and testing

// ImportServiceInterface defines the importer operations used by the API
type ImportServiceInterface interface {
	ImportRaw(ctx context.Context, raw []byte) (*service.ImportResult, error)
}

// SnapshotReader defines the read side of the snapshot store
type SnapshotReader interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Latest(ctx context.Context, prefix string) (*storage.Snapshot, error)
}

// JobStatusProvider reports scheduled job status
type JobStatusProvider interface {
	Status() []worker.JobStatus
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	importer   ImportServiceInterface
	snapshots  SnapshotReader
	jobs       JobStatusProvider
	checks     map[string]HealthCheck
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int   // per client
	MaxBodyBytes    int64 // statement upload limit
}

// NewServer creates a new API server instance. jobs and checks may be nil.
func NewServer(
	config *ServerConfig,
	importer ImportServiceInterface,
	snapshots SnapshotReader,
	jobs JobStatusProvider,
	checks map[string]HealthCheck,
	logger *logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:    mux.NewRouter(),
		importer:  importer,
		snapshots: snapshots,
		jobs:      jobs,
		checks:    checks,
		logger:    logger,
		config:    config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSec)

	// Set up middleware (order matters!)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes. Routes are registered on the root
// router so a method mismatch is reported as 405.
func (s *Server) setupRoutes() {
	s.router.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/statements", s.handleImportStatement).Methods("POST")
	s.router.HandleFunc("/api/snapshots", s.handleListSnapshots).Methods("GET")
	s.router.HandleFunc("/api/snapshots/latest", s.handleLatestSnapshot).Methods("GET")
	s.router.HandleFunc("/api/jobs", s.handleJobs).Methods("GET")
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]interface{}{
		"status":  "healthy",
		"service": "ledger-sync",
	}

	if len(s.checks) > 0 {
		deps := make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				continue
			}
			deps[name] = "ok"
		}
		body["dependencies"] = deps
	}

	respondJSON(w, status, body)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
