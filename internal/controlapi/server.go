// Package controlapi is the thin HTTP dispatcher over the orchestrator's
// core components (C9): authenticate, authorize, deserialize, call the
// appropriate core operation, serialize the response, translate core
// errors into the external error taxonomy. It holds no business logic
// of its own.
package controlapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudorch/orchestrator/internal/auth"
	"github.com/cloudorch/orchestrator/internal/catalog"
	"github.com/cloudorch/orchestrator/internal/costmodel"
	"github.com/cloudorch/orchestrator/internal/engine"
	"github.com/cloudorch/orchestrator/internal/eventbus"
	"github.com/cloudorch/orchestrator/internal/metrics"
	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/placement"
	"github.com/cloudorch/orchestrator/internal/provider"
	"github.com/cloudorch/orchestrator/pkg/health"
	"github.com/cloudorch/orchestrator/pkg/profiling"
)

// Config configures the HTTP listener and its timeouts.
type Config struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	EnableCORS     bool
	EnableMetrics  bool
	EnableDebugMux bool
}

// DefaultConfig mirrors the teacher's server default timeouts.
func DefaultConfig() Config {
	return Config{
		Address:        ":8080",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		EnableCORS:     true,
		EnableMetrics:  true,
		EnableDebugMux: false,
	}
}

// Server composes every core component behind one HTTP surface.
type Server struct {
	httpServer *http.Server
	config     Config
	logger     *slog.Logger

	authSvc    *auth.Service
	cat        *catalog.Catalog
	classifier *placement.Classifier
	costs      *costmodel.Model
	eng        *engine.Engine
	bus        *eventbus.Bus
	collector  *metrics.Collector
	healthMon  *health.Monitor
	providers  map[provider.Name]provider.Adapter
	memMon     *profiling.MemoryMonitor

	refreshes *refreshTracker
}

// New builds a Server and registers its routes. Any of
// collector/healthMon/memMon may be nil; the corresponding endpoint
// degrades to a minimal response or is omitted entirely.
func New(config Config, authSvc *auth.Service, cat *catalog.Catalog, classifier *placement.Classifier, costs *costmodel.Model, eng *engine.Engine, bus *eventbus.Bus, collector *metrics.Collector, healthMon *health.Monitor, memMon *profiling.MemoryMonitor, providers map[provider.Name]provider.Adapter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:     config,
		logger:     logger,
		authSvc:    authSvc,
		cat:        cat,
		classifier: classifier,
		costs:      costs,
		eng:        eng,
		bus:        bus,
		collector:  collector,
		healthMon:  healthMon,
		providers:  providers,
		memMon:     memMon,
		refreshes:  newRefreshTracker(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", s.handleRegister)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/catalog/objects", s.requireRole(model.RoleViewer, s.handleCatalogObjects))
	mux.HandleFunc("/catalog/refresh", s.requireRole(model.RoleAdmin, s.handleCatalogRefresh))
	mux.HandleFunc("/placement/recommendations", s.requireRole(model.RoleViewer, s.handleRecommendations))
	mux.HandleFunc("/placement/tier-distribution", s.requireRole(model.RoleViewer, s.handleTierDistribution))
	mux.HandleFunc("/migrations", s.requireRole(model.RoleViewer, s.handleMigrationsCollection))
	mux.HandleFunc("/migrations/", s.requireRole(model.RoleViewer, s.handleMigrationByID))
	mux.HandleFunc("/events/recent", s.requireRole(model.RoleViewer, s.handleEventsRecent))
	mux.HandleFunc("/events/stream", s.requireRole(model.RoleViewer, s.handleEventsStream))
	mux.HandleFunc("/health", s.handleHealth)
	if config.EnableMetrics && collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}
	if config.EnableDebugMux && memMon != nil {
		mux.Handle("/debug/", s.requireRole(model.RoleAdmin, memMon.Handler().ServeHTTP))
	}

	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	if config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// ListenAndServe starts the HTTP server, blocking until it stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("control API listening", slog.String("address", s.config.Address))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
