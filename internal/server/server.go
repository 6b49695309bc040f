// Package server provides the HTTP API for the risk and incident search tools.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Marvins20/ai-ethics-multiagents/internal/config"
	"github.com/Marvins20/ai-ethics-multiagents/internal/ingest"
	"github.com/Marvins20/ai-ethics-multiagents/internal/metrics"
	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/rag"
	"github.com/Marvins20/ai-ethics-multiagents/internal/refs"
)

// RiskSearcher searches the risk collection.
type RiskSearcher interface {
	Search(ctx context.Context, query string, topK int) (rag.Answer, error)
}

// IncidentSearcher searches the incident collection for a project's actions.
type IncidentSearcher interface {
	Search(ctx context.Context, projectDescription, action string, topK int) (rag.Answer, error)
	SearchActions(ctx context.Context, projectDescription string, actions []string, topK int) []rag.ActionResult
}

// ReportResolver turns reference lists into report records.
type ReportResolver interface {
	Resolve(ctx context.Context, values []any) ([]models.Report, error)
	ResolveString(ctx context.Context, s string) ([]models.Report, refs.ListFormat, error)
}

// ToolCaller dispatches named tool calls.
type ToolCaller interface {
	Tools() []rag.ToolSpec
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// Ingester runs ingestion. An empty collection name means every loader.
type Ingester interface {
	Ingest(ctx context.Context, collection string) ([]ingest.Result, error)
}

// Status is the service state reported by GET /api/v1/status.
type Status struct {
	Collections    map[string]int `json:"collections"`
	Reports        int            `json:"reports"`
	Breaker        string         `json:"breaker,omitempty"`
	DiskUsageBytes int64          `json:"disk_usage_bytes,omitempty"`
	WatchedSources []string       `json:"watched_sources,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
}

// StatusReporter reports service state.
type StatusReporter interface {
	Status(ctx context.Context) (Status, error)
}

// Deps are the services behind the routes. A nil dependency makes its routes answer
// 501 Not Implemented.
type Deps struct {
	Risks     RiskSearcher
	Incidents IncidentSearcher
	Resolver  ReportResolver
	Tools     ToolCaller
	Ingest    Ingester
	Status    StatusReporter
	Metrics   *metrics.Metrics
}

// Server is the HTTP server for the search API.
type Server struct {
	deps        Deps
	config      *config.ServerConfig
	defaultTopK int
	maxTopK     int
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies. search supplies the top_k
// default and ceiling; nil uses the built-in defaults.
func NewServer(deps Deps, cfg *config.ServerConfig, search *config.SearchConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:        deps,
		config:      cfg,
		defaultTopK: config.DefaultTopK,
		maxTopK:     config.DefaultMaxTopK,
		logger:      logger,
	}
	if search != nil {
		if search.DefaultTopK > 0 {
			s.defaultTopK = search.DefaultTopK
		}
		if search.MaxTopK > 0 {
			s.maxTopK = search.MaxTopK
		}
	}
	return s
}

// Router returns the HTTP handler serving every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(s.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/risks/search", s.handleSearchRisks)
		r.Post("/incidents/search", s.handleSearchIncidents)
		r.Post("/reports/resolve", s.handleResolveReports)
		r.Get("/tools", s.handleListTools)
		r.Post("/tools/{name}", s.handleCallTool)
		r.Post("/ingest", s.handleIngest)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// topK clamps a requested result count to the configured range.
func (s *Server) topK(requested int) int {
	if requested <= 0 {
		return s.defaultTopK
	}
	if requested > s.maxTopK {
		return s.maxTopK
	}
	return requested
}
