package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/loomworks/loom/api"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/ratelimit"
	"github.com/loomworks/loom/internal/replay"
	"github.com/loomworks/loom/internal/secrets"
	"github.com/loomworks/loom/internal/storage"
)

// Server is the Loom HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Sealer, Limiter, MCPServer, UIFS.
type ServerConfig struct {
	// Required dependencies.
	DB       *storage.DB
	Renderer engine.Renderer
	Replayer *replay.Orchestrator
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Sealer    *secrets.Sealer
	Limiter   ratelimit.Limiter
	Scheduler *engine.Scheduler
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// Optional embedded UI filesystem (SPA).
	UIFS fs.FS
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		Renderer:            cfg.Renderer,
		Scheduler:           cfg.Scheduler,
		Replayer:            cfg.Replayer,
		Sealer:              cfg.Sealer,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	// Render and replay do real work per call; everything else is cheap
	// storage access and goes unthrottled.
	renderRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Render endpoints (rate limited).
	mux.Handle("POST /api/preview", renderRL(http.HandlerFunc(h.HandlePreview)))
	mux.Handle("POST /api/execute", renderRL(http.HandlerFunc(h.HandleExecute)))
	mux.Handle("POST /api/datasets/{id}/replay", renderRL(http.HandlerFunc(h.HandleReplayDataset)))
	if cfg.Scheduler != nil {
		mux.Handle("POST /api/preview/live", renderRL(http.HandlerFunc(h.HandleLivePreview)))
	}

	// Projects.
	mux.HandleFunc("POST /api/projects", h.HandleCreateProject)
	mux.HandleFunc("GET /api/projects", h.HandleListProjects)
	mux.HandleFunc("GET /api/projects/{id}", h.HandleGetProject)

	// Datasets and run history.
	mux.HandleFunc("POST /api/datasets", h.HandleCreateDataset)
	mux.HandleFunc("GET /api/datasets", h.HandleListDatasets)
	mux.HandleFunc("GET /api/datasets/{id}", h.HandleGetDataset)
	mux.HandleFunc("GET /api/datasets/{id}/runs", h.HandleListDatasetRuns)
	mux.HandleFunc("GET /api/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("GET /api/runs/{a}/compare/{b}", h.HandleCompareRuns)

	// Chat sessions (chat:// resolver targets).
	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/messages", h.HandleAppendSessionMessages)

	// Data sources (sealed connection records).
	mux.HandleFunc("POST /api/datasources", h.HandleCreateDataSource)
	mux.HandleFunc("GET /api/datasources", h.HandleListDataSources)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// Health (no rate limit).
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	// Machine-readable API description.
	mux.HandleFunc("GET /api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.OpenAPISpec)
	})

	// SPA: serve the embedded UI at the root path.
	// Registered last so all API routes take priority via the mux's longest-match rule.
	if cfg.UIFS != nil {
		mux.Handle("/", newSPAHandler(cfg.UIFS))
		cfg.Logger.Info("ui enabled, serving SPA at /")
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
