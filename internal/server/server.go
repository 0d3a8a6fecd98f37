package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kumo/internal/ratelimit"
	"github.com/ashita-ai/kumo/internal/service/playback"
	"github.com/ashita-ai/kumo/internal/service/predict"
	"github.com/ashita-ai/kumo/internal/storage"
)

// Server is the Kumo HTTP server.
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
// Optional fields (nil-safe): Limiter, Broker, MCPServer, DashboardFS,
// OpenAPISpec, ExtraRoutes, Middlewares.
type ServerConfig struct {
	// Required dependencies.
	Scheduler   *playback.Scheduler
	Predictions *predict.Service
	Store       *storage.Store
	Logger      *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	Broker    *Broker
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// DashboardFS is served at / when set.
	DashboardFS fs.FS
	OpenAPISpec []byte // Embedded OpenAPI YAML.

	// ExtraRoutes are registered on the mux after the built-in API routes
	// and before the dashboard catch-all.
	ExtraRoutes []Route
	// Middlewares wrap the mux inside the built-in chain, outermost first.
	Middlewares []func(http.Handler) http.Handler
}

// Route is an additional handler mounted on the server's mux.
type Route struct {
	Pattern string
	Handler http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Scheduler:           cfg.Scheduler,
		Predictions:         cfg.Predictions,
		Store:               cfg.Store,
		Broker:              cfg.Broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	// Starting a run synthesizes a whole flight on the request path.
	runsRL := ratelimit.Middleware(cfg.Limiter, "runs", ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)
	importRL := ratelimit.Middleware(cfg.Limiter, "predictions", ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Runs.
	mux.Handle("POST /v1/runs", runsRL(http.HandlerFunc(h.HandleStartRun)))
	mux.HandleFunc("GET /v1/runs", h.HandleListRuns)
	mux.HandleFunc("GET /v1/runs/active", h.HandleListActiveRuns)
	mux.HandleFunc("GET /v1/runs/{run_id}/samples", h.HandleRunSamples)
	mux.HandleFunc("GET /v1/runs/{run_id}/export", h.HandleExportRun)
	mux.HandleFunc("POST /v1/runs/{run_id}/stop", h.HandleStopRun)
	mux.HandleFunc("DELETE /v1/runs/{run_id}", h.HandleDeleteRun)

	// Prediction groups.
	mux.Handle("POST /v1/predictions", importRL(http.HandlerFunc(h.HandleImportPredictions)))
	mux.HandleFunc("GET /v1/predictions", h.HandleListPredictions)
	mux.HandleFunc("GET /v1/predictions/{id}", h.HandleGetPrediction)
	mux.HandleFunc("DELETE /v1/predictions/{id}", h.HandleDeletePrediction)

	// Event streams (no rate limit: long-lived connections).
	mux.HandleFunc("GET /v1/subscribe", h.HandleSubscribe)
	mux.HandleFunc("GET /v1/ws", h.HandleWebSocket)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	for _, rt := range cfg.ExtraRoutes {
		mux.Handle(rt.Pattern, rt.Handler)
	}

	// Registered last so all API routes take priority via the mux's longest-match rule.
	if cfg.DashboardFS != nil {
		mux.Handle("/", newDashboardHandler(cfg.DashboardFS))
		cfg.Logger.Info("dashboard enabled, serving at /")
	}

	var handler http.Handler = mux
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
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

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server. Long-lived SSE and
// WebSocket handlers end when the broker closes their subscriptions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
