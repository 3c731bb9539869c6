package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/jobwatch/internal/auth"
	"github.com/ashita-ai/jobwatch/internal/ctxutil"
	"github.com/ashita-ai/jobwatch/internal/ratelimit"
	"github.com/ashita-ai/jobwatch/internal/service/ingest"
	"github.com/ashita-ai/jobwatch/internal/service/review"
	"github.com/ashita-ai/jobwatch/internal/storage"
)

// Server is the jobwatch HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, Broker, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	DB        *storage.DB
	JWTMgr    *auth.JWTManager
	IngestSvc *ingest.Service
	ReviewSvc *review.Service
	Logger    *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	Broker    *Broker
	MCPServer *mcpserver.MCPServer

	// Operator identity. APIKeyHash is the argon2id hash of the key
	// accepted by /auth/token; empty disables token issuance.
	UserID     string
	APIKeyHash string

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		IngestSvc:           cfg.IngestSvc,
		ReviewSvc:           cfg.ReviewSvc,
		Broker:              cfg.Broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		UserID:              cfg.UserID,
		APIKeyHash:          cfg.APIKeyHash,
	})

	reqIDFunc := func(r *http.Request) string {
		return ctxutil.RequestIDFromContext(r.Context())
	}
	authRL := ratelimit.Middleware(cfg.Limiter, "auth", ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)
	apiRL := ratelimit.Middleware(cfg.Limiter, "api", userKeyFunc, reqIDFunc, cfg.Logger)
	api := func(f http.HandlerFunc) http.Handler { return apiRL(f) }

	mux := http.NewServeMux()

	// Auth (no bearer token, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Settings and tracked companies.
	mux.Handle("GET /v1/settings", api(h.HandleGetSettings))
	mux.Handle("PUT /v1/settings", api(h.HandlePutSettings))
	mux.Handle("GET /v1/companies", api(h.HandleListCompanies))
	mux.Handle("POST /v1/companies", api(h.HandleUpsertCompany))
	mux.Handle("GET /v1/companies/{id}", api(h.HandleGetCompany))
	mux.Handle("DELETE /v1/companies/{id}", api(h.HandleDeleteCompany))
	mux.Handle("PUT /v1/companies/{id}/sources", api(h.HandleUpsertSource))
	mux.Handle("DELETE /v1/companies/{id}/sources", api(h.HandleRemoveSource))

	// Runs and the run ledger.
	mux.Handle("POST /v1/runs", api(h.HandleTriggerRun))
	mux.Handle("POST /v1/runs/ingest", api(h.HandleIngestRun))
	mux.Handle("GET /v1/runs", api(h.HandleListRuns))
	mux.Handle("GET /v1/runs/latest", api(h.HandleLatestRun))
	mux.Handle("GET /v1/runs/groups", api(h.HandleSettingsGroups))
	mux.Handle("GET /v1/runs/{run_id}", api(h.HandleGetRun))
	mux.Handle("GET /v1/runs/{run_id}/settings", api(h.HandleRunSettings))
	mux.Handle("GET /v1/runs/{run_id}/audit", api(h.HandleListAudit))

	// Long-lived stream, not rate limited.
	mux.HandleFunc("GET /v1/runs/events", h.HandleRunEvents)

	// Jobs and the audit log.
	mux.Handle("GET /v1/jobs", api(h.HandleListJobs))
	mux.Handle("GET /v1/jobs/{key}", api(h.HandleGetJob))
	mux.Handle("GET /v1/jobs/{key}/explain", api(h.HandleExplainJob))
	mux.Handle("GET /v1/audit", api(h.HandleListAudit))

	// Review: inbox, overrides, feedback.
	mux.Handle("GET /v1/inbox", api(h.HandleListInbox))
	mux.Handle("GET /v1/inbox/stats", api(h.HandleInboxStats))
	mux.Handle("GET /v1/inbox/{key}", api(h.HandleGetInboxRow))
	mux.Handle("GET /v1/overrides", api(h.HandleListOverrides))
	mux.Handle("GET /v1/overrides/{key}", api(h.HandleGetOverride))
	mux.Handle("PUT /v1/overrides/{key}", api(h.HandleSetOverride))
	mux.Handle("DELETE /v1/overrides/{key}", api(h.HandleClearOverride))
	mux.Handle("POST /v1/feedback", api(h.HandleRecordFeedback))
	mux.Handle("GET /v1/feedback", api(h.HandleListFeedback))
	mux.Handle("GET /v1/feedback/stats", api(h.HandleFeedbackStats))
	mux.Handle("DELETE /v1/feedback/{id}", api(h.HandleDeleteFeedback))

	// Relevance model.
	mux.Handle("PUT /v1/ml/scores", api(h.HandlePutMLScores))
	mux.Handle("GET /v1/ml/status", api(h.HandleMLStatus))

	// MCP StreamableHTTP transport (auth required).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler:    handler,
		logger:     cfg.Logger,
	}
}

// userKeyFunc rate limits authenticated requests per user.
func userKeyFunc(r *http.Request) string {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return claims.UserID
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
