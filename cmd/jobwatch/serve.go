package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/jobwatch/internal/auth"
	"github.com/ashita-ai/jobwatch/internal/config"
	"github.com/ashita-ai/jobwatch/internal/mcp"
	"github.com/ashita-ai/jobwatch/internal/ratelimit"
	"github.com/ashita-ai/jobwatch/internal/scheduler"
	"github.com/ashita-ai/jobwatch/internal/server"
	"github.com/ashita-ai/jobwatch/internal/service/review"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the MCP endpoint and the optional run scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	logger.Info("jobwatch starting", "version", version, "port", cfg.Port)

	otelShutdown, err := a.initTelemetry(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := a.openDB(ctx, true)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	var apiKeyHash string
	if cfg.APIKey != "" {
		if apiKeyHash, err = auth.HashAPIKey(cfg.APIKey); err != nil {
			return err
		}
	} else {
		logger.Warn("JOBWATCH_API_KEY is empty: /auth/token is disabled")
	}

	// Ingest and review are shared by the HTTP and MCP surfaces.
	ingestSvc := a.newIngest(db)
	reviewSvc := review.New(db, cfg.InboxActiveTTL, cfg.InboxMaxActive, logger)
	mcpSrv := mcp.New(db, ingestSvc, reviewSvc, cfg.UserID, logger, version)

	var broker *server.Broker
	if db.HasNotify() {
		broker = server.NewBroker(db, logger)
		go broker.Start(ctx)
	} else {
		logger.Info("SSE broker: disabled (no notify connection)")
	}

	limiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = limiter.Close() }()

	var sched *scheduler.Scheduler
	if cfg.SchedulerMode == config.SchedulerCron {
		sched = scheduler.New(ingestSvc, cfg.SchedulerSpec, cfg.UserID, cfg.SchedulerTimeout, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		logger.Info("scheduler: enabled", "spec", cfg.SchedulerSpec)
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		IngestSvc:           ingestSvc,
		ReviewSvc:           reviewSvc,
		Logger:              logger,
		Limiter:             limiter,
		Broker:              broker,
		MCPServer:           mcpSrv.MCPServer(),
		UserID:              cfg.UserID,
		APIKeyHash:          apiKeyHash,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Stop accepting requests first, then let an in-flight scheduled run
	// finish before the pool closes.
	logger.Info("jobwatch shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	if sched != nil {
		sched.Stop()
	}

	logger.Info("jobwatch stopped")
	return nil
}

// newLimiter picks Redis when REDIS_URL is set so replicas share one budget,
// otherwise an in-process token bucket.
func newLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	if !cfg.RateLimitEnabled {
		logger.Info("rate limiting: disabled")
		return ratelimit.NoopLimiter{}, nil
	}
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		logger.Info("rate limiting: redis (sliding window)",
			"limit", cfg.RateLimitBurst, "window", ratelimit.WindowFor(cfg.RateLimitRPS, cfg.RateLimitBurst))
		return ratelimit.NewRedisLimiter(client, "jobwatch", cfg.RateLimitBurst,
			ratelimit.WindowFor(cfg.RateLimitRPS, cfg.RateLimitBurst)), nil
	}
	logger.Info("rate limiting: memory (in-process token bucket)",
		"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	return ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), nil
}
