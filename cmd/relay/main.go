package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/agent-relay/internal/config"
	"github.com/boddenberg/agent-relay/internal/handler"
	"github.com/boddenberg/agent-relay/internal/infra/agents"
	"github.com/boddenberg/agent-relay/internal/infra/cache"
	"github.com/boddenberg/agent-relay/internal/infra/memagent"
	"github.com/boddenberg/agent-relay/internal/infra/observability"
	"github.com/boddenberg/agent-relay/internal/infra/resilience"
	"github.com/boddenberg/agent-relay/internal/port"
	"github.com/boddenberg/agent-relay/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// backend is what the relay needs from an agent service implementation.
type backend interface {
	port.AgentBackend
	port.FileIngester
}

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("backend", cfg.Backend),
		zap.String("backend_endpoint", cfg.BackendEndpoint),
		zap.String("agent_id", cfg.AgentID),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("max_polls", cfg.MaxPolls),
		zap.Duration("run_timeout", cfg.RunTimeout),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("thread_cache_ttl", cfg.ThreadCacheTTL),
		zap.Bool("api_auth", cfg.APIJWTSecret != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(ctx, cfg.TracingEnabled, cfg.OTLPEndpoint, "agent-relay")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("agent-backend")
	bulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Agent backend ---
	var agentBackend backend
	switch cfg.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory echo backend; replies are not produced by a real agent")
		agentBackend = memagent.New()
	default:
		logger.Info("using hosted agent backend", zap.String("kind", cfg.Backend))
		agentBackend = agents.NewClient(agents.Options{
			Azure:      cfg.Backend == config.BackendAzure,
			Endpoint:   cfg.BackendEndpoint,
			APIKey:     cfg.BackendAPIKey,
			APIVersion: cfg.BackendAPIVersion,
			HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		}, cb, resilienceCfg)
	}

	// --- Cache ---
	var threadCache port.Cache[bool]
	if cfg.ThreadCacheTTL > 0 {
		c := cache.New[bool](cfg.ThreadCacheTTL)
		defer c.Close()
		threadCache = c
	}

	// --- Services ---
	queries, err := service.NewQueryService(agentBackend, service.QueryConfig{
		AgentID:      cfg.AgentID,
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
		RunTimeout:   cfg.RunTimeout,
	}, threadCache, bulkhead, metrics, logger)
	if err != nil {
		logger.Fatal("failed to create query service", zap.Error(err))
	}
	uploads := service.NewUploadService(agentBackend, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(queries, uploads, metrics, logger, handler.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
		JWTSecret:          cfg.APIJWTSecret,
		BackendState:       func() string { return cb.State().String() },
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RunTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}
