package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/agent-relay/internal/domain"
	"github.com/boddenberg/agent-relay/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// QueryProcessor relays one chat turn. It always yields a response.
type QueryProcessor interface {
	Process(ctx context.Context, query, threadID string) *domain.QueryResponse
}

// FileUploader forwards an uploaded document.
type FileUploader interface {
	Upload(ctx context.Context, fileName string, data []byte) (*domain.UploadedFile, error)
}

// Options tunes the HTTP edge. Zero values disable the optional layers.
type Options struct {
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	JWTSecret          string        // empty leaves /api open
	BackendState       func() string // circuit breaker state for /healthz
}

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the contract expected by the chat UI.
func NewRouter(queries QueryProcessor, uploads FileUploader, metrics *observability.Metrics, logger *zap.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(RecoverMiddleware(logger))
	r.Use(middleware.Heartbeat("/ping"))
	if len(opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-File-Name", "X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(opts.BackendState))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- Chat API ---
	r.Route("/api", func(r chi.Router) {
		if opts.JWTSecret != "" {
			r.Use(JWTAuthMiddleware([]byte(opts.JWTSecret), logger))
		}
		if opts.RateLimitRequests > 0 && opts.RateLimitWindow > 0 {
			r.Use(RateLimit(opts.RateLimitRequests, opts.RateLimitWindow))
		}

		r.Post("/send", sendHandler(queries, logger))
		r.Post("/upload", uploadHandler(uploads, logger))
		r.Get("/metrics/summary", metricsSummaryHandler(metrics))
	})

	return r
}
