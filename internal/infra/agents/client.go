// Package agents adapts a hosted Assistants-style agent service (OpenAI or
// Azure AI Foundry) to the relay's AgentBackend port.
package agents

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/boddenberg/agent-relay/internal/domain"
	"github.com/boddenberg/agent-relay/internal/infra/resilience"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("agents")

const serviceName = "agent-backend"

// Options selects and authenticates the remote endpoint.
type Options struct {
	// Azure switches to Azure-style URLs and api-key auth.
	Azure      bool
	Endpoint   string // base URL; empty means api.openai.com for non-Azure
	APIKey     string
	APIVersion string // Azure only
	HTTPClient *http.Client
}

// Client calls the agent service through go-openai. Every request goes through
// the shared circuit breaker; only reads are retried.
type Client struct {
	api *openai.Client
	cb  *gobreaker.CircuitBreaker
	cfg resilience.Config
}

// NewClient creates a new Client.
func NewClient(opts Options, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *Client {
	var oc openai.ClientConfig
	if opts.Azure {
		oc = openai.DefaultAzureConfig(opts.APIKey, strings.TrimRight(opts.Endpoint, "/"))
		if opts.APIVersion != "" {
			oc.APIVersion = opts.APIVersion
		}
	} else {
		oc = openai.DefaultConfig(opts.APIKey)
		if opts.Endpoint != "" {
			oc.BaseURL = strings.TrimRight(opts.Endpoint, "/")
		}
	}
	if opts.HTTPClient != nil {
		oc.HTTPClient = opts.HTTPClient
	}

	return &Client{
		api: openai.NewClientWithConfig(oc),
		cb:  cb,
		cfg: cfg,
	}
}

// call runs a read-only request under the breaker and retry policy and maps
// the outcome to domain errors. resource and id name the object for not-found
// reporting.
func call[T any](ctx context.Context, c *Client, resource, id string, fn func() (T, error)) (T, error) {
	return execute(ctx, c, c.cfg, resource, id, fn)
}

// callOnce is call for requests that create or change state on the service.
// They go through the breaker but are sent exactly once: a 5xx or a dropped
// connection may still have been applied.
func callOnce[T any](ctx context.Context, c *Client, resource, id string, fn func() (T, error)) (T, error) {
	once := c.cfg
	once.MaxRetries = 0
	return execute(ctx, c, once, resource, id, fn)
}

func execute[T any](ctx context.Context, c *Client, cfg resilience.Config, resource, id string, fn func() (T, error)) (T, error) {
	out, err := resilience.Execute(ctx, c.cb, cfg, func() (T, error) {
		v, err := fn()
		if err != nil {
			return v, classify(err, resource, id)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		if resilience.IsBreakerRejection(err) {
			return zero, &domain.ErrCircuitOpen{Service: serviceName}
		}
		return zero, &domain.ErrExternalService{Service: serviceName, Err: err}
	}
	return out, nil
}

// classify marks errors that retrying cannot fix. A 404 becomes a permanent
// *domain.ErrNotFound; other 4xx answers except 429 are permanent as-is.
func classify(err error, resource, id string) error {
	status := statusCode(err)
	switch {
	case status == http.StatusNotFound:
		return resilience.Permanent(&domain.ErrNotFound{Resource: resource, ID: id})
	case status == http.StatusTooManyRequests:
		return err
	case status >= 400 && status < 500:
		return resilience.Permanent(err)
	case errors.Is(err, context.Canceled):
		return resilience.Permanent(err)
	}
	return err
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
