package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/agent-relay/internal/domain"
	"github.com/boddenberg/agent-relay/internal/infra/observability"
	"github.com/boddenberg/agent-relay/internal/infra/resilience"
	"github.com/boddenberg/agent-relay/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/query")

// User-facing texts returned in QueryResponse.Response.
const (
	MsgProcessingError = "An error occurred while processing your query. Please try again."
	MsgNoResponse      = "No response received from agent"
	MsgRunTimeout      = "The agent did not finish in time. Please try again."
)

// RunFailedMessage is the response text for a run that ended in any state
// other than completed.
func RunFailedMessage(status domain.RunStatus) string {
	return fmt.Sprintf("Agent run failed with status: %s", status)
}

// cancelRunTimeout bounds the best-effort cancel issued after the caller left.
const cancelRunTimeout = 5 * time.Second

// QueryConfig holds the orchestrator settings resolved once at startup.
type QueryConfig struct {
	AgentID      string
	PollInterval time.Duration
	MaxPolls     int
	RunTimeout   time.Duration
}

// QueryService drives one chat turn through the agent backend:
// thread resolution → user message → run → poll until terminal → answer.
type QueryService struct {
	backend  port.AgentBackend
	cfg      QueryConfig
	threads  port.Cache[bool] // confirmed thread ids; nil disables
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewQueryService creates the orchestrator with all dependencies injected.
// threads may be nil. An empty agent id is rejected here so a misconfigured
// process fails at startup rather than on the first request.
func NewQueryService(
	backend port.AgentBackend,
	cfg QueryConfig,
	threads port.Cache[bool],
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*QueryService, error) {
	if cfg.AgentID == "" {
		return nil, &domain.ErrValidation{Field: "agent_id", Message: "agent id is required"}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPolls < 1 {
		cfg.MaxPolls = 120
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	if bulkhead == nil {
		bulkhead = resilience.NewBulkhead(50)
	}

	return &QueryService{
		backend:  backend,
		cfg:      cfg,
		threads:  threads,
		bulkhead: bulkhead,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Process relays query to the agent and always returns a response.
//
// On success ThreadID is the thread actually used (which differs from the
// input when the input was empty or unknown to the backend). When a backend
// call fails the response carries a generic apology and the caller's original
// threadID, not the resolved one.
func (s *QueryService) Process(ctx context.Context, query, threadID string) *domain.QueryResponse {
	ctx, span := tracer.Start(ctx, "QueryService.Process")
	defer span.End()
	span.SetAttributes(attribute.String("thread.input_id", threadID))

	start := time.Now()
	s.metrics.QueryStarted()
	defer s.metrics.QueryFinished()

	s.logger.Info("processing query with agent", zap.String("thread_id", threadID))

	resp, outcome, err := s.process(ctx, query, threadID)
	if err != nil {
		s.logger.Error("error processing query with agent",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		outcome = observability.OutcomeError
		resp = domain.NewQueryResponse(MsgProcessingError, threadID)
	}

	span.SetAttributes(attribute.String("query.outcome", outcome))
	s.metrics.RecordQuery(outcome, time.Since(start))
	return resp
}

func (s *QueryService) process(ctx context.Context, query, threadID string) (*domain.QueryResponse, string, error) {
	if err := s.bulkhead.Acquire(ctx); err != nil {
		return nil, "", fmt.Errorf("wait for orchestration slot: %w", err)
	}
	defer s.bulkhead.Release()

	// --- Step 1: Resolve the thread ---
	thread, cached, err := s.resolveThread(ctx, threadID)
	if err != nil {
		return nil, "", err
	}

	// --- Step 2: Append the user message ---
	msg, err := s.backend.CreateMessage(ctx, thread.ID, domain.RoleUser, query)
	var notFound *domain.ErrNotFound
	if cached && errors.As(err, &notFound) {
		// The cache outlived the backend's copy of the thread.
		s.threads.Delete(thread.ID)
		s.logger.Warn("cached thread not found, creating new thread", zap.String("thread_id", thread.ID))
		thread, err = s.createThread(ctx, observability.ThreadReasonNotFound)
		if err != nil {
			return nil, "", err
		}
		msg, err = s.backend.CreateMessage(ctx, thread.ID, domain.RoleUser, query)
	}
	if err != nil {
		s.metrics.IncrBackendError("create_message")
		if s.threads != nil && errors.As(err, &notFound) {
			s.threads.Delete(thread.ID)
		}
		return nil, "", fmt.Errorf("create message in thread %s: %w", thread.ID, err)
	}
	s.logger.Info("created message in thread",
		zap.String("thread_id", thread.ID),
		zap.String("message_id", msg.ID),
	)

	// --- Step 3: Start the run ---
	run, err := s.backend.CreateRun(ctx, thread.ID, s.cfg.AgentID)
	if err != nil {
		s.metrics.IncrBackendError("create_run")
		return nil, "", fmt.Errorf("create run in thread %s: %w", thread.ID, err)
	}
	s.logger.Info("started run",
		zap.String("run_id", run.ID),
		zap.String("thread_id", thread.ID),
	)

	// --- Step 4: Wait for a terminal state ---
	run, err = s.waitForRun(ctx, thread.ID, run)
	if err != nil {
		var timeout *domain.ErrTimeout
		if errors.As(err, &timeout) {
			s.logger.Warn("run did not finish in time",
				zap.String("thread_id", thread.ID),
				zap.Error(err),
			)
			return domain.NewQueryResponse(MsgRunTimeout, thread.ID), observability.OutcomeTimeout, nil
		}
		return nil, "", err
	}

	// --- Step 5: Non-completed runs are reported, not raised ---
	if run.Status != domain.RunStatusCompleted {
		s.logger.Error("run failed",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.String("last_error", run.LastError),
		)
		return domain.NewQueryResponse(RunFailedMessage(run.Status), thread.ID), observability.OutcomeRunFailed, nil
	}

	// --- Step 6: Pull the agent's answer ---
	messages, err := s.backend.ListMessages(ctx, thread.ID)
	if err != nil {
		s.metrics.IncrBackendError("list_messages")
		return nil, "", fmt.Errorf("list messages in thread %s: %w", thread.ID, err)
	}

	answer, ok := ExtractResponse(messages)
	if !ok {
		s.logger.Warn("no response content found from agent", zap.String("thread_id", thread.ID))
		return domain.NewQueryResponse(MsgNoResponse, thread.ID), observability.OutcomeNoResponse, nil
	}

	s.logger.Info("received response from agent",
		zap.String("thread_id", thread.ID),
		zap.Int("length", len(answer)),
	)
	return domain.NewQueryResponse(answer, thread.ID), observability.OutcomeCompleted, nil
}

// resolveThread reuses threadID when the backend knows it and otherwise
// creates a fresh thread. Continuity is best-effort: an unknown id is
// replaced silently. cached reports that the id was trusted from the thread
// cache without asking the backend.
func (s *QueryService) resolveThread(ctx context.Context, threadID string) (thread *domain.Thread, cached bool, err error) {
	if threadID == "" {
		s.logger.Info("creating new thread")
		thread, err = s.createThread(ctx, observability.ThreadReasonNew)
		return thread, false, err
	}

	if s.threads != nil {
		if _, ok := s.threads.Get(threadID); ok {
			s.logger.Debug("thread confirmed from cache", zap.String("thread_id", threadID))
			return &domain.Thread{ID: threadID}, true, nil
		}
	}

	s.logger.Info("retrieving existing thread", zap.String("thread_id", threadID))
	thread, err = s.backend.GetThread(ctx, threadID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			s.logger.Warn("thread not found, creating new thread", zap.String("thread_id", threadID))
			thread, err = s.createThread(ctx, observability.ThreadReasonNotFound)
			return thread, false, err
		}
		s.metrics.IncrBackendError("get_thread")
		return nil, false, fmt.Errorf("get thread %s: %w", threadID, err)
	}

	s.remember(thread.ID)
	return thread, false, nil
}

func (s *QueryService) createThread(ctx context.Context, reason string) (*domain.Thread, error) {
	thread, err := s.backend.CreateThread(ctx)
	if err != nil {
		s.metrics.IncrBackendError("create_thread")
		return nil, fmt.Errorf("create thread: %w", err)
	}
	s.metrics.IncrThreadCreated(reason)
	s.remember(thread.ID)
	return thread, nil
}

func (s *QueryService) remember(threadID string) {
	if s.threads != nil {
		s.threads.Set(threadID, true)
	}
}

// waitForRun polls the run every PollInterval until it leaves the pending
// states. The wait is a select on the caller's context, so a disconnected
// client stops the loop. Hitting MaxPolls or RunTimeout yields *domain.ErrTimeout.
func (s *QueryService) waitForRun(ctx context.Context, threadID string, run *domain.Run) (*domain.Run, error) {
	ctx, span := tracer.Start(ctx, "QueryService.waitForRun")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", run.ID))

	deadline := time.NewTimer(s.cfg.RunTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	polls := 0
	defer func() {
		s.metrics.ObserveRunPolls(polls)
		span.SetAttributes(attribute.Int("run.polls", polls))
	}()

	for {
		select {
		case <-ctx.Done():
		case <-deadline.C:
			s.cancelRun(ctx, threadID, run.ID)
			return nil, &domain.ErrTimeout{Operation: fmt.Sprintf("run %s after %s", run.ID, s.cfg.RunTimeout)}
		case <-ticker.C:
		}
		if err := ctx.Err(); err != nil {
			s.cancelRun(ctx, threadID, run.ID)
			return nil, fmt.Errorf("wait for run %s: %w", run.ID, err)
		}

		polls++
		current, err := s.backend.GetRun(ctx, threadID, run.ID)
		if err != nil {
			s.metrics.IncrBackendError("get_run")
			return nil, fmt.Errorf("get run %s: %w", run.ID, err)
		}
		s.logger.Debug("run status",
			zap.String("run_id", run.ID),
			zap.String("status", string(current.Status)),
			zap.Int("poll", polls),
		)

		if !current.Status.IsPending() {
			span.SetAttributes(attribute.String("run.status", string(current.Status)))
			return current, nil
		}
		if polls >= s.cfg.MaxPolls {
			s.cancelRun(ctx, threadID, run.ID)
			return nil, &domain.ErrTimeout{Operation: fmt.Sprintf("run %s after %d polls", run.ID, polls)}
		}
	}
}

// cancelRun asks the backend to abort a run we stopped waiting for. It runs
// on a context detached from the caller, which may already be gone.
func (s *QueryService) cancelRun(ctx context.Context, threadID, runID string) {
	canceller, ok := s.backend.(port.RunCanceller)
	if !ok {
		return
	}

	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelRunTimeout)
	defer cancel()

	if err := canceller.CancelRun(cancelCtx, threadID, runID); err != nil {
		s.logger.Warn("failed to cancel run",
			zap.String("thread_id", threadID),
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("cancelled run", zap.String("thread_id", threadID), zap.String("run_id", runID))
}

// ExtractResponse picks the newest assistant message and returns its first
// content item: text verbatim, anything else in its generic form. Later items
// are dropped. ok is false when there is no assistant message or it is empty.
// Among messages with equal timestamps the winner is unspecified.
func ExtractResponse(messages []domain.Message) (text string, ok bool) {
	var latest *domain.Message
	for i := range messages {
		m := &messages[i]
		if !m.Role.Is(domain.RoleAssistant) {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}

	if latest == nil || len(latest.Content) == 0 {
		return "", false
	}

	first := latest.Content[0]
	if first.IsText() {
		return first.Text, true
	}
	return first.String(), true
}
