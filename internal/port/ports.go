// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from the concrete agent backend.
package port

import (
	"context"

	"github.com/boddenberg/agent-relay/internal/domain"
)

// AgentBackend is the hosted conversational-agent service.
// GetThread must return a *domain.ErrNotFound (possibly wrapped) when the
// thread does not exist, so callers can tell it apart from transport errors.
type AgentBackend interface {
	CreateThread(ctx context.Context) (*domain.Thread, error)
	GetThread(ctx context.Context, threadID string) (*domain.Thread, error)
	CreateMessage(ctx context.Context, threadID string, role domain.Role, text string) (*domain.Message, error)
	CreateRun(ctx context.Context, threadID, agentID string) (*domain.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*domain.Run, error)
	ListMessages(ctx context.Context, threadID string) ([]domain.Message, error)
}

// RunCanceller is implemented by backends that can abort an in-flight run.
type RunCanceller interface {
	CancelRun(ctx context.Context, threadID, runID string) error
}

// FileIngester hands uploaded documents to the agent's file store.
type FileIngester interface {
	IngestFile(ctx context.Context, fileName string, data []byte) (*domain.UploadedFile, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
