package agents

import (
	"context"
	"time"

	"github.com/boddenberg/agent-relay/internal/domain"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
)

// listPageSize is the largest page the messages endpoint returns.
const listPageSize = 100

// CreateThread starts an empty conversation thread.
func (c *Client) CreateThread(ctx context.Context) (*domain.Thread, error) {
	ctx, span := tracer.Start(ctx, "Client.CreateThread")
	defer span.End()

	thread, err := callOnce(ctx, c, "thread", "", func() (openai.Thread, error) {
		return c.api.CreateThread(ctx, openai.ThreadRequest{})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("thread.id", thread.ID))
	return toThread(thread), nil
}

// GetThread fetches a thread, returning *domain.ErrNotFound when it is gone.
func (c *Client) GetThread(ctx context.Context, threadID string) (*domain.Thread, error) {
	ctx, span := tracer.Start(ctx, "Client.GetThread")
	defer span.End()
	span.SetAttributes(attribute.String("thread.id", threadID))

	thread, err := call(ctx, c, "thread", threadID, func() (openai.Thread, error) {
		return c.api.RetrieveThread(ctx, threadID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return toThread(thread), nil
}

// CreateMessage appends a text message to the thread.
func (c *Client) CreateMessage(ctx context.Context, threadID string, role domain.Role, text string) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Client.CreateMessage")
	defer span.End()
	span.SetAttributes(attribute.String("thread.id", threadID))

	msg, err := callOnce(ctx, c, "thread", threadID, func() (openai.Message, error) {
		return c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
			Role:    string(role),
			Content: text,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := toMessage(msg)
	if out.ThreadID == "" {
		out.ThreadID = threadID
	}
	return &out, nil
}

// CreateRun starts the agent on the thread's latest message.
func (c *Client) CreateRun(ctx context.Context, threadID, agentID string) (*domain.Run, error) {
	ctx, span := tracer.Start(ctx, "Client.CreateRun")
	defer span.End()
	span.SetAttributes(
		attribute.String("thread.id", threadID),
		attribute.String("agent.id", agentID),
	)

	run, err := callOnce(ctx, c, "thread", threadID, func() (openai.Run, error) {
		return c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: agentID})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("run.id", run.ID))
	return toRun(run, threadID), nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*domain.Run, error) {
	ctx, span := tracer.Start(ctx, "Client.GetRun")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID))

	run, err := call(ctx, c, "run", runID, func() (openai.Run, error) {
		return c.api.RetrieveRun(ctx, threadID, runID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("run.status", string(run.Status)))
	return toRun(run, threadID), nil
}

// CancelRun asks the service to stop a run.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	ctx, span := tracer.Start(ctx, "Client.CancelRun")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID))

	_, err := callOnce(ctx, c, "run", runID, func() (openai.Run, error) {
		return c.api.CancelRun(ctx, threadID, runID)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ListMessages returns the newest page of messages in the thread, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Client.ListMessages")
	defer span.End()
	span.SetAttributes(attribute.String("thread.id", threadID))

	limit := listPageSize
	order := "desc"

	list, err := call(ctx, c, "thread", threadID, func() (openai.MessagesList, error) {
		return c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := make([]domain.Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		msg := toMessage(m)
		if msg.ThreadID == "" {
			msg.ThreadID = threadID
		}
		out = append(out, msg)
	}
	span.SetAttributes(attribute.Int("messages.count", len(out)))
	return out, nil
}

// --- Mapping ---

func toThread(t openai.Thread) *domain.Thread {
	return &domain.Thread{
		ID:        t.ID,
		CreatedAt: time.Unix(int64(t.CreatedAt), 0).UTC(),
	}
}

func toMessage(m openai.Message) domain.Message {
	content := make([]domain.ContentItem, 0, len(m.Content))
	for _, item := range m.Content {
		ci := domain.ContentItem{Type: domain.ContentType(item.Type)}
		if item.Text != nil {
			ci.Text = item.Text.Value
		}
		if item.ImageFile != nil {
			ci.FileID = item.ImageFile.FileID
		}
		content = append(content, ci)
	}

	return domain.Message{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Role:      domain.Role(m.Role),
		Content:   content,
		CreatedAt: time.Unix(int64(m.CreatedAt), 0).UTC(),
	}
}

func toRun(r openai.Run, threadID string) *domain.Run {
	run := &domain.Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		AgentID:  r.AssistantID,
		Status:   domain.RunStatus(r.Status),
	}
	if run.ThreadID == "" {
		run.ThreadID = threadID
	}
	if r.LastError != nil {
		run.LastError = r.LastError.Message
	}
	return run
}
