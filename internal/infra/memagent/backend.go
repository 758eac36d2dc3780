// Package memagent is an in-process agent backend that echoes the user's
// message. It backs BACKEND=memory for local development and the end-to-end
// tests.
package memagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/agent-relay/internal/domain"

	"github.com/google/uuid"
)

// Option configures a Backend.
type Option func(*Backend)

// WithReply sets how the assistant answers the latest user message.
func WithReply(fn func(query string) string) Option {
	return func(b *Backend) { b.reply = fn }
}

// WithFinalStatus makes every run end in status instead of completed.
func WithFinalStatus(status domain.RunStatus) Option {
	return func(b *Backend) { b.finalStatus = status }
}

// WithSteps sets which GetRun call finishes a run. The n-1 calls before it
// report the run in progress.
func WithSteps(n int) Option {
	return func(b *Backend) { b.steps = n }
}

// WithFailure makes the named operation ("create_thread", "get_thread",
// "create_message", "create_run", "get_run", "list_messages", "ingest_file")
// return err.
func WithFailure(op string, err error) Option {
	return func(b *Backend) { b.failures[op] = err }
}

type thread struct {
	domain.Thread
	messages []domain.Message
}

type run struct {
	domain.Run
	polls int
}

// Backend keeps threads, runs and files in memory.
type Backend struct {
	mu          sync.Mutex
	threads     map[string]*thread
	runs        map[string]*run
	files       map[string]domain.UploadedFile
	reply       func(string) string
	finalStatus domain.RunStatus
	steps       int
	failures    map[string]error
	epoch       time.Time
	seq         int
}

// New creates an empty Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		threads:     make(map[string]*thread),
		runs:        make(map[string]*run),
		files:       make(map[string]domain.UploadedFile),
		reply:       func(q string) string { return "Echo: " + q },
		finalStatus: domain.RunStatusCompleted,
		steps:       1,
		failures:    make(map[string]error),
		epoch:       time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// tick returns strictly increasing timestamps so message order is stable.
// Caller holds b.mu.
func (b *Backend) tick() time.Time {
	b.seq++
	return b.epoch.Add(time.Duration(b.seq) * time.Millisecond)
}

func (b *Backend) fail(op string) error {
	return b.failures[op]
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func (b *Backend) CreateThread(ctx context.Context) (*domain.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("create_thread"); err != nil {
		return nil, err
	}

	t := &thread{Thread: domain.Thread{ID: newID("thread"), CreatedAt: b.tick()}}
	b.threads[t.ID] = t
	out := t.Thread
	return &out, nil
}

func (b *Backend) GetThread(ctx context.Context, threadID string) (*domain.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("get_thread"); err != nil {
		return nil, err
	}

	t, ok := b.threads[threadID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "thread", ID: threadID}
	}
	out := t.Thread
	return &out, nil
}

// DeleteThread drops a thread, as an operator or retention policy would.
func (b *Backend) DeleteThread(threadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.threads, threadID)
}

func (b *Backend) CreateMessage(ctx context.Context, threadID string, role domain.Role, text string) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("create_message"); err != nil {
		return nil, err
	}

	t, ok := b.threads[threadID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "thread", ID: threadID}
	}
	msg := b.appendMessage(t, role, text)
	return &msg, nil
}

// Caller holds b.mu.
func (b *Backend) appendMessage(t *thread, role domain.Role, text string) domain.Message {
	msg := domain.Message{
		ID:        newID("msg"),
		ThreadID:  t.ID,
		Role:      role,
		Content:   []domain.ContentItem{{Type: domain.ContentText, Text: text}},
		CreatedAt: b.tick(),
	}
	t.messages = append(t.messages, msg)
	return msg
}

func (b *Backend) CreateRun(ctx context.Context, threadID, agentID string) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("create_run"); err != nil {
		return nil, err
	}

	if _, ok := b.threads[threadID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "thread", ID: threadID}
	}
	r := &run{Run: domain.Run{
		ID:       newID("run"),
		ThreadID: threadID,
		AgentID:  agentID,
		Status:   domain.RunStatusQueued,
	}}
	b.runs[r.ID] = r
	out := r.Run
	return &out, nil
}

// GetRun advances the run one step per call: queued, in_progress for the
// configured number of steps, then the final status. A completed run appends
// the assistant's reply to the thread.
func (b *Backend) GetRun(ctx context.Context, threadID, runID string) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("get_run"); err != nil {
		return nil, err
	}

	r, ok := b.runs[runID]
	if !ok || r.ThreadID != threadID {
		return nil, &domain.ErrNotFound{Resource: "run", ID: runID}
	}
	if r.Status.IsPending() {
		r.polls++
		if r.polls < b.steps {
			r.Status = domain.RunStatusInProgress
		} else {
			b.finish(r)
		}
	}
	out := r.Run
	return &out, nil
}

// Caller holds b.mu.
func (b *Backend) finish(r *run) {
	r.Status = b.finalStatus
	switch r.Status {
	case domain.RunStatusCompleted:
		t, ok := b.threads[r.ThreadID]
		if !ok {
			r.Status = domain.RunStatusFailed
			r.LastError = "thread deleted during run"
			return
		}
		b.appendMessage(t, domain.RoleAssistant, b.reply(lastUserText(t.messages)))
	case domain.RunStatusFailed:
		r.LastError = "run failed"
	}
}

func lastUserText(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role.Is(domain.RoleUser) && len(m.Content) > 0 {
			return m.Content[0].Text
		}
	}
	return ""
}

// CancelRun moves a pending run to cancelled.
func (b *Backend) CancelRun(ctx context.Context, threadID, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.runs[runID]
	if !ok || r.ThreadID != threadID {
		return &domain.ErrNotFound{Resource: "run", ID: runID}
	}
	if !r.Status.IsPending() {
		return fmt.Errorf("run %s is already %s", runID, r.Status)
	}
	r.Status = domain.RunStatusCancelled
	return nil
}

// ListMessages returns the thread's messages, newest first.
func (b *Backend) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("list_messages"); err != nil {
		return nil, err
	}

	t, ok := b.threads[threadID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "thread", ID: threadID}
	}
	out := make([]domain.Message, 0, len(t.messages))
	for i := len(t.messages) - 1; i >= 0; i-- {
		out = append(out, t.messages[i])
	}
	return out, nil
}

// IngestFile records the upload and returns its generated id.
func (b *Backend) IngestFile(ctx context.Context, fileName string, data []byte) (*domain.UploadedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("ingest_file"); err != nil {
		return nil, err
	}

	f := domain.UploadedFile{ID: newID("file"), Name: fileName, Bytes: len(data)}
	b.files[f.ID] = f
	return &f, nil
}

// RunStatus reports the stored status of a run, for tests and diagnostics.
func (b *Backend) RunStatus(runID string) (domain.RunStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.runs[runID]
	if !ok {
		return "", false
	}
	return r.Status, true
}

// Files returns the number of ingested files.
func (b *Backend) Files() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.files)
}
