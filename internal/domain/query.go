package domain

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================
// Query: API request/response (follows the chat UI contract)
// ============================================================

// QueryRequest is the body of POST /api/send.
// Field names are matched case-insensitively by encoding/json.
type QueryRequest struct {
	Query    *string `json:"query"`
	ThreadID *string `json:"threadId,omitempty"`
}

// Query is a validated chat turn submitted by the user.
type Query struct {
	Text     string
	ThreadID string // empty starts a new conversation
}

// ToQuery validates the request. A missing or blank query is rejected; the
// query text itself is passed on untouched. A blank threadId means none.
func (r QueryRequest) ToQuery() (Query, error) {
	if r.Query == nil || strings.TrimSpace(*r.Query) == "" {
		return Query{}, &ErrValidation{Field: "query", Message: "is required and cannot be empty"}
	}
	q := Query{Text: *r.Query}
	if r.ThreadID != nil {
		q.ThreadID = strings.TrimSpace(*r.ThreadID)
	}
	return q, nil
}

// QueryResponse is what the relay returns to the chat UI.
// Response may carry markdown or HTML and is rendered as-is by the client.
type QueryResponse struct {
	Response string  `json:"response"`
	ThreadID *string `json:"threadId"`
}

// NewQueryResponse builds a response, leaving ThreadID null when id is empty.
func NewQueryResponse(text, threadID string) *QueryResponse {
	resp := &QueryResponse{Response: text}
	if threadID != "" {
		id := threadID
		resp.ThreadID = &id
	}
	return resp
}

// ============================================================
// Agent backend model: threads, messages, runs
// ============================================================

// Thread is a backend-owned conversation context.
type Thread struct {
	ID        string
	CreatedAt time.Time
}

// Role is the author of a thread message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Is reports whether r names the same role as other, ignoring case.
func (r Role) Is(other Role) bool {
	return strings.EqualFold(string(r), string(other))
}

// ContentType identifies the kind of a message content item.
type ContentType string

const (
	ContentText      ContentType = "text"
	ContentImageFile ContentType = "image_file"
)

// ContentItem is a single segment of a message body.
type ContentItem struct {
	Type   ContentType
	Text   string
	FileID string
}

// IsText reports whether the item carries text.
func (c ContentItem) IsText() bool {
	return c.Type == ContentText
}

// String is the generic representation used when the item is not text.
func (c ContentItem) String() string {
	if c.IsText() {
		return c.Text
	}
	if c.FileID != "" {
		return fmt.Sprintf("[%s: %s]", c.Type, c.FileID)
	}
	return fmt.Sprintf("[%s]", c.Type)
}

// Message is one turn appended to a thread.
type Message struct {
	ID        string
	ThreadID  string
	Role      Role
	Content   []ContentItem
	CreatedAt time.Time
}

// RunStatus is the lifecycle state of an agent run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusExpired        RunStatus = "expired"
)

// IsPending reports whether the relay should keep polling a run in this state.
// RequiresAction is included: tool calls are not handled, so such runs are
// waited on until the backend moves them along or expires them.
func (s RunStatus) IsPending() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusRequiresAction:
		return true
	}
	return false
}

// Run is a unit of agent work over a thread's latest message.
type Run struct {
	ID        string
	ThreadID  string
	AgentID   string
	Status    RunStatus
	LastError string
}

// ============================================================
// Files
// ============================================================

// UploadedFile describes a file handed to the ingestion backend.
type UploadedFile struct {
	ID    string
	Name  string
	Bytes int
}
