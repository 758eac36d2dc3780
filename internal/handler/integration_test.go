package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/agent-relay/internal/domain"
	"github.com/boddenberg/agent-relay/internal/handler"
	"github.com/boddenberg/agent-relay/internal/infra/memagent"
	"github.com/boddenberg/agent-relay/internal/infra/observability"
	"github.com/boddenberg/agent-relay/internal/infra/resilience"
	"github.com/boddenberg/agent-relay/internal/service"

	"go.uber.org/zap"
)

func newRelayServer(t *testing.T, backend *memagent.Backend) (*httptest.Server, *observability.Metrics) {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	queries, err := service.NewQueryService(backend, service.QueryConfig{
		AgentID:      "asst-integration",
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     20,
		RunTimeout:   time.Second,
	}, nil, resilience.NewBulkhead(10), metrics, logger)
	if err != nil {
		t.Fatalf("new query service: %v", err)
	}
	uploads := service.NewUploadService(backend, metrics, logger)

	router := handler.NewRouter(queries, uploads, metrics, logger, handler.Options{})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, metrics
}

func send(t *testing.T, srv *httptest.Server, body string) domain.QueryResponse {
	t.Helper()

	resp, err := http.Post(srv.URL+"/api/send", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out domain.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// TestIntegration_Conversation drives a multi-turn conversation through the
// HTTP API against the in-memory backend.
func TestIntegration_Conversation(t *testing.T) {
	srv, metrics := newRelayServer(t, memagent.New(memagent.WithSteps(2)))

	first := send(t, srv, `{"query":"hello"}`)
	if first.Response != "Echo: hello" {
		t.Errorf("unexpected response %q", first.Response)
	}
	if first.ThreadID == nil {
		t.Fatal("expected a thread id")
	}

	second := send(t, srv, fmt.Sprintf(`{"query":"and again","threadId":%q}`, *first.ThreadID))
	if second.Response != "Echo: and again" {
		t.Errorf("unexpected response %q", second.Response)
	}
	if second.ThreadID == nil || *second.ThreadID != *first.ThreadID {
		t.Errorf("expected thread %s to be reused, got %v", *first.ThreadID, second.ThreadID)
	}

	snapshot := metrics.GetRelaySnapshot()
	if snapshot.TotalQueries != 2 || snapshot.ThreadsCreated != 1 {
		t.Errorf("unexpected metrics snapshot: %+v", snapshot)
	}
}

func TestIntegration_ExpiredThreadIsReplaced(t *testing.T) {
	backend := memagent.New()
	srv, metrics := newRelayServer(t, backend)

	first := send(t, srv, `{"query":"hello"}`)
	backend.DeleteThread(*first.ThreadID)

	second := send(t, srv, fmt.Sprintf(`{"query":"still there?","threadId":%q}`, *first.ThreadID))
	if second.Response != "Echo: still there?" {
		t.Errorf("unexpected response %q", second.Response)
	}
	if second.ThreadID == nil || *second.ThreadID == *first.ThreadID {
		t.Errorf("expected a replacement thread, got %v", second.ThreadID)
	}
	if got := metrics.GetRelaySnapshot().ThreadsRecreated; got != 1 {
		t.Errorf("expected 1 recreated thread, got %d", got)
	}
}

func TestIntegration_FailedRun(t *testing.T) {
	srv, _ := newRelayServer(t, memagent.New(memagent.WithFinalStatus(domain.RunStatusExpired)))

	out := send(t, srv, `{"query":"hello"}`)

	if out.Response != "Agent run failed with status: expired" {
		t.Errorf("unexpected response %q", out.Response)
	}
}

func TestIntegration_BackendError(t *testing.T) {
	backend := memagent.New(memagent.WithFailure("create_message", fmt.Errorf("backend unavailable")))
	srv, _ := newRelayServer(t, backend)

	out := send(t, srv, `{"query":"hello","threadId":"thread-unknown"}`)

	if out.Response != service.MsgProcessingError {
		t.Errorf("unexpected response %q", out.Response)
	}
	if out.ThreadID == nil || *out.ThreadID != "thread-unknown" {
		t.Errorf("expected the caller's thread id, got %v", out.ThreadID)
	}
}

func TestIntegration_Upload(t *testing.T) {
	backend := memagent.New()
	srv, _ := newRelayServer(t, backend)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/upload", bytes.NewReader([]byte("%PDF-1.7")))
	req.Header.Set("X-File-Name", "terms.pdf")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("expected 202, got %d", resp.StatusCode)
	}
	if backend.Files() != 1 {
		t.Errorf("expected 1 ingested file, got %d", backend.Files())
	}
}
