package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/boddenberg/agent-relay/internal/domain"
	"github.com/boddenberg/agent-relay/internal/handler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postSend(t *testing.T, proc *mockProcessor, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := newRouter(proc, nil, handler.Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/send", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(router, req)
}

func TestSend_Success(t *testing.T) {
	proc := &mockProcessor{resp: domain.NewQueryResponse("hi there", "t1")}

	rec := postSend(t, proc, `{"query":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"response":"hi there","threadId":"t1"}`, rec.Body.String())
	assert.Equal(t, "hello", proc.query)
	assert.Equal(t, "", proc.threadID)
}

func TestSend_PassesThreadID(t *testing.T) {
	proc := &mockProcessor{}

	rec := postSend(t, proc, `{"query":"again","threadId":"thread_abc"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thread_abc", proc.threadID)
}

func TestSend_FieldNamesAreCaseInsensitive(t *testing.T) {
	proc := &mockProcessor{}

	rec := postSend(t, proc, `{"Query":"hello","ThreadID":"thread_abc"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", proc.query)
	assert.Equal(t, "thread_abc", proc.threadID)
}

func TestSend_NullThreadIDInResponse(t *testing.T) {
	proc := &mockProcessor{resp: domain.NewQueryResponse("An error occurred while processing your query. Please try again.", "")}

	rec := postSend(t, proc, `{"query":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "threadId")
	assert.Nil(t, body["threadId"])
}

func TestSend_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", "Request body is required"},
		{"whitespace body", "   \n", "Request body is required"},
		{"malformed JSON", `{"query": "hello"`, "Invalid JSON format"},
		{"not an object", `"hello"`, "Invalid JSON format"},
		{"missing query", `{"threadId":"t1"}`, "Field 'query' is required and cannot be empty"},
		{"null query", `{"query":null}`, "Field 'query' is required and cannot be empty"},
		{"blank query", `{"query":"   "}`, "Field 'query' is required and cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &mockProcessor{}

			rec := postSend(t, proc, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
			assert.Equal(t, 0, proc.calls, "processor must not run for rejected input")
		})
	}
}

func TestSend_BodyTooLarge(t *testing.T) {
	proc := &mockProcessor{}
	big := `{"query":"` + strings.Repeat("a", 2<<20) + `"}`

	rec := postSend(t, proc, big)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, proc.calls)
}

func TestSend_PanicIsGeneric500(t *testing.T) {
	proc := &mockProcessor{panicMsg: "secret internal detail"}

	rec := postSend(t, proc, `{"query":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An internal server error occurred", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret")
}

func postUpload(up *mockUploader, data []byte, fileName string) *httptest.ResponseRecorder {
	router := newRouter(nil, up, handler.Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(data))
	if fileName != "" {
		req.Header.Set("X-File-Name", fileName)
	}
	return serve(router, req)
}

func TestUpload_Accepted(t *testing.T) {
	up := &mockUploader{}
	data := []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0x01}

	rec := postUpload(up, data, "quarterly.pdf")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "File uploaded successfully", rec.Body.String())
	assert.Equal(t, "quarterly.pdf", up.name)
	assert.Equal(t, data, up.data)
}

func TestUpload_DefaultFileName(t *testing.T) {
	up := &mockUploader{}

	rec := postUpload(up, []byte("abc"), "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "uploaded-file.pdf", up.name)
}

func TestUpload_EmptyBody(t *testing.T) {
	up := &mockUploader{}

	rec := postUpload(up, nil, "a.pdf")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file data received", rec.Body.String())
	assert.Equal(t, 0, up.calls)
}

func TestUpload_Failure(t *testing.T) {
	up := &mockUploader{err: errors.New("storage unavailable")}

	rec := postUpload(up, []byte("abc"), "a.pdf")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error processing file upload", rec.Body.String())
}
