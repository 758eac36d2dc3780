package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/agent-relay/internal/domain"
	"github.com/boddenberg/agent-relay/internal/infra/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	maxQueryBody  = 1 << 20  // 1 MiB
	maxUploadBody = 32 << 20 // 32 MiB

	defaultUploadName = "uploaded-file.pdf"
)

// Plain-text bodies returned by the chat endpoints.
const (
	msgBodyRequired  = "Request body is required"
	msgInvalidJSON   = "Invalid JSON format"
	msgQueryRequired = "Field 'query' is required and cannot be empty"
	msgBodyTooLarge  = "Request body is too large"
	msgInternalError = "An internal server error occurred"

	msgNoFileData     = "No file data received"
	msgUploadAccepted = "File uploaded successfully"
	msgUploadFailed   = "Error processing file upload"
)

// ============================================================
// POST /api/send
// ============================================================

func sendHandler(queries QueryProcessor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/send")
		defer span.End()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxQueryBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeText(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
				return
			}
			logger.Warn("failed to read request body", zap.Error(err))
			writeText(w, http.StatusBadRequest, msgBodyRequired)
			return
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			writeText(w, http.StatusBadRequest, msgBodyRequired)
			return
		}

		var req domain.QueryRequest
		if err := json.Unmarshal(body, &req); err != nil {
			logger.Debug("invalid JSON in request body", zap.Error(err))
			writeText(w, http.StatusBadRequest, msgInvalidJSON)
			return
		}
		query, err := req.ToQuery()
		if err != nil {
			writeText(w, http.StatusBadRequest, msgQueryRequired)
			return
		}
		span.SetAttributes(attribute.String("thread.input_id", query.ThreadID))
		observability.AnnotateRequest(ctx, zap.String("thread_id", query.ThreadID))

		logger.Info("processing query", zap.String("thread_id", query.ThreadID))
		resp := queries.Process(ctx, query.Text, query.ThreadID)

		writeJSON(w, http.StatusOK, resp)
	}
}

// ============================================================
// POST /api/upload
// ============================================================

func uploadHandler(uploads FileUploader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/upload")
		defer span.End()

		fileName := strings.TrimSpace(r.Header.Get("X-File-Name"))
		if fileName == "" {
			fileName = defaultUploadName
		}
		span.SetAttributes(attribute.String("file.name", fileName))
		observability.AnnotateRequest(ctx, zap.String("file_name", fileName))

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeText(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
				return
			}
			logger.Error("failed to read upload body", zap.String("file_name", fileName), zap.Error(err))
			writeText(w, http.StatusInternalServerError, msgUploadFailed)
			return
		}
		if len(data) == 0 {
			writeText(w, http.StatusBadRequest, msgNoFileData)
			return
		}

		logger.Info("file upload received",
			zap.String("file_name", fileName),
			zap.Int("bytes", len(data)),
		)

		if _, err := uploads.Upload(ctx, fileName, data); err != nil {
			var validation *domain.ErrValidation
			if errors.As(err, &validation) {
				writeText(w, http.StatusBadRequest, msgNoFileData)
				return
			}
			logger.Error("error processing file upload", zap.String("file_name", fileName), zap.Error(err))
			span.RecordError(err)
			writeText(w, http.StatusInternalServerError, msgUploadFailed)
			return
		}

		writeText(w, http.StatusAccepted, msgUploadAccepted)
	}
}
