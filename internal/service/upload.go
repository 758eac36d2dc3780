package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/agent-relay/internal/domain"
	"github.com/boddenberg/agent-relay/internal/infra/observability"
	"github.com/boddenberg/agent-relay/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// UploadService forwards documents to the agent's file store.
type UploadService struct {
	ingester port.FileIngester
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewUploadService creates a new UploadService.
func NewUploadService(ingester port.FileIngester, metrics *observability.Metrics, logger *zap.Logger) *UploadService {
	return &UploadService{
		ingester: ingester,
		metrics:  metrics,
		logger:   logger,
	}
}

// Upload hands data to the ingester under fileName.
func (s *UploadService) Upload(ctx context.Context, fileName string, data []byte) (*domain.UploadedFile, error) {
	ctx, span := tracer.Start(ctx, "UploadService.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("file.name", fileName),
		attribute.Int("file.bytes", len(data)),
	)

	if len(data) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "no file data received"}
	}

	file, err := s.ingester.IngestFile(ctx, fileName, data)
	if err != nil {
		s.metrics.IncrUpload("failed")
		s.metrics.IncrBackendError("ingest_file")
		span.RecordError(err)
		return nil, fmt.Errorf("ingest file %s: %w", fileName, err)
	}

	s.metrics.IncrUpload("accepted")
	s.logger.Info("file uploaded",
		zap.String("file_name", fileName),
		zap.String("file_id", file.ID),
		zap.Int("bytes", len(data)),
	)
	return file, nil
}
