package agents

import (
	"context"

	"github.com/boddenberg/agent-relay/internal/domain"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
)

// IngestFile uploads a document for the agent's retrieval tools.
func (c *Client) IngestFile(ctx context.Context, fileName string, data []byte) (*domain.UploadedFile, error) {
	ctx, span := tracer.Start(ctx, "Client.IngestFile")
	defer span.End()
	span.SetAttributes(
		attribute.String("file.name", fileName),
		attribute.Int("file.bytes", len(data)),
	)

	file, err := callOnce(ctx, c, "file", fileName, func() (openai.File, error) {
		return c.api.CreateFileBytes(ctx, openai.FileBytesRequest{
			Name:    fileName,
			Bytes:   data,
			Purpose: openai.PurposeAssistants,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("file.id", file.ID))
	name := file.FileName
	if name == "" {
		name = fileName
	}
	return &domain.UploadedFile{ID: file.ID, Name: name, Bytes: len(data)}, nil
}
