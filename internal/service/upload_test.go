package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/agent-relay/internal/domain"
	"github.com/boddenberg/agent-relay/internal/infra/observability"
	"github.com/boddenberg/agent-relay/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockIngester struct {
	name  string
	data  []byte
	calls int
	err   error
}

func (m *mockIngester) IngestFile(_ context.Context, fileName string, data []byte) (*domain.UploadedFile, error) {
	m.calls++
	m.name = fileName
	m.data = data
	if m.err != nil {
		return nil, m.err
	}
	return &domain.UploadedFile{ID: "file-1", Name: fileName, Bytes: len(data)}, nil
}

func TestUpload_PassesBytesThrough(t *testing.T) {
	ingester := &mockIngester{}
	metrics := observability.NewMetrics()
	svc := service.NewUploadService(ingester, metrics, zap.NewNop())

	data := []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0xff}
	file, err := svc.Upload(context.Background(), "report.pdf", data)
	require.NoError(t, err)

	assert.Equal(t, "file-1", file.ID)
	assert.Equal(t, "report.pdf", ingester.name)
	assert.Equal(t, data, ingester.data)
	assert.Equal(t, int64(1), metrics.GetRelaySnapshot().Uploads)
}

func TestUpload_EmptyData(t *testing.T) {
	ingester := &mockIngester{}
	svc := service.NewUploadService(ingester, observability.NewMetrics(), zap.NewNop())

	_, err := svc.Upload(context.Background(), "empty.pdf", nil)

	var validation *domain.ErrValidation
	assert.True(t, errors.As(err, &validation))
	assert.Equal(t, 0, ingester.calls)
}

func TestUpload_IngesterError(t *testing.T) {
	boom := errors.New("storage unavailable")
	svc := service.NewUploadService(&mockIngester{err: boom}, observability.NewMetrics(), zap.NewNop())

	_, err := svc.Upload(context.Background(), "a.pdf", []byte("x"))
	assert.ErrorIs(t, err, boom)
}
