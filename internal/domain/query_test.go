package domain_test

import (
	"errors"
	"testing"

	"github.com/boddenberg/agent-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestQueryRequest_ToQuery(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.QueryRequest
		want    domain.Query
		wantErr bool
	}{
		{"query only", domain.QueryRequest{Query: ptr("hello")}, domain.Query{Text: "hello"}, false},
		{"with thread", domain.QueryRequest{Query: ptr("hi"), ThreadID: ptr("t1")}, domain.Query{Text: "hi", ThreadID: "t1"}, false},
		{"query text kept verbatim", domain.QueryRequest{Query: ptr("  <b>x</b> ")}, domain.Query{Text: "  <b>x</b> "}, false},
		{"blank thread means none", domain.QueryRequest{Query: ptr("hi"), ThreadID: ptr("   ")}, domain.Query{Text: "hi"}, false},
		{"missing query", domain.QueryRequest{ThreadID: ptr("t1")}, domain.Query{}, true},
		{"blank query", domain.QueryRequest{Query: ptr(" \t ")}, domain.Query{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.ToQuery()
			if tt.wantErr {
				var verr *domain.ErrValidation
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "query", verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
