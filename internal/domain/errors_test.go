package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"transient", NewTransientError("uniprot", 500, errors.New("server error")), ErrKindTransient},
		{"permanent", NewPermanentError("uniprot", 400, "bad request"), ErrKindPermanent},
		{"not found", NewNotFoundError("clinvar", "rs1"), ErrKindNotFound},
		{"malformed", NewMalformedError("pharmgkb", errors.New("bad json")), ErrKindMalformed},
		{"contract violation", NewContractViolation("rsid", "malformed"), ErrKindContractViolation},
		{"wrapped typed error", fmt.Errorf("fetch: %w", NewNotFoundError("clinvar", "rs1")), ErrKindNotFound},
		{"cancelled sentinel", fmt.Errorf("backoff: %w", ErrCancelled), ErrKindCancelled},
		{"untyped defaults to transient", errors.New("dial tcp: connection refused"), ErrKindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError("snomed", "term")))
	assert.False(t, IsNotFound(NewPermanentError("snomed", 400, "")))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestUpstreamError_Error(t *testing.T) {
	withStatus := NewPermanentError("uniprot", 400, "bad query")
	assert.Contains(t, withStatus.Error(), "status 400")
	assert.Contains(t, withStatus.Error(), "uniprot")

	withoutStatus := NewNotFoundError("clinvar", "rs1")
	assert.NotContains(t, withoutStatus.Error(), "status")
}
