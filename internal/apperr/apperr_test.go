package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelpersWrapSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   error
	}{
		{"validation", Validation("question is empty"), ErrValidation},
		{"not found", NotFound("file %q", "a.pdf"), ErrNotFound},
		{"not configured", NotConfigured("embedder"), ErrNotConfigured},
		{"extraction", Extraction("a.pdf", errors.New("bad xref")), ErrExtraction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.is)
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.is)
		})
	}
}

func TestExtractionKeepsCause(t *testing.T) {
	cause := errors.New("bad xref")
	err := Extraction("a.pdf", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsExtraction(err))
	assert.Contains(t, err.Error(), "a.pdf")
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsValidation(Validation("x")))
	assert.False(t, IsNotFound(Validation("x")))
	assert.True(t, IsConflict(fmt.Errorf("user exists: %w", ErrConflict)))
	assert.True(t, IsNotConfigured(NotConfigured("llm")))
}
