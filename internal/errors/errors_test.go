package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		severity Severity
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError},
		{ErrCodeParseFailed, CategoryIO, SeverityError},
		{ErrCodeNetworkTimeout, CategoryBackend, SeverityWarning},
		{ErrCodeQuestionEmpty, CategoryValidation, SeverityError},
		{ErrCodeCorruptIndex, CategoryIO, SeverityFatal},
		{ErrCodeInternal, CategoryInternal, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestStageError_CarriesStageAndCode(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := StageError(StageEmbed, cause)

	require.NotNil(t, err)
	assert.Equal(t, ErrCodeEmbedFailed, err.Code)
	assert.Equal(t, StageEmbed, err.Stage)
	assert.ErrorIs(t, err, cause)
}

func TestStageError_NilCause(t *testing.T) {
	assert.Nil(t, StageError(StageGenerate, nil))
}

func TestGetStage_ThroughWrappedChain(t *testing.T) {
	inner := StageError(StageRetrieve, fmt.Errorf("index offline"))
	outer := fmt.Errorf("query failed: %w", inner)

	assert.Equal(t, StageRetrieve, GetStage(outer))
	assert.Equal(t, ErrCodeSearchFailed, GetCode(outer))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeQuestionEmpty, "empty", nil)
	b := New(ErrCodeQuestionEmpty, "different message", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, New(ErrCodeInternal, "x", nil)))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeNetworkTimeout, "timeout", nil)))
	assert.False(t, IsRetryable(New(ErrCodeEmbedFailed, "bad", nil)))
	assert.False(t, IsRetryable(nil))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}
