package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrLLMUnavailable", ErrLLMUnavailable},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrIngestion", ErrIngestion},
		{"ErrDuplicateEvidenceID", ErrDuplicateEvidenceID},
		{"ErrRetrieval", ErrRetrieval},
		{"ErrStaleIndex", ErrStaleIndex},
		{"ErrInferenceTimeout", ErrInferenceTimeout},
		{"ErrContextLimit", ErrContextLimit},
		{"ErrInference", ErrInference},
		{"ErrSchemaValidation", ErrSchemaValidation},
		{"ErrEvidenceIntegrity", ErrEvidenceIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestIngestionError(t *testing.T) {
	cause := errors.New("bad json")
	err := fmt.Errorf("wrapped: %w", &IngestionError{RowID: 7, Field: "summary", Err: cause})

	assert.True(t, errors.Is(err, ErrIngestion))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "row 7 field summary")

	var ie *IngestionError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 7, ie.RowID)
}

func TestDuplicateEvidenceIDError(t *testing.T) {
	err := &DuplicateEvidenceIDError{ID: "CN_1_0"}

	assert.True(t, errors.Is(err, ErrDuplicateEvidenceID))
	assert.False(t, errors.Is(err, ErrIngestion))
	assert.Contains(t, err.Error(), "CN_1_0")
}

func TestInferenceError_UnwrapsOriginal(t *testing.T) {
	err := &InferenceError{Attempts: 3, Err: ErrContextLimit}

	assert.True(t, errors.Is(err, ErrInference))
	assert.True(t, errors.Is(err, ErrContextLimit))
	assert.Contains(t, err.Error(), "3 attempt")
}

func TestSchemaValidationError_KeepsRaw(t *testing.T) {
	err := &SchemaValidationError{Schema: "differential", Raw: "not json", Err: errors.New("syntax")}

	assert.True(t, errors.Is(err, ErrSchemaValidation))
	var sve *SchemaValidationError
	require.True(t, errors.As(error(err), &sve))
	assert.Equal(t, "not json", sve.Raw)
}

func TestEvidenceIntegrityError_Message(t *testing.T) {
	err := &EvidenceIntegrityError{
		Artifact: "report",
		Violations: []Violation{
			{Path: "summary[0]", Reason: ReasonMissingEvidence},
			{Path: "summary[1]", Reason: ReasonUnknownEvidence, EvidenceID: "L999999"},
			{Path: "differential[0].support[0]", Reason: ReasonBackgroundEvidence, EvidenceID: "D000001"},
			{Path: "differential[0].support[1]", Reason: ReasonBackgroundEvidence, EvidenceID: "C000001"},
		},
	}

	assert.True(t, errors.Is(err, ErrEvidenceIntegrity))
	msg := err.Error()
	assert.Contains(t, msg, "4 citation violation(s)")
	assert.Contains(t, msg, "L999999")
	assert.Contains(t, msg, "...")
	assert.NotContains(t, msg, "C000001")
}
