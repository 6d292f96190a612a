package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// Generation stages fall back to deterministic output.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Retrieval degrades to lexical-only scoring.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrRateLimited indicates the inference backend rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// Pipeline Errors.

	// ErrIngestion indicates a malformed row or field.
	ErrIngestion = errors.New("ingestion failed")

	// ErrDuplicateEvidenceID indicates two records share an identifier.
	ErrDuplicateEvidenceID = errors.New("duplicate evidence id")

	// ErrRetrieval indicates the index or store is unavailable.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrStaleIndex indicates index artifacts do not belong to one generation.
	ErrStaleIndex = errors.New("stale or inconsistent index bundle")

	// ErrInferenceTimeout indicates the inference request exceeded its deadline.
	ErrInferenceTimeout = errors.New("inference timeout")

	// ErrContextLimit indicates the prompt exceeded the model context window.
	ErrContextLimit = errors.New("context length exceeded")

	// ErrInference indicates generation failed after the retry budget.
	ErrInference = errors.New("inference failed")

	// ErrSchemaValidation indicates model output did not match the schema.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrEvidenceIntegrity indicates a citation invariant was violated.
	ErrEvidenceIntegrity = errors.New("evidence integrity violated")
)

// IngestionError reports a malformed row or field.
type IngestionError struct {
	RowID int
	Field string
	Err   error
}

func (e *IngestionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("ingest row %d: %v", e.RowID, e.Err)
	}
	return fmt.Sprintf("ingest row %d field %s: %v", e.RowID, e.Field, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Is matches ErrIngestion.
func (e *IngestionError) Is(target error) bool { return target == ErrIngestion }

// DuplicateEvidenceIDError reports a uniqueness violation.
type DuplicateEvidenceIDError struct {
	ID string
}

func (e *DuplicateEvidenceIDError) Error() string {
	return fmt.Sprintf("duplicate evidence id %q", e.ID)
}

// Is matches ErrDuplicateEvidenceID.
func (e *DuplicateEvidenceIDError) Is(target error) bool { return target == ErrDuplicateEvidenceID }

// RetrievalError reports an unusable index or store.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Is matches ErrRetrieval.
func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// InferenceError reports generation failure after exhausting retries.
// Err is the error of the first failed attempt.
type InferenceError struct {
	Attempts int
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Is matches ErrInference.
func (e *InferenceError) Is(target error) bool { return target == ErrInference }

// SchemaValidationError keeps the raw model output for diagnostics.
type SchemaValidationError struct {
	Schema string
	Raw    string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Schema, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// Is matches ErrSchemaValidation.
func (e *SchemaValidationError) Is(target error) bool { return target == ErrSchemaValidation }

// EvidenceIntegrityError carries the full violation report of an artifact.
type EvidenceIntegrityError struct {
	Artifact   string
	Violations []Violation
}

func (e *EvidenceIntegrityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d citation violation(s)", e.Artifact, len(e.Violations))
	for i, v := range e.Violations {
		if i == 3 {
			fmt.Fprintf(&b, "; ...")
			break
		}
		fmt.Fprintf(&b, "; %s %s", v.Path, v.Reason)
		if v.EvidenceID != "" {
			fmt.Fprintf(&b, " (%s)", v.EvidenceID)
		}
	}
	return b.String()
}

// Is matches ErrEvidenceIntegrity.
func (e *EvidenceIntegrityError) Is(target error) bool { return target == ErrEvidenceIntegrity }
