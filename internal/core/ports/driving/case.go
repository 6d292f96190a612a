package driving

import (
	"context"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// GenerationService calls the inference backend under a prompt budget.
type GenerationService interface {
	// Generate returns the completion, retrying with a smaller prompt on
	// timeouts and context-limit errors. Exhaustion returns *domain.InferenceError.
	Generate(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// CaseService runs the full report pipeline for one case.
type CaseService interface {
	// Run produces a validated, scored report. Citation violations abort
	// the case with *domain.EvidenceIntegrityError.
	Run(ctx context.Context, corpus *driven.Corpus, req domain.CaseRequest) (*domain.CaseResult, error)

	// Draft extracts a SOAP note from the case's section packs.
	Draft(ctx context.Context, corpus *driven.Corpus, req domain.CaseRequest) (domain.SOAPContext, error)
}

// BatchService runs many cases with per-case failure isolation.
type BatchService interface {
	// Run processes every request. Failures are recorded, not returned.
	Run(ctx context.Context, corpus *driven.Corpus, reqs []domain.CaseRequest) (*domain.BatchResult, error)
}
