package driving

import (
	"context"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// RetrievalService provides hybrid search to external actors.
type RetrievalService interface {
	// Search fuses lexical and vector relevance and returns at most topK
	// results in non-increasing score order.
	Search(ctx context.Context, corpus *driven.Corpus, query string, topK int) ([]domain.RetrievalResult, error)
}

// PackRequest selects the evidence packs of one case.
type PackRequest struct {
	// Queries overrides the per-section default query.
	Queries map[domain.Section]string

	// RowID restricts results to one source row when set.
	RowID *int

	// PlanMissing, when non-empty, replaces Plan retrieval with an
	// information-needed template.
	PlanMissing []string
}

// SOAPService provides section-aware retrieval.
type SOAPService interface {
	// SectionSearch retrieves and reranks evidence for one section.
	SectionSearch(ctx context.Context, corpus *driven.Corpus, section domain.Section, query string, rowID *int, topK int) (domain.EvidencePack, error)

	// BuildPacks builds the S, O, A and P packs.
	BuildPacks(ctx context.Context, corpus *driven.Corpus, req PackRequest) (map[domain.Section]domain.EvidencePack, error)

	// BuildGlobalContext classifies summary evidence found by search.
	BuildGlobalContext(ctx context.Context, corpus *driven.Corpus, rowID *int) (domain.SOAPContext, error)

	// BuildGlobalContextFromRow classifies the records of one row directly.
	BuildGlobalContextFromRow(records []domain.EvidenceRecord, rowID int) domain.SOAPContext

	// MissingSlots lists unfilled template slots per section.
	MissingSlots(soap domain.SOAPContext) map[domain.Section][]string

	// GenerateQueries derives section queries from a summary JSON document.
	GenerateQueries(summaryJSON string) map[domain.Section]string

	// QueriesFromFacts derives section queries from ingested summary facts.
	QueriesFromFacts(records []domain.EvidenceRecord, rowID *int) map[domain.Section]string
}
