package driven

import "github.com/Pg1910/clinical-rag/internal/core/domain"

// LexicalIndex provides sparse keyword relevance.
// Backed by BM25Okapi over lower-cased whitespace tokens.
// Implementations are immutable after construction and safe for concurrent reads.
type LexicalIndex interface {
	// Scores returns the relevance of every document to the query,
	// indexed by record ordinal.
	Scores(query string) []float64

	// Len returns the number of indexed documents.
	Len() int

	// Snapshot returns the serialisable index state.
	Snapshot() domain.LexicalSnapshot
}
