package driven

import "github.com/Pg1910/clinical-rag/internal/core/domain"

// IndexFactory builds and reopens the indexes of one corpus generation.
type IndexFactory interface {
	// BuildLexical indexes texts in ordinal order.
	BuildLexical(texts []string) LexicalIndex

	// OpenLexical restores a lexical index from its snapshot.
	OpenLexical(snapshot domain.LexicalSnapshot) (LexicalIndex, error)

	// OpenVector wraps normalised vectors of the given dimension.
	OpenVector(vectors [][]float32, dims int) (VectorIndex, error)

	// OpenStore holds the records in ordinal order for id lookups.
	OpenStore(records []domain.EvidenceRecord) (EvidenceStore, error)
}
