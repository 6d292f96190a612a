// Package index wires the lexical and vector index implementations behind
// driven.IndexFactory.
package index

import (
	"github.com/Pg1910/clinical-rag/internal/adapters/driven/index/bm25"
	"github.com/Pg1910/clinical-rag/internal/adapters/driven/index/flat"
	"github.com/Pg1910/clinical-rag/internal/adapters/driven/storage/memory"
	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.IndexFactory = (*Factory)(nil)

// Factory builds BM25 lexical indexes and flat vector indexes.
type Factory struct {
	opts []bm25.Option
}

// NewFactory creates a factory. BM25 options apply to every lexical index
// it builds or restores.
func NewFactory(opts ...bm25.Option) *Factory {
	return &Factory{opts: opts}
}

// BuildLexical indexes texts in ordinal order.
func (f *Factory) BuildLexical(texts []string) driven.LexicalIndex {
	return bm25.New(texts, f.opts...)
}

// OpenLexical restores a lexical index from its snapshot.
func (f *Factory) OpenLexical(snapshot domain.LexicalSnapshot) (driven.LexicalIndex, error) {
	return bm25.FromSnapshot(snapshot, f.opts...)
}

// OpenVector wraps normalised vectors of the given dimension.
func (f *Factory) OpenVector(vectors [][]float32, dims int) (driven.VectorIndex, error) {
	return flat.New(vectors, dims)
}

// OpenStore copies the records into an in-memory evidence store.
func (f *Factory) OpenStore(records []domain.EvidenceRecord) (driven.EvidenceStore, error) {
	return memory.NewEvidenceStore(records)
}
