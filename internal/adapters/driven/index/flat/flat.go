// Package flat implements driven.VectorIndex as an exhaustive inner-product scan.
//
// Corpora here are one case file or one CSV export, so a linear scan over
// normalised float32 rows answers in well under a millisecond and returns
// exact neighbours.
package flat

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index is an immutable exact vector index.
type Index struct {
	dims    int
	vectors [][]float32
}

// New wraps vectors of the given dimension. Every row must have exactly
// dims components.
func New(vectors [][]float32, dims int) (*Index, error) {
	if dims <= 0 && len(vectors) > 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, want %d",
				domain.ErrStaleIndex, i, len(v), dims)
		}
	}
	return &Index{dims: dims, vectors: vectors}, nil
}

// Search returns the k rows with the highest inner product, best first.
// Equal similarities keep ordinal order.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) != idx.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			domain.ErrInvalidInput, len(query), idx.dims)
	}
	if k > len(idx.vectors) {
		k = len(idx.vectors)
	}
	if k <= 0 {
		return []driven.VectorHit{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hits := make([]driven.VectorHit, len(idx.vectors))
	for i, v := range idx.vectors {
		hits[i] = driven.VectorHit{Ordinal: i, Similarity: Dot(query, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Similarity > hits[b].Similarity
	})
	return hits[:k], nil
}

// Len returns the number of indexed rows.
func (idx *Index) Len() int {
	return len(idx.vectors)
}

// Dimensions returns the vector size.
func (idx *Index) Dimensions() int {
	return idx.dims
}

// Vectors returns the indexed rows.
func (idx *Index) Vectors() [][]float32 {
	return idx.vectors
}

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Normalize scales v to unit length in place. Zero vectors are left unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
