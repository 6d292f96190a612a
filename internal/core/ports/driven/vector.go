package driven

import "context"

// VectorIndex provides dense similarity search over normalised embeddings.
// Row i of the index corresponds to record ordinal i of the evidence store.
// Implementations are immutable after construction and safe for concurrent reads.
type VectorIndex interface {
	// Search returns the k rows with the highest inner product to the query,
	// best first. k is capped at Len().
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Len returns the number of indexed rows.
	Len() int

	// Dimensions returns the vector size.
	Dimensions() int

	// Vectors returns the indexed rows for persistence.
	Vectors() [][]float32
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// Ordinal is the row of the matched record.
	Ordinal int

	// Similarity is the inner product of normalised vectors.
	Similarity float64
}
