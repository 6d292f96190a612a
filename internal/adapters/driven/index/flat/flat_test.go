package flat

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

func TestNew_RejectsRaggedRows(t *testing.T) {
	_, err := New([][]float32{{1, 0}, {1}}, 2)
	assert.ErrorIs(t, err, domain.ErrStaleIndex)

	_, err = New([][]float32{{1}}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	empty, err := New(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestSearch_OrdersByInnerProduct(t *testing.T) {
	idx, err := New([][]float32{{1, 0}, {0, 1}, {0.6, 0.8}}, 2)
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Ordinal)
	assert.Equal(t, 2, hits[1].Ordinal)
	assert.InDelta(t, 0.8, hits[1].Similarity, 1e-6)
}

func TestSearch_TiesKeepOrdinalOrder(t *testing.T) {
	idx, err := New([][]float32{{1, 0}, {1, 0}, {1, 0}}, 2)
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.Ordinal)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	idx, err := New([][]float32{{1, 0}}, 2)
	require.NoError(t, err)

	_, err = idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearch_CancelledContext(t *testing.T) {
	idx, err := New([][]float32{{1, 0}}, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, math.Sqrt(Dot(v, v)), 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}
