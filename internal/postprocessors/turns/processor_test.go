package turns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessor_Split_Speakers(t *testing.T) {
	text := "Doctor: What brings you in? Patient: My stomach hurts. Doctor: Since when?"

	spans, err := New().Split(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, spans, 3)
	assert.Equal(t, "Doctor: What brings you in?", spans[0].Text)
	assert.Equal(t, "Patient: My stomach hurts.", spans[1].Text)
	assert.Equal(t, "Doctor: Since when?", spans[2].Text)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, spans[0].End, spans[1].Start)
	assert.Equal(t, len(text), spans[2].End)
}

func TestProcessor_Split_ShortLabelsAndPreamble(t *testing.T) {
	text := "Visit transcript\nDr: How is the pain?\nP: Worse at night."

	spans, err := New().Split(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, spans, 3)
	assert.Equal(t, "Visit transcript", spans[0].Text)
	assert.Equal(t, "Dr: How is the pain?", spans[1].Text)
	assert.Equal(t, "P: Worse at night.", spans[2].Text)
}

func TestProcessor_Split_IgnoresEmbeddedLabels(t *testing.T) {
	text := "Nurse: BP: 120/80 and stable"

	spans, err := New().Split(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, text, spans[0].Text)
}

func TestProcessor_Split_LineFallback(t *testing.T) {
	text := "short\n  this line is comfortably long enough  \nok\nanother sufficiently long line here"

	spans, err := New().Split(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, "this line is comfortably long enough", spans[0].Text)
	assert.Equal(t, spans[0].Text, text[spans[0].Start:spans[0].End])
	assert.Equal(t, spans[1].Text, text[spans[1].Start:spans[1].End])
}

func TestProcessor_Split_WholeTextFallback(t *testing.T) {
	spans, err := New().Split(context.Background(), "hi\nok")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "hi\nok", spans[0].Text)
}

func TestProcessor_Split_Empty(t *testing.T) {
	spans, err := New().Split(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestProcessor_Name(t *testing.T) {
	assert.Equal(t, "turns", New().Name())
}
