package driven

import (
	"context"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

// Splitter divides one source field into citable spans.
// Splitters are pure: the same input always yields the same spans.
type Splitter interface {
	// Name returns the splitter name for logging and configuration.
	Name() string

	// Split returns spans in source order.
	Split(ctx context.Context, text string) ([]domain.Span, error)
}

// FieldSplitters holds one splitter per source-row field.
type FieldSplitters struct {
	Note         Splitter
	FullNote     Splitter
	Conversation Splitter
	Summary      Splitter
}
