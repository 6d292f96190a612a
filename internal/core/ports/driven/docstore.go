package driven

import (
	"context"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

// EvidenceStore is the immutable id to record lookup of one corpus generation.
// It is built once and shared read-only by every retrieval operation;
// implementations must be safe for concurrent reads without locking.
type EvidenceStore interface {
	// Get returns the record for an id.
	Get(id string) (domain.EvidenceRecord, bool)

	// Has reports whether an id exists.
	Has(id string) bool

	// At returns the record at an ordinal position.
	At(ordinal int) domain.EvidenceRecord

	// Len returns the number of records.
	Len() int

	// All returns the records in ordinal order. Callers must not mutate them.
	All() []domain.EvidenceRecord
}

// BundleStore persists index generations atomically.
// Save writes every artifact of a bundle in one unit; a reader never observes
// a mix of two generations.
type BundleStore interface {
	// Save persists a complete bundle and marks it current.
	Save(ctx context.Context, bundle *domain.IndexBundle) error

	// Latest loads the current bundle. Returns domain.ErrNotFound if none exists.
	Latest(ctx context.Context) (*domain.IndexBundle, error)

	// List describes stored generations, newest first.
	List(ctx context.Context) ([]domain.IndexInfo, error)

	// Close releases resources.
	Close() error
}

// RunStore persists case run summaries.
type RunStore interface {
	// SaveRun records the outcome of one case.
	SaveRun(ctx context.Context, run domain.RunRecord) error

	// ListRuns returns recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}
