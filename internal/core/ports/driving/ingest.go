package driving

import (
	"context"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// IngestService turns source data into evidence records.
type IngestService interface {
	// IngestRow converts one row. A malformed row is fatal and returns
	// a *domain.IngestionError.
	IngestRow(ctx context.Context, row domain.SourceRow) ([]domain.EvidenceRecord, error)

	// IngestRows converts many rows. Malformed rows are logged and skipped;
	// duplicate identifiers are fatal.
	IngestRows(ctx context.Context, rows []domain.SourceRow) (*domain.IngestReport, error)

	// IngestFile reads a CSV or JSONL file and ingests its rows in batch mode.
	IngestFile(ctx context.Context, path string) (*domain.IngestReport, error)

	// IngestLegacyDir parses a directory of line-oriented clinical files.
	IngestLegacyDir(ctx context.Context, dir string) ([]domain.EvidenceRecord, error)
}

// IndexService builds and opens index generations.
type IndexService interface {
	// Build indexes the records as a new generation and persists it atomically.
	Build(ctx context.Context, records []domain.EvidenceRecord) (*driven.Corpus, error)

	// Open loads the current generation, verifying that its artifacts agree.
	Open(ctx context.Context) (*driven.Corpus, error)

	// List describes stored generations.
	List(ctx context.Context) ([]domain.IndexInfo, error)
}
