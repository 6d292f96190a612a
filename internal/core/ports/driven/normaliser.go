package driven

import (
	"context"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

// CorpusNormaliser turns a directory of line-oriented clinical files
// (narrative, labs, monitor stream, codebook, domain notes) into evidence records.
type CorpusNormaliser interface {
	// Normalise parses every recognised file under dir.
	Normalise(ctx context.Context, dir string) ([]domain.EvidenceRecord, error)
}

// RowSource reads tabular case rows.
type RowSource interface {
	// ReadRows parses every row in the file. Unparseable lines are reported
	// as skips rather than failing the read.
	ReadRows(ctx context.Context, path string) ([]domain.SourceRow, []domain.IngestSkip, error)
}
