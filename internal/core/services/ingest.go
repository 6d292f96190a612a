package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
	"github.com/Pg1910/clinical-rag/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService turns source rows and legacy files into evidence records.
type IngestService struct {
	splitters driven.FieldSplitters
	rows      driven.RowSource
	legacy    driven.CorpusNormaliser
}

// NewIngestService creates a new ingest service.
// The rows and legacy parameters are optional (can be nil).
func NewIngestService(
	splitters driven.FieldSplitters,
	rows driven.RowSource,
	legacy driven.CorpusNormaliser,
) *IngestService {
	return &IngestService{
		splitters: splitters,
		rows:      rows,
		legacy:    legacy,
	}
}

// rowField pairs one source column with its evidence type and splitter.
type rowField struct {
	name     string
	typ      domain.EvidenceType
	text     string
	splitter driven.Splitter
}

func (s *IngestService) fields(row domain.SourceRow) []rowField {
	return []rowField{
		{name: "note", typ: domain.EvidenceCSVNote, text: row.Note, splitter: s.splitters.Note},
		{name: "full_note", typ: domain.EvidenceCSVFullNote, text: row.FullNote, splitter: s.splitters.FullNote},
		{name: "conversation", typ: domain.EvidenceCSVConversation, text: row.Conversation, splitter: s.splitters.Conversation},
		{name: "summary", typ: domain.EvidenceCSVSummary, text: row.Summary, splitter: s.splitters.Summary},
	}
}

// IngestRow converts one row into records with ids {prefix}_{row}_{k}.
// Empty fields emit nothing. A malformed row returns *domain.IngestionError.
func (s *IngestService) IngestRow(ctx context.Context, row domain.SourceRow) ([]domain.EvidenceRecord, error) {
	if row.ID < 0 {
		return nil, &domain.IngestionError{
			RowID: row.ID,
			Err:   fmt.Errorf("%w: negative row id", domain.ErrInvalidInput),
		}
	}

	var records []domain.EvidenceRecord
	for _, f := range s.fields(row) {
		if strings.TrimSpace(f.text) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.splitter == nil {
			return nil, &domain.IngestionError{RowID: row.ID, Field: f.name, Err: errors.New("no splitter configured")}
		}

		spans, err := f.splitter.Split(ctx, f.text)
		if err != nil {
			return nil, &domain.IngestionError{RowID: row.ID, Field: f.name, Err: err}
		}
		for k, span := range spans {
			records = append(records, rowRecord(f, row.ID, k, span))
		}
	}

	if err := domain.EnsureUnique(records); err != nil {
		return nil, err
	}
	return records, nil
}

// rowRecord builds the record for the k-th span of a field.
func rowRecord(f rowField, rowID, k int, span domain.Span) domain.EvidenceRecord {
	id := rowID
	loc := domain.Locator{
		RowID:      &id,
		Field:      f.name,
		ChunkIndex: k,
	}
	if span.HasOffsets() {
		start, end := span.Start, span.End
		loc.CharStart = &start
		loc.CharEnd = &end
	}

	var meta map[string]string
	if len(span.Metadata) > 0 {
		meta = maps.Clone(span.Metadata)
	}

	return domain.EvidenceRecord{
		ID:       domain.FormatEvidenceID(f.typ, rowID, k),
		Type:     f.typ,
		RawText:  span.Text,
		Locator:  loc,
		Metadata: meta,
	}
}

// IngestRows converts rows in order. Rows failing with an ingestion error
// are logged and skipped; duplicate ids across rows are fatal.
func (s *IngestService) IngestRows(ctx context.Context, rows []domain.SourceRow) (*domain.IngestReport, error) {
	logger.Section("Ingest")

	report := &domain.IngestReport{Rows: len(rows)}
	for _, row := range rows {
		records, err := s.IngestRow(ctx, row)
		if err != nil {
			var ingestErr *domain.IngestionError
			if errors.As(err, &ingestErr) {
				logger.Warn("skipping row %d: %v", row.ID, err)
				report.Skipped = append(report.Skipped, domain.IngestSkip{RowID: row.ID, Error: err.Error()})
				continue
			}
			return nil, err
		}
		report.Records = append(report.Records, records...)
	}

	if err := domain.EnsureUnique(report.Records); err != nil {
		return nil, err
	}

	logger.Debug("ingested %d records from %d rows (%d skipped)",
		len(report.Records), report.Rows, len(report.Skipped))
	return report, nil
}

// IngestFile reads a CSV or JSONL file and ingests its rows. Unreadable
// rows reported by the reader are merged into the skip list.
func (s *IngestService) IngestFile(ctx context.Context, path string) (*domain.IngestReport, error) {
	if s.rows == nil {
		return nil, fmt.Errorf("ingest %s: no row source configured", path)
	}

	rows, skipped, err := s.rows.ReadRows(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	for _, skip := range skipped {
		logger.Warn("skipping row %d: %s", skip.RowID, skip.Error)
	}

	report, err := s.IngestRows(ctx, rows)
	if err != nil {
		return nil, err
	}
	report.Rows += len(skipped)
	report.Skipped = append(skipped, report.Skipped...)
	return report, nil
}

// IngestLegacyDir parses a directory of line-oriented clinical files.
func (s *IngestService) IngestLegacyDir(ctx context.Context, dir string) ([]domain.EvidenceRecord, error) {
	if s.legacy == nil {
		return nil, fmt.Errorf("ingest %s: no legacy normaliser configured", dir)
	}

	records, err := s.legacy.Normalise(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("normalise %s: %w", dir, err)
	}
	if err := domain.EnsureUnique(records); err != nil {
		return nil, err
	}

	logger.Debug("ingested %d legacy records from %s", len(records), dir)
	return records, nil
}
