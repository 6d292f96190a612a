package memory

import (
	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// Ensure EvidenceStore implements the interface.
var _ driven.EvidenceStore = (*EvidenceStore)(nil)

// EvidenceStore is an immutable in-memory implementation of driven.EvidenceStore.
// It is populated once by NewEvidenceStore and only read afterwards, so it
// needs no locking when shared between goroutines.
type EvidenceStore struct {
	records []domain.EvidenceRecord
	byID    map[string]int
}

// NewEvidenceStore copies the records into a new store, keeping their order
// as the ordinal order. Returns *domain.DuplicateEvidenceIDError if two
// records share an identifier.
func NewEvidenceStore(records []domain.EvidenceRecord) (*EvidenceStore, error) {
	s := &EvidenceStore{
		records: make([]domain.EvidenceRecord, len(records)),
		byID:    make(map[string]int, len(records)),
	}
	for i, rec := range records {
		if _, dup := s.byID[rec.ID]; dup {
			return nil, &domain.DuplicateEvidenceIDError{ID: rec.ID}
		}
		s.byID[rec.ID] = i
		s.records[i] = copyRecord(rec)
	}
	return s, nil
}

// Get retrieves a record by id.
func (s *EvidenceStore) Get(id string) (domain.EvidenceRecord, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.EvidenceRecord{}, false
	}
	return s.records[i], true
}

// Has reports whether an id exists.
func (s *EvidenceStore) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// At returns the record at an ordinal position.
func (s *EvidenceStore) At(ordinal int) domain.EvidenceRecord {
	return s.records[ordinal]
}

// Len returns the number of records.
func (s *EvidenceStore) Len() int {
	return len(s.records)
}

// All returns the records in ordinal order.
func (s *EvidenceStore) All() []domain.EvidenceRecord {
	return s.records
}

// copyRecord detaches the metadata map so later edits by the caller
// cannot reach into the store.
func copyRecord(rec domain.EvidenceRecord) domain.EvidenceRecord {
	if rec.Metadata == nil {
		return rec
	}
	meta := make(map[string]string, len(rec.Metadata))
	for k, v := range rec.Metadata {
		meta[k] = v
	}
	rec.Metadata = meta
	return rec
}
