package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EvidenceType classifies the origin of an evidence record.
type EvidenceType string

// Available evidence types.
const (
	// EvidenceCSVSummary is a flattened structured-summary leaf.
	EvidenceCSVSummary EvidenceType = "csv_summary"

	// EvidenceCSVNote is a window of the short note field.
	EvidenceCSVNote EvidenceType = "csv_note"

	// EvidenceCSVFullNote is a window of the long note field.
	EvidenceCSVFullNote EvidenceType = "csv_full_note"

	// EvidenceCSVConversation is one conversation turn.
	EvidenceCSVConversation EvidenceType = "csv_conv"

	// EvidenceNarrative is a line of the legacy patient narrative.
	EvidenceNarrative EvidenceType = "narrative"

	// EvidenceLab is one lab measurement.
	EvidenceLab EvidenceType = "lab"

	// EvidenceMonitor is one monitor sample joined with its codebook entry.
	EvidenceMonitor EvidenceType = "monitor"

	// EvidenceDomain is a background reference paragraph.
	EvidenceDomain EvidenceType = "domain"

	// EvidenceCodebook is a monitor codebook definition.
	EvidenceCodebook EvidenceType = "codebook"

	// EvidenceFlowsheet is a flowsheet line.
	EvidenceFlowsheet EvidenceType = "flowsheet"
)

var evidencePrefixes = map[EvidenceType]string{
	EvidenceCSVSummary:      "CS",
	EvidenceCSVNote:         "CN",
	EvidenceCSVFullNote:     "CF",
	EvidenceCSVConversation: "CV",
	EvidenceNarrative:       "N",
	EvidenceLab:             "L",
	EvidenceMonitor:         "M",
	EvidenceDomain:          "D",
	EvidenceCodebook:        "C",
	EvidenceFlowsheet:       "F",
}

// IsValid returns true if the evidence type is recognised.
func (t EvidenceType) IsValid() bool {
	_, ok := evidencePrefixes[t]
	return ok
}

// Prefix returns the identifier prefix for this type.
func (t EvidenceType) Prefix() string {
	return evidencePrefixes[t]
}

// IsBackground returns true for reference material that must never
// ground a direct patient fact.
func (t EvidenceType) IsBackground() bool {
	return t == EvidenceDomain || t == EvidenceCodebook
}

// String returns the string representation.
func (t EvidenceType) String() string {
	return string(t)
}

// EvidenceTypeForPrefix resolves an identifier prefix back to its type.
func EvidenceTypeForPrefix(prefix string) (EvidenceType, bool) {
	for t, p := range evidencePrefixes {
		if p == prefix {
			return t, true
		}
	}
	return "", false
}

// BackgroundPrefixes lists prefixes of background evidence.
func BackgroundPrefixes() []string {
	return []string{EvidenceDomain.Prefix(), EvidenceCodebook.Prefix()}
}

// Locator records where an evidence record came from.
type Locator struct {
	// SourceFile is set for line-oriented legacy inputs.
	SourceFile string `json:"source_file,omitempty"`

	// RowID is set for tabular inputs.
	RowID *int `json:"row_id,omitempty"`

	// Field is the column or logical field name.
	Field string `json:"field"`

	// ChunkIndex is the zero-based emission counter within (row, type).
	ChunkIndex int `json:"chunk_index"`

	// CharStart and CharEnd are byte offsets into the field, when known.
	CharStart *int `json:"char_start,omitempty"`
	CharEnd   *int `json:"char_end,omitempty"`
}

// EvidenceRecord is an atomic, citable span of source text.
// Records are immutable once written to a store.
type EvidenceRecord struct {
	ID       string            `json:"evidence_id"`
	Type     EvidenceType      `json:"evidence_type"`
	RawText  string            `json:"raw_text"`
	Locator  Locator           `json:"locator"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsBackground reports whether the record is reference material.
func (r EvidenceRecord) IsBackground() bool {
	return r.Type.IsBackground()
}

// FormatEvidenceID builds the row-scoped identifier {prefix}_{row}_{k}.
func FormatEvidenceID(t EvidenceType, rowID, k int) string {
	return fmt.Sprintf("%s_%d_%d", t.Prefix(), rowID, k)
}

// FormatLegacyID builds the legacy zero-padded identifier, e.g. L000042.
// Legacy counters are one-based.
func FormatLegacyID(t EvidenceType, n int) string {
	return fmt.Sprintf("%s%06d", t.Prefix(), n)
}

// PrefixOf extracts the type prefix from an evidence identifier.
// Row-scoped ids use the part before the first underscore; legacy ids
// use their leading letter.
func PrefixOf(id string) string {
	if id == "" {
		return ""
	}
	if i := strings.IndexByte(id, '_'); i >= 0 {
		return id[:i]
	}
	return id[:1]
}

// RowOf extracts the row number encoded in a row-scoped identifier.
// Returns false for legacy ids or ids without a numeric row component.
func RowOf(id string) (int, bool) {
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return 0, false
	}
	row, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return row, true
}

// IsBackgroundID reports whether an identifier denotes background evidence.
func IsBackgroundID(id string) bool {
	p := PrefixOf(id)
	for _, bg := range BackgroundPrefixes() {
		if p == bg {
			return true
		}
	}
	return false
}

// MatchesRow reports whether an identifier belongs to the given row.
// Identifiers that carry no row are kept.
func MatchesRow(id string, rowID int) bool {
	row, ok := RowOf(id)
	if !ok {
		return true
	}
	return row == rowID
}

// HasPrefix reports whether the id's type prefix is in the given set.
func HasPrefix(id string, prefixes []string) bool {
	p := PrefixOf(id)
	for _, want := range prefixes {
		if p == want {
			return true
		}
	}
	return false
}

// SourceRow is one tabular input row.
type SourceRow struct {
	ID           int    `json:"id"`
	Note         string `json:"note,omitempty"`
	FullNote     string `json:"full_note,omitempty"`
	Conversation string `json:"conversation,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

// IsEmpty returns true if the row carries no text in any field.
func (r SourceRow) IsEmpty() bool {
	return strings.TrimSpace(r.Note) == "" &&
		strings.TrimSpace(r.FullNote) == "" &&
		strings.TrimSpace(r.Conversation) == "" &&
		strings.TrimSpace(r.Summary) == ""
}

// NoOffset marks a span whose position in the source is unknown.
const NoOffset = -1

// Span is a half-open byte range [Start, End) of a source field with its
// stripped text. Splitters that cannot locate text set both offsets to NoOffset.
type Span struct {
	Start    int
	End      int
	Text     string
	Metadata map[string]string
}

// HasOffsets reports whether the span carries source positions.
func (s Span) HasOffsets() bool {
	return s.Start != NoOffset && s.End != NoOffset
}

// EnsureUnique returns *DuplicateEvidenceIDError for the first repeated id.
func EnsureUnique(records []EvidenceRecord) error {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.ID]; dup {
			return &DuplicateEvidenceIDError{ID: rec.ID}
		}
		seen[rec.ID] = struct{}{}
	}
	return nil
}
