package domain

import (
	"strconv"
	"time"
)

// CaseRequest selects one case to process.
type CaseRequest struct {
	// RowID restricts retrieval to one source row. Nil means the whole corpus
	// is one case, as with legacy file corpora.
	RowID *int `json:"row_id,omitempty"`

	// Query seeds section packs. Empty uses the section defaults.
	Query string `json:"query,omitempty"`
}

// Label returns a printable case name.
func (r CaseRequest) Label() string {
	if r.RowID == nil {
		return "corpus"
	}
	return "row " + strconv.Itoa(*r.RowID)
}

// CaseResult is the output of one case pipeline.
type CaseResult struct {
	RunID      string                   `json:"run_id"`
	Request    CaseRequest              `json:"request"`
	Report     Report                   `json:"report"`
	ICUSummary ICUSummary               `json:"icu_summary"`
	Quality    QualityGateResult        `json:"quality"`
	SOAP       SOAPContext              `json:"soap"`
	Packs      map[Section]EvidencePack `json:"packs"`
	Notes      []string                 `json:"notes,omitempty"`
	Duration   time.Duration            `json:"duration"`
}

// CaseFailure records one isolated batch failure.
type CaseFailure struct {
	Request CaseRequest `json:"request"`
	Error   string      `json:"error"`
}

// BatchResult summarises a batch run.
type BatchResult struct {
	BatchID    string        `json:"batch_id"`
	Completed  []*CaseResult `json:"completed"`
	Failed     []CaseFailure `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// IngestReport summarises a batch ingestion.
type IngestReport struct {
	Records []EvidenceRecord `json:"records"`
	Rows    int              `json:"rows"`
	Skipped []IngestSkip     `json:"skipped,omitempty"`
}

// IngestSkip records a malformed row skipped in batch mode.
type IngestSkip struct {
	RowID int    `json:"row_id"`
	Error string `json:"error"`
}
