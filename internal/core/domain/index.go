package domain

import "time"

// LexicalSnapshot is the serialisable state of a BM25 index.
// DocTerms[i] holds term frequencies of the record at ordinal i.
type LexicalSnapshot struct {
	DocTerms  []map[string]int `json:"doc_terms"`
	DocLens   []int            `json:"doc_lens"`
	AvgDocLen float64          `json:"avg_doc_len"`
	DocFreq   map[string]int   `json:"doc_freq"`
}

// IndexBundle is one atomic generation of index artifacts.
// Records[i].ID is the document id list; Vectors[i] and
// Lexical.DocTerms[i] are aligned with it. The checksum covers all of them.
type IndexBundle struct {
	Generation     string           `json:"generation"`
	Checksum       string           `json:"checksum"`
	CreatedAt      time.Time        `json:"created_at"`
	EmbeddingModel string           `json:"embedding_model"`
	Dimensions     int              `json:"dimensions"`
	Records        []EvidenceRecord `json:"records"`
	Vectors        [][]float32      `json:"vectors"`
	Lexical        LexicalSnapshot  `json:"lexical"`
}

// DocumentIDs returns the ordered id list aligned with vector rows.
func (b *IndexBundle) DocumentIDs() []string {
	ids := make([]string, len(b.Records))
	for i := range b.Records {
		ids[i] = b.Records[i].ID
	}
	return ids
}

// IndexInfo describes a stored generation without loading it.
type IndexInfo struct {
	Generation     string    `json:"generation"`
	Checksum       string    `json:"checksum"`
	CreatedAt      time.Time `json:"created_at"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimensions     int       `json:"dimensions"`
	Records        int       `json:"records"`
}

// RunStatus is the outcome of one case run.
type RunStatus string

// Run statuses.
const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the persisted summary of one case run.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	BatchID    string    `json:"batch_id,omitempty"`
	RowID      *int      `json:"row_id,omitempty"`
	Generation string    `json:"generation"`
	Status     RunStatus `json:"status"`
	Score      int       `json:"score"`
	Passed     bool      `json:"passed"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
