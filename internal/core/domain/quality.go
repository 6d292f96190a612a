package domain

// QualityGateResult is the derived structural score of a report.
// It is recomputed per report and never persisted as authoritative state.
type QualityGateResult struct {
	Passed   bool           `json:"passed"`
	Score    int            `json:"score"`
	Warnings []string       `json:"warnings"`
	Errors   []string       `json:"errors"`
	Metrics  map[string]any `json:"metrics"`
}

// Violation is one citation-integrity failure.
type Violation struct {
	// Path locates the offending item, e.g. "differential[1].support[0]".
	Path string `json:"path"`

	// Reason is "missing_evidence", "unknown_evidence" or "background_evidence".
	Reason string `json:"reason"`

	// EvidenceID is the offending id, when applicable.
	EvidenceID string `json:"evidence_id,omitempty"`

	// Text is the offending statement.
	Text string `json:"text,omitempty"`
}

// Violation reasons.
const (
	ReasonMissingEvidence    = "missing_evidence"
	ReasonUnknownEvidence    = "unknown_evidence"
	ReasonBackgroundEvidence = "background_evidence"
)

// ValidationResult groups violations with non-fatal completeness warnings.
type ValidationResult struct {
	Violations []Violation `json:"violations"`
	Warnings   []string    `json:"warnings"`
}

// OK returns true if there are no violations.
func (v ValidationResult) OK() bool {
	return len(v.Violations) == 0
}

// Merge appends another result's findings.
func (v *ValidationResult) Merge(other ValidationResult) {
	v.Violations = append(v.Violations, other.Violations...)
	v.Warnings = append(v.Warnings, other.Warnings...)
}
