package domain

// ExtractedFact is a patient-state fact produced by extraction.
type ExtractedFact = Fact

// PatientState is the structured extraction of one case.
type PatientState struct {
	Demographics []ExtractedFact `json:"demographics"`
	Diagnoses    []ExtractedFact `json:"diagnoses"`
	Procedures   []ExtractedFact `json:"procedures"`
	Supports     []ExtractedFact `json:"supports"`
	Meds         []ExtractedFact `json:"meds"`
	Timeline     []ExtractedFact `json:"timeline"`
}

// Groups returns each fact list keyed by its JSON field name.
func (p PatientState) Groups() map[string][]ExtractedFact {
	return map[string][]ExtractedFact{
		"demographics": p.Demographics,
		"diagnoses":    p.Diagnoses,
		"procedures":   p.Procedures,
		"supports":     p.Supports,
		"meds":         p.Meds,
		"timeline":     p.Timeline,
	}
}

// IsEmpty returns true if no facts were extracted.
func (p PatientState) IsEmpty() bool {
	for _, facts := range p.Groups() {
		if len(facts) > 0 {
			return false
		}
	}
	return true
}

// SummaryBullet is one cited summary statement.
type SummaryBullet struct {
	Text        string   `json:"text"`
	EvidenceIDs []string `json:"evidence_ids"`
}

// ICUSummary is the organ-system structured summary.
type ICUSummary struct {
	PatientInfo     []SummaryBullet `json:"patient_info"`
	PrimaryProblems []SummaryBullet `json:"primary_problems"`
	Respiratory     []SummaryBullet `json:"respiratory"`
	Cardiovascular  []SummaryBullet `json:"cardiovascular"`
	Hepatic         []SummaryBullet `json:"hepatic"`
	Renal           []SummaryBullet `json:"renal"`
	HematologyCoag  []SummaryBullet `json:"hematology_coag"`
	Infectious      []SummaryBullet `json:"infectious"`
	Neurologic      []SummaryBullet `json:"neurologic"`
	KeyLabs         []SummaryBullet `json:"key_labs"`
	Supports        []SummaryBullet `json:"supports"`
	Procedures      []SummaryBullet `json:"procedures"`
}

// Flatten returns all bullets in display order.
func (s ICUSummary) Flatten() []SummaryBullet {
	var out []SummaryBullet
	for _, group := range [][]SummaryBullet{
		s.PatientInfo, s.PrimaryProblems, s.Respiratory, s.Cardiovascular,
		s.Hepatic, s.Renal, s.HematologyCoag, s.Infectious, s.Neurologic,
		s.KeyLabs, s.Supports, s.Procedures,
	} {
		out = append(out, group...)
	}
	return out
}

// IsEmpty returns true if the summary has no bullets.
func (s ICUSummary) IsEmpty() bool {
	return len(s.Flatten()) == 0
}

// Confidence is the derived certainty of a diagnosis.
type Confidence string

// Confidence levels.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// IsValid returns true if the confidence is recognised.
func (c Confidence) IsValid() bool {
	return c == ConfidenceLow || c == ConfidenceMedium || c == ConfidenceHigh
}

// DifferentialDiagnosis is one candidate diagnosis with its evidence.
type DifferentialDiagnosis struct {
	Diagnosis  string     `json:"diagnosis"`
	Support    []Fact     `json:"support"`
	Against    []Fact     `json:"against"`
	Missing    []string   `json:"missing"`
	References []string   `json:"references"`
	Confidence Confidence `json:"confidence"`
}

// Priority ranks questions and actions.
type Priority string

// Priority levels.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// IsValid returns true if the priority is recognised.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// ClarifyingQuestion asks for information that discriminates diagnoses.
type ClarifyingQuestion struct {
	Question    string   `json:"question"`
	Rationale   string   `json:"rationale"`
	EvidenceIDs []string `json:"evidence_ids"`
	Priority    Priority `json:"priority"`
}

// ActionItem is a workflow follow-up.
type ActionItem struct {
	Item        string   `json:"item"`
	Rationale   string   `json:"rationale"`
	EvidenceIDs []string `json:"evidence_ids"`
	Priority    Priority `json:"priority"`
}

// Report is the final evidence-grounded clinical report.
type Report struct {
	PatientState        PatientState            `json:"patient_state"`
	Summary             []SummaryBullet         `json:"summary"`
	Differential        []DifferentialDiagnosis `json:"differential"`
	ClarifyingQuestions []ClarifyingQuestion    `json:"clarifying_questions"`
	ActionItems         []ActionItem            `json:"action_items"`
	Limitations         []string                `json:"limitations"`
}

// Composition is what the compose step contributes to a report.
type Composition struct {
	ClarifyingQuestions []ClarifyingQuestion `json:"clarifying_questions"`
	ActionItems         []ActionItem         `json:"action_items"`
	Limitations         []string             `json:"limitations"`
}
