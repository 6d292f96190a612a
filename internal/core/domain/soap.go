package domain

import (
	"fmt"
	"strings"
)

// Section is one of the four SOAP note sections.
type Section string

// SOAP sections in classification priority order.
const (
	SectionSubjective Section = "S"
	SectionObjective  Section = "O"
	SectionAssessment Section = "A"
	SectionPlan       Section = "P"
)

// AllSections returns the sections in S, O, A, P order.
func AllSections() []Section {
	return []Section{SectionSubjective, SectionObjective, SectionAssessment, SectionPlan}
}

// IsValid returns true if the section is recognised.
func (s Section) IsValid() bool {
	switch s {
	case SectionSubjective, SectionObjective, SectionAssessment, SectionPlan:
		return true
	default:
		return false
	}
}

// IsPatientFacing is true for sections that hold direct patient findings.
// Background evidence is blocked from these sections.
func (s Section) IsPatientFacing() bool {
	return s == SectionSubjective || s == SectionObjective
}

// Description returns the section name.
func (s Section) Description() string {
	switch s {
	case SectionSubjective:
		return "Subjective"
	case SectionObjective:
		return "Objective"
	case SectionAssessment:
		return "Assessment"
	case SectionPlan:
		return "Plan"
	default:
		return unknownDescription
	}
}

// ParseSection resolves a letter or a full name to a Section.
func ParseSection(s string) (Section, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "S", "SUBJECTIVE":
		return SectionSubjective, nil
	case "O", "OBJECTIVE":
		return SectionObjective, nil
	case "A", "ASSESSMENT":
		return SectionAssessment, nil
	case "P", "PLAN":
		return SectionPlan, nil
	default:
		return "", fmt.Errorf("%w: unknown section %q", ErrInvalidInput, s)
	}
}

// Fact is a labelled value with its supporting evidence.
type Fact struct {
	Label       string   `json:"label"`
	Value       string   `json:"value"`
	EvidenceIDs []string `json:"evidence_ids"`
}

// SOAPContext holds the classified facts for one case.
type SOAPContext struct {
	RowID *int   `json:"row_id,omitempty"`
	S     []Fact `json:"S"`
	O     []Fact `json:"O"`
	A     []Fact `json:"A"`
	P     []Fact `json:"P"`
}

// Facts returns the fact list for a section.
func (c *SOAPContext) Facts(s Section) []Fact {
	switch s {
	case SectionSubjective:
		return c.S
	case SectionObjective:
		return c.O
	case SectionAssessment:
		return c.A
	case SectionPlan:
		return c.P
	default:
		return nil
	}
}

// Append adds a fact to a section.
func (c *SOAPContext) Append(s Section, f Fact) {
	switch s {
	case SectionSubjective:
		c.S = append(c.S, f)
	case SectionObjective:
		c.O = append(c.O, f)
	case SectionAssessment:
		c.A = append(c.A, f)
	case SectionPlan:
		c.P = append(c.P, f)
	}
}

// Len returns the total number of facts.
func (c *SOAPContext) Len() int {
	return len(c.S) + len(c.O) + len(c.A) + len(c.P)
}

// RetrievalResult is one ranked hit. Ephemeral; recomputed per query.
type RetrievalResult struct {
	EvidenceID string  `json:"evidence_id"`
	Score      float64 `json:"fused_score"`
	Text       string  `json:"text"`

	// Ordinal is the record's position in the corpus and the tie-break key.
	Ordinal int `json:"-"`
}

// EvidencePack is a ranked, section-scoped evidence list for one generation call.
type EvidencePack struct {
	Section Section           `json:"section"`
	Query   string            `json:"query"`
	Results []RetrievalResult `json:"results"`

	// Template is set for Plan packs built from missing information.
	Template string `json:"template,omitempty"`
}

// IDs returns the evidence ids in rank order.
func (p EvidencePack) IDs() []string {
	ids := make([]string, len(p.Results))
	for i, r := range p.Results {
		ids[i] = r.EvidenceID
	}
	return ids
}

// Text renders the pack as "[id] text" lines for a prompt. When the next
// line would exceed maxChars a truncation marker ends the list.
// A non-positive maxChars means no limit.
func (p EvidencePack) Text(maxChars int) string {
	lines := make([]string, 0, len(p.Results)+1)
	total := 0
	for _, r := range p.Results {
		line := fmt.Sprintf("[%s] %s", r.EvidenceID, r.Text)
		if maxChars > 0 && total+len(line) > maxChars {
			lines = append(lines, "[... truncated ...]")
			break
		}
		lines = append(lines, line)
		total += len(line)
	}
	if p.Template != "" {
		lines = append(lines, p.Template)
	}
	return strings.Join(lines, "\n")
}
