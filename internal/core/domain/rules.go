package domain

import (
	"sort"
	"strings"
	"unicode"
)

// DiagnosisCategory is the mechanism family of a diagnosis or organ finding.
type DiagnosisCategory string

// Diagnosis categories.
const (
	CategoryRespiratory    DiagnosisCategory = "respiratory"
	CategoryHepatic        DiagnosisCategory = "hepatic"
	CategoryRenal          DiagnosisCategory = "renal"
	CategoryInfectious     DiagnosisCategory = "infectious"
	CategoryCoagulation    DiagnosisCategory = "coagulation"
	CategoryCardiovascular DiagnosisCategory = "cardiovascular"
	CategoryNeurologic     DiagnosisCategory = "neurologic"
	CategoryOther          DiagnosisCategory = "other"
)

// IsValid returns true if the category is recognised.
func (c DiagnosisCategory) IsValid() bool {
	switch c {
	case CategoryRespiratory, CategoryHepatic, CategoryRenal, CategoryInfectious,
		CategoryCoagulation, CategoryCardiovascular, CategoryNeurologic, CategoryOther:
		return true
	default:
		return false
	}
}

// SectionRule configures retrieval and classification for one SOAP section.
type SectionRule struct {
	Section Section `yaml:"section"`

	// BoostTerms drive query expansion and keyword-density rerank.
	BoostTerms []string `yaml:"boost_terms"`

	// PreferredPrefixes earn the prefix boost during rerank.
	PreferredPrefixes []string `yaml:"preferred_prefixes"`

	// PackPrefixes narrow the final pack; an empty result keeps the unfiltered pack.
	PackPrefixes []string `yaml:"pack_prefixes"`

	PackSize     int    `yaml:"pack_size"`
	DefaultQuery string `yaml:"default_query"`

	// ClassifyTerms assign loosely-typed summary facts to this section.
	ClassifyTerms []string `yaml:"classify_terms"`

	// QueryKeys select summary fields that seed this section's query.
	QueryKeys []string `yaml:"query_keys"`

	// ContextCap bounds facts kept in the global context.
	ContextCap int `yaml:"context_cap"`

	// Slots are the expected facts reported as missing when absent.
	Slots []string `yaml:"slots"`
}

// RerankRule holds the section rerank multipliers.
type RerankRule struct {
	PrefixBoost       float64 `yaml:"prefix_boost"`
	KeywordStep       float64 `yaml:"keyword_step"`
	KeywordCap        int     `yaml:"keyword_cap"`
	NumericBoost      float64 `yaml:"numeric_boost"`
	NumericMin        int     `yaml:"numeric_min"`
	BackgroundPenalty float64 `yaml:"background_penalty"`
	ExpansionTerms    int     `yaml:"expansion_terms"`
}

// ActionTemplate is a deterministic follow-up for a diagnosis category.
type ActionTemplate struct {
	Item      string   `yaml:"item"`
	Rationale string   `yaml:"rationale"`
	Priority  Priority `yaml:"priority"`
}

// CategoryRule maps a diagnosis category to its keywords and cleanup rules.
type CategoryRule struct {
	Category DiagnosisCategory `yaml:"category"`

	// DiagnosisTerms match diagnosis names. Lower Precedence wins on ties.
	DiagnosisTerms []string `yaml:"diagnosis_terms"`
	Precedence     int      `yaml:"precedence"`

	// OrganTerms classify free-text findings into organ systems, in table order.
	OrganTerms []string `yaml:"organ_terms"`

	// WeakSupportLabels and WeakSupportValues denylist supports that are
	// mechanistically unrelated to this category.
	WeakSupportLabels []string `yaml:"weak_support_labels"`
	WeakSupportValues []string `yaml:"weak_support_values"`

	Actions []ActionTemplate `yaml:"actions"`
}

// ProvenanceCorrection rewrites the citation of a known mislabelled fact.
type ProvenanceCorrection struct {
	Term       string `yaml:"term"`
	EvidenceID string `yaml:"evidence_id"`
}

// OverlapGroup flags diagnoses sharing a clinical family.
type OverlapGroup struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`

	// Max is the largest count that does not raise a flag.
	Max int `yaml:"max"`
}

// QuestionTemplate is a canned clarifying question.
type QuestionTemplate struct {
	Key       string            `yaml:"key"`
	Category  DiagnosisCategory `yaml:"category"`
	Question  string            `yaml:"question"`
	Rationale string            `yaml:"rationale"`
}

// RuleSet is the declarative keyword table evaluated by the classifiers.
type RuleSet struct {
	Sections      []SectionRule          `yaml:"sections"`
	Rerank        RerankRule             `yaml:"rerank"`
	Categories    []CategoryRule         `yaml:"categories"`
	Corrections   []ProvenanceCorrection `yaml:"corrections"`
	CleanupGroups []OverlapGroup         `yaml:"cleanup_overlap"`
	GateGroups    []OverlapGroup         `yaml:"gate_overlap"`
	Questions     []QuestionTemplate     `yaml:"questions"`
	KeyLabs       []string               `yaml:"key_labs"`

	// SubjectiveTurnTerms pick conversation turns that state a complaint.
	SubjectiveTurnTerms []string `yaml:"subjective_turn_terms"`

	// MissingEvidencePlaceholder fills empty missing lists of weak diagnoses.
	MissingEvidencePlaceholder string `yaml:"missing_evidence_placeholder"`
}

// Section returns the rule for a section.
func (r *RuleSet) Section(s Section) SectionRule {
	for _, rule := range r.Sections {
		if rule.Section == s {
			return rule
		}
	}
	return SectionRule{Section: s}
}

// Category returns the rule for a category.
func (r *RuleSet) Category(c DiagnosisCategory) (CategoryRule, bool) {
	for _, rule := range r.Categories {
		if rule.Category == c {
			return rule, true
		}
	}
	return CategoryRule{}, false
}

// ClassifyDiagnosis maps a diagnosis name to its category.
func (r *RuleSet) ClassifyDiagnosis(name string) DiagnosisCategory {
	rules := make([]CategoryRule, len(r.Categories))
	copy(rules, r.Categories)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Precedence < rules[j].Precedence
	})
	for _, rule := range rules {
		if ContainsAnyTerm(name, rule.DiagnosisTerms) {
			return rule.Category
		}
	}
	return CategoryOther
}

// ClassifyOrgan maps a free-text finding to an organ system.
func (r *RuleSet) ClassifyOrgan(text string) DiagnosisCategory {
	for _, rule := range r.Categories {
		if ContainsAnyTerm(text, rule.OrganTerms) {
			return rule.Category
		}
	}
	return CategoryOther
}

// ClassifySection assigns a fact to a SOAP section by testing each
// section's terms in S, O, A, P order. Unmatched facts default to Objective.
func (r *RuleSet) ClassifySection(text string) Section {
	for _, s := range AllSections() {
		if ContainsAnyTerm(text, r.Section(s).ClassifyTerms) {
			return s
		}
	}
	return SectionObjective
}

// IsKeyLab reports whether a lab label is on the priority list.
func (r *RuleSet) IsKeyLab(label string) bool {
	return ContainsAnyTerm(label, r.KeyLabs)
}

// CountTerms returns how many distinct terms occur in text.
func CountTerms(text string, terms []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, t := range terms {
		if containsTerm(lower, strings.ToLower(t)) {
			n++
		}
	}
	return n
}

// ContainsAnyTerm reports whether any term occurs in text.
// Terms starting with a letter must start at a word boundary, so that
// "aki" does not match "making" while "hepat" still matches "hepatic".
func ContainsAnyTerm(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if containsTerm(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func containsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	first := []rune(term)[0]
	if !unicode.IsLetter(first) {
		return strings.Contains(text, term)
	}
	from := 0
	for {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		at := from + i
		if at == 0 || !isWordByte(text[at-1]) {
			return true
		}
		from = at + 1
	}
}

// isWordByte treats only letters as word characters so that snake_case
// keys such as chief_complaint still match "complaint".
func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
