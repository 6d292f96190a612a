package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

// citationPattern matches inline "[ID]" citations.
var citationPattern = regexp.MustCompile(`\[([A-Za-z]{1,2}(?:_\d+_\d+|\d{6}))\]`)

// Validator checks that every generated claim cites evidence that exists in
// the store and, for patient facts, is not background material.
type Validator struct {
	store driven.EvidenceStore
	gate  domain.GateSettings
}

// NewValidator creates a validator over one corpus generation.
func NewValidator(store driven.EvidenceStore, gate domain.GateSettings) *Validator {
	return &Validator{store: store, gate: gate}
}

// checkIDs reports a missing list, unknown ids and, when patient is set,
// background ids.
func (v *Validator) checkIDs(path, text string, ids []string, patient bool) []domain.Violation {
	if len(ids) == 0 {
		return []domain.Violation{{Path: path, Reason: domain.ReasonMissingEvidence, Text: text}}
	}
	var out []domain.Violation
	for _, id := range ids {
		switch {
		case !v.store.Has(id):
			out = append(out, domain.Violation{Path: path, Reason: domain.ReasonUnknownEvidence, EvidenceID: id, Text: text})
		case patient && domain.IsBackgroundID(id):
			out = append(out, domain.Violation{Path: path, Reason: domain.ReasonBackgroundEvidence, EvidenceID: id, Text: text})
		}
	}
	return out
}

// checkOptionalIDs validates ids that may legitimately be absent.
func (v *Validator) checkOptionalIDs(path, text string, ids []string) []domain.Violation {
	if len(ids) == 0 {
		return nil
	}
	return v.checkIDs(path, text, ids, true)
}

// ValidateSummary checks every summary bullet.
func (v *Validator) ValidateSummary(bullets []domain.SummaryBullet) []domain.Violation {
	var out []domain.Violation
	for i, b := range bullets {
		out = append(out, v.checkIDs(fmt.Sprintf("summary[%d]", i), b.Text, b.EvidenceIDs, true)...)
	}
	return out
}

// ValidateDifferential checks the support and against facts of each diagnosis.
// References may cite background evidence but must exist.
func (v *Validator) ValidateDifferential(diffs []domain.DifferentialDiagnosis) []domain.Violation {
	var out []domain.Violation
	for i, d := range diffs {
		for j, f := range d.Support {
			path := fmt.Sprintf("differential[%d].support[%d]", i, j)
			out = append(out, v.checkIDs(path, d.Diagnosis+": "+f.Label, f.EvidenceIDs, true)...)
		}
		for j, f := range d.Against {
			path := fmt.Sprintf("differential[%d].against[%d]", i, j)
			out = append(out, v.checkIDs(path, d.Diagnosis+": "+f.Label, f.EvidenceIDs, true)...)
		}
		for j, id := range d.References {
			if !v.store.Has(id) {
				out = append(out, domain.Violation{
					Path:       fmt.Sprintf("differential[%d].references[%d]", i, j),
					Reason:     domain.ReasonUnknownEvidence,
					EvidenceID: id,
					Text:       d.Diagnosis,
				})
			}
		}
	}
	return out
}

// ValidatePatientState checks every extracted fact.
func (v *Validator) ValidatePatientState(ps domain.PatientState) []domain.Violation {
	var out []domain.Violation
	groups := ps.Groups()
	for _, name := range patientStateGroups {
		for i, f := range groups[name] {
			out = append(out, v.checkIDs(fmt.Sprintf("patient_state.%s[%d]", name, i), f.Label, f.EvidenceIDs, true)...)
		}
	}
	return out
}

// patientStateGroups fixes the reporting order of PatientState groups.
var patientStateGroups = []string{"demographics", "diagnoses", "procedures", "supports", "meds", "timeline"}

// ValidateReport validates a whole report and returns the violations with
// completeness warnings. A non-empty violation list is returned as
// *domain.EvidenceIntegrityError.
func (v *Validator) ValidateReport(report domain.Report) (domain.ValidationResult, error) {
	var res domain.ValidationResult
	res.Violations = append(res.Violations, v.ValidatePatientState(report.PatientState)...)
	res.Violations = append(res.Violations, v.ValidateSummary(report.Summary)...)
	res.Violations = append(res.Violations, v.ValidateDifferential(report.Differential)...)

	for i, q := range report.ClarifyingQuestions {
		res.Violations = append(res.Violations,
			v.checkOptionalIDs(fmt.Sprintf("clarifying_questions[%d]", i), q.Question, q.EvidenceIDs)...)
	}
	for i, a := range report.ActionItems {
		res.Violations = append(res.Violations,
			v.checkOptionalIDs(fmt.Sprintf("action_items[%d]", i), a.Item, a.EvidenceIDs)...)
	}

	res.Warnings = v.DifferentialWarnings(report.Differential)

	if !res.OK() {
		return res, &domain.EvidenceIntegrityError{Artifact: "report", Violations: res.Violations}
	}
	return res, nil
}

// DifferentialWarnings lists completeness findings that do not invalidate
// a report.
func (v *Validator) DifferentialWarnings(diffs []domain.DifferentialDiagnosis) []string {
	var warnings []string
	if len(diffs) < v.gate.MinDiagnoses {
		warnings = append(warnings, fmt.Sprintf("Differential has %d diagnoses (min: %d)", len(diffs), v.gate.MinDiagnoses))
	}
	for _, d := range diffs {
		if len(d.Support) < v.gate.MinSupports {
			warnings = append(warnings, fmt.Sprintf("%s has %d supports (min: %d)", d.Diagnosis, len(d.Support), v.gate.MinSupports))
		}
		if len(d.Missing) < v.gate.MinMissing {
			warnings = append(warnings, fmt.Sprintf("%s has no missing discriminators", d.Diagnosis))
		}
	}
	return warnings
}

// RenderCitations appends ids to text in "[id]" form.
func RenderCitations(text string, ids []string) string {
	if len(ids) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	for _, id := range ids {
		b.WriteString(" [")
		b.WriteString(id)
		b.WriteString("]")
	}
	return b.String()
}

// UnresolvedCitations lists bracketed ids in text that the store lacks,
// in order of first appearance.
func UnresolvedCitations(text string, store driven.EvidenceStore) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if seen[id] || store.Has(id) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
