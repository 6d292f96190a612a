package services

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/logger"
)

// CleanupResult is the cleaned differential with notes on what changed.
type CleanupResult struct {
	Differential []domain.DifferentialDiagnosis
	Notes        []string
}

// Cleanup applies the deterministic differential rules in order:
// provenance corrections, weak-support removal, the minimum-support
// downgrade and overlap flags. The input is not modified. Corrections
// citing ids absent from store are skipped; a nil store applies them all.
func Cleanup(diffs []domain.DifferentialDiagnosis, rules *domain.RuleSet, store driven.EvidenceStore) CleanupResult {
	res := CleanupResult{Differential: cloneDifferential(diffs)}

	res.Notes = append(res.Notes, correctProvenance(res.Differential, rules.Corrections, store)...)
	res.Notes = append(res.Notes, removeWeakSupports(res.Differential, rules)...)
	res.Notes = append(res.Notes, enforceMinimumSupports(res.Differential, rules.MissingEvidencePlaceholder)...)
	res.Notes = append(res.Notes, flagOverlaps(res.Differential, rules.CleanupGroups)...)

	for _, n := range res.Notes {
		logger.Debug("cleanup: %s", n)
	}
	return res
}

func correctProvenance(diffs []domain.DifferentialDiagnosis, corrections []domain.ProvenanceCorrection, store driven.EvidenceStore) []string {
	var notes []string
	for _, c := range corrections {
		if store != nil && !store.Has(c.EvidenceID) {
			continue
		}
		term := strings.ToLower(c.Term)
		for i := range diffs {
			for j := range diffs[i].Support {
				f := &diffs[i].Support[j]
				if !strings.Contains(strings.ToLower(f.Label), term) && !strings.Contains(strings.ToLower(f.Value), term) {
					continue
				}
				if slices.Contains(f.EvidenceIDs, c.EvidenceID) {
					continue
				}
				notes = append(notes, fmt.Sprintf("%s: corrected %q citation %v -> [%s]",
					diffs[i].Diagnosis, f.Label, f.EvidenceIDs, c.EvidenceID))
				f.EvidenceIDs = []string{c.EvidenceID}
			}
		}
	}
	return notes
}

func removeWeakSupports(diffs []domain.DifferentialDiagnosis, rules *domain.RuleSet) []string {
	var notes []string
	for i := range diffs {
		d := &diffs[i]
		rule, ok := rules.Category(rules.ClassifyDiagnosis(d.Diagnosis))
		if !ok || (len(rule.WeakSupportLabels) == 0 && len(rule.WeakSupportValues) == 0) {
			continue
		}

		kept := d.Support[:0]
		for _, f := range d.Support {
			if containsAny(f.Label, rule.WeakSupportLabels) || containsAny(f.Value, rule.WeakSupportValues) {
				notes = append(notes, fmt.Sprintf("%s: removed weak support %s=%s", d.Diagnosis, f.Label, f.Value))
				continue
			}
			kept = append(kept, f)
		}
		d.Support = kept
	}
	return notes
}

func enforceMinimumSupports(diffs []domain.DifferentialDiagnosis, placeholder string) []string {
	var notes []string
	for i := range diffs {
		d := &diffs[i]
		if len(d.Support) >= 2 {
			continue
		}
		notes = append(notes, fmt.Sprintf("%s: %d support(s), confidence %s -> low",
			d.Diagnosis, len(d.Support), d.Confidence))
		d.Confidence = domain.ConfidenceLow
		if len(d.Missing) == 0 && placeholder != "" {
			d.Missing = []string{placeholder}
		}
	}
	return notes
}

func flagOverlaps(diffs []domain.DifferentialDiagnosis, groups []domain.OverlapGroup) []string {
	var notes []string
	for _, g := range groups {
		var names []string
		for _, d := range diffs {
			if containsAny(d.Diagnosis, g.Terms) {
				names = append(names, d.Diagnosis)
			}
		}
		if len(names) > g.Max {
			notes = append(notes, fmt.Sprintf("Multiple %s diagnoses detected: %s", g.Name, strings.Join(names, ", ")))
		}
	}
	return notes
}

// containsAny reports a case-insensitive substring match of any term.
func containsAny(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, t := range terms {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func cloneDifferential(diffs []domain.DifferentialDiagnosis) []domain.DifferentialDiagnosis {
	out := make([]domain.DifferentialDiagnosis, len(diffs))
	for i, d := range diffs {
		out[i] = domain.DifferentialDiagnosis{
			Diagnosis:  d.Diagnosis,
			Support:    cloneFacts(d.Support),
			Against:    cloneFacts(d.Against),
			Missing:    slices.Clone(d.Missing),
			References: slices.Clone(d.References),
			Confidence: d.Confidence,
		}
	}
	return out
}

func cloneFacts(facts []domain.Fact) []domain.Fact {
	if facts == nil {
		return nil
	}
	out := make([]domain.Fact, len(facts))
	for i, f := range facts {
		out[i] = domain.Fact{Label: f.Label, Value: f.Value, EvidenceIDs: slices.Clone(f.EvidenceIDs)}
	}
	return out
}
