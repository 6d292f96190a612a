package services

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

// Deterministic output limits.
const (
	maxQuestions        = 5
	minLLMQuestions     = 3
	maxActions          = 3
	maxActionEvidence   = 3
	missingPerDiagnosis = 2
	supportsPerQuestion = 2
	maxFlatSummary      = 10
	maxKeyLabs          = 6
)

const composeFailedLimitation = "LLM composition failed; using deterministic generation."

// ICU summary group caps.
const (
	capPatientInfo    = 2
	capPrimary        = 3
	capRespiratory    = 3
	capCardiovascular = 2
	capHepatic        = 3
	capRenal          = 2
	capCoag           = 3
	capInfectious     = 3
	capNeurologic     = 2
	capSupports       = 3
	capProcedures     = 3
)

// FallbackQuestions turns each diagnosis's first missing items into
// questions, then adds canned questions for the categories present.
// evidenceIDs cite questions whose diagnosis has no cited support.
func FallbackQuestions(diffs []domain.DifferentialDiagnosis, rules *domain.RuleSet, evidenceIDs []string) []domain.ClarifyingQuestion {
	var out []domain.ClarifyingQuestion
	seen := make(map[string]bool)
	add := func(q domain.ClarifyingQuestion) {
		key := strings.ToLower(q.Question)
		if seen[key] || len(out) >= maxQuestions {
			return
		}
		seen[key] = true
		out = append(out, q)
	}

	for _, d := range diffs {
		ids := supportIDs(d, evidenceIDs)
		priority := domain.PriorityHigh
		if d.Confidence == domain.ConfidenceHigh {
			priority = domain.PriorityMedium
		}
		for _, missing := range d.Missing[:min(missingPerDiagnosis, len(d.Missing))] {
			question := strings.TrimSpace(missing)
			if !strings.HasSuffix(question, "?") {
				question += "?"
			}
			add(domain.ClarifyingQuestion{
				Question:    question,
				Rationale:   "Needed to confirm or rule out " + d.Diagnosis,
				EvidenceIDs: ids,
				Priority:    priority,
			})
		}
	}

	for _, tmpl := range rules.Questions {
		for _, d := range diffs {
			if rules.ClassifyDiagnosis(d.Diagnosis) != tmpl.Category {
				continue
			}
			add(domain.ClarifyingQuestion{
				Question:    tmpl.Question,
				Rationale:   tmpl.Rationale,
				EvidenceIDs: supportIDs(d, evidenceIDs),
				Priority:    domain.PriorityMedium,
			})
			break
		}
	}
	return out
}

// supportIDs returns the first id of the first supports, or the first
// fallback id when none is cited.
func supportIDs(d domain.DifferentialDiagnosis, fallback []string) []string {
	var ids []string
	for _, f := range d.Support[:min(supportsPerQuestion, len(d.Support))] {
		if len(f.EvidenceIDs) > 0 {
			ids = append(ids, f.EvidenceIDs[0])
		}
	}
	if len(ids) == 0 && len(fallback) > 0 {
		ids = []string{fallback[0]}
	}
	return ids
}

// FallbackActions emits the action templates of each category present in
// the differential, citing that diagnosis's supports. Categories are
// visited by precedence.
func FallbackActions(diffs []domain.DifferentialDiagnosis, rules *domain.RuleSet) []domain.ActionItem {
	categories := slices.Clone(rules.Categories)
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].Precedence < categories[j].Precedence
	})

	var out []domain.ActionItem
	for _, cat := range categories {
		if len(cat.Actions) == 0 {
			continue
		}
		for _, d := range diffs {
			if rules.ClassifyDiagnosis(d.Diagnosis) != cat.Category {
				continue
			}
			ids := distinctSupportIDs(d, maxActionEvidence)
			for _, a := range cat.Actions {
				out = append(out, domain.ActionItem{
					Item:        a.Item,
					Rationale:   a.Rationale,
					EvidenceIDs: ids,
					Priority:    a.Priority,
				})
			}
			break
		}
	}
	if len(out) > maxActions {
		out = out[:maxActions]
	}
	return out
}

func distinctSupportIDs(d domain.DifferentialDiagnosis, limit int) []string {
	var ids []string
	for _, f := range d.Support {
		for _, id := range f.EvidenceIDs {
			if len(ids) == limit {
				return ids
			}
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// SlotQuestions asks for missing SOAP slots when there is no differential
// to drive questions. Sections take turns so early sections cannot use up
// the cap. Each question cites the first evidence id of the case.
func SlotQuestions(missing map[domain.Section][]string, evidenceIDs []string) []domain.ClarifyingQuestion {
	ids := firstID(evidenceIDs)
	var out []domain.ClarifyingQuestion
	for i := 0; len(out) < maxQuestions; i++ {
		added := false
		for _, section := range domain.AllSections() {
			slots := missing[section]
			if i >= len(slots) || len(out) >= maxQuestions {
				continue
			}
			added = true
			priority := domain.PriorityMedium
			if section == domain.SectionSubjective || section == domain.SectionAssessment {
				priority = domain.PriorityHigh
			}
			out = append(out, domain.ClarifyingQuestion{
				Question:    fmt.Sprintf("What is the patient's %s?", slotName(slots[i])),
				Rationale:   "Not documented in the " + section.Description() + " section",
				EvidenceIDs: ids,
				Priority:    priority,
			})
		}
		if !added {
			break
		}
	}
	return out
}

// SlotActions asks for missing objective, assessment and plan slots to be
// documented, one action per section.
func SlotActions(missing map[domain.Section][]string, evidenceIDs []string) []domain.ActionItem {
	ids := firstID(evidenceIDs)
	var out []domain.ActionItem
	for _, section := range []domain.Section{domain.SectionObjective, domain.SectionAssessment, domain.SectionPlan} {
		slots := missing[section]
		if len(slots) == 0 {
			continue
		}
		names := make([]string, len(slots))
		for i, slot := range slots {
			names[i] = slotName(slot)
		}
		out = append(out, domain.ActionItem{
			Item:        "Document " + strings.ToLower(section.Description()) + " findings: " + strings.Join(names, ", "),
			Rationale:   "Needed before a differential can be formed",
			EvidenceIDs: ids,
			Priority:    domain.PriorityMedium,
		})
	}
	if len(out) > maxActions {
		out = out[:maxActions]
	}
	return out
}

func slotName(slot string) string {
	return strings.ReplaceAll(slot, "_", " ")
}

func firstID(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return []string{ids[0]}
}

// fallbackItems returns the deterministic questions and actions. They come
// from the differential when there is one and from missing slots otherwise.
func fallbackItems(
	diffs []domain.DifferentialDiagnosis, rules *domain.RuleSet, missing map[domain.Section][]string, evidenceIDs []string,
) ([]domain.ClarifyingQuestion, []domain.ActionItem) {
	if len(diffs) == 0 {
		return SlotQuestions(missing, evidenceIDs), SlotActions(missing, evidenceIDs)
	}
	return FallbackQuestions(diffs, rules, evidenceIDs), FallbackActions(diffs, rules)
}

// MergeComposition completes an LLM composition with deterministic items.
// Fewer than three questions are topped up without duplicates; missing
// actions are replaced. A nil composition means composing failed and the
// result is fully deterministic. missing lists unfilled SOAP slots and
// drives the items when the differential is empty.
func MergeComposition(
	composed *domain.Composition,
	diffs []domain.DifferentialDiagnosis,
	rules *domain.RuleSet,
	missing map[domain.Section][]string,
	evidenceIDs []string,
) domain.Composition {
	questions, actions := fallbackItems(diffs, rules, missing, evidenceIDs)
	if composed == nil {
		return domain.Composition{
			ClarifyingQuestions: questions,
			ActionItems:         actions,
			Limitations:         []string{composeFailedLimitation},
		}
	}

	out := domain.Composition{
		ClarifyingQuestions: slices.Clone(composed.ClarifyingQuestions),
		ActionItems:         slices.Clone(composed.ActionItems),
		Limitations:         slices.Clone(composed.Limitations),
	}

	if len(out.ClarifyingQuestions) < minLLMQuestions {
		existing := make(map[string]bool, len(out.ClarifyingQuestions))
		for _, q := range out.ClarifyingQuestions {
			existing[strings.ToLower(q.Question)] = true
		}
		for _, q := range questions {
			if len(out.ClarifyingQuestions) >= maxQuestions {
				break
			}
			if existing[strings.ToLower(q.Question)] {
				continue
			}
			out.ClarifyingQuestions = append(out.ClarifyingQuestions, q)
		}
	}
	if len(out.ActionItems) == 0 {
		out.ActionItems = actions
	}
	return out
}

// DeterministicSummary organises a patient state into the organ-system
// ICU summary. Facts without citations are left out.
func DeterministicSummary(ps domain.PatientState, rules *domain.RuleSet) domain.ICUSummary {
	var s domain.ICUSummary
	bullet := func(text string, ids []string) domain.SummaryBullet {
		return domain.SummaryBullet{Text: text, EvidenceIDs: slices.Clone(ids)}
	}

	for _, f := range ps.Demographics {
		if len(f.EvidenceIDs) > 0 {
			s.PatientInfo = append(s.PatientInfo, bullet(f.Label+": "+f.Value, f.EvidenceIDs))
		}
	}

	for i, f := range ps.Diagnoses {
		if len(f.EvidenceIDs) == 0 {
			continue
		}
		b := bullet(f.Value, f.EvidenceIDs)
		if i < capPrimary {
			s.PrimaryProblems = append(s.PrimaryProblems, b)
			continue
		}
		switch rules.ClassifyOrgan(f.Value) {
		case domain.CategoryRespiratory:
			s.Respiratory = append(s.Respiratory, b)
		case domain.CategoryHepatic:
			s.Hepatic = append(s.Hepatic, b)
		case domain.CategoryRenal:
			s.Renal = append(s.Renal, b)
		case domain.CategoryInfectious:
			s.Infectious = append(s.Infectious, b)
		case domain.CategoryCoagulation:
			s.HematologyCoag = append(s.HematologyCoag, b)
		case domain.CategoryCardiovascular:
			s.Cardiovascular = append(s.Cardiovascular, b)
		case domain.CategoryNeurologic:
			s.Neurologic = append(s.Neurologic, b)
		}
	}

	seenLabs := make(map[string]bool)
	for _, f := range ps.Timeline {
		key := strings.ToLower(f.Label)
		if len(f.EvidenceIDs) == 0 || seenLabs[key] || !rules.IsKeyLab(f.Label) {
			continue
		}
		seenLabs[key] = true
		s.KeyLabs = append(s.KeyLabs, bullet(f.Label+": "+f.Value, f.EvidenceIDs))
		switch {
		case domain.ContainsAnyTerm(key, []string{"pt", "ptt", "inr"}):
			s.HematologyCoag = append(s.HematologyCoag, bullet(fmt.Sprintf("Coag: %s %s", f.Label, f.Value), f.EvidenceIDs))
		case domain.ContainsAnyTerm(key, []string{"bun", "creatinine"}):
			s.Renal = append(s.Renal, bullet(f.Label+": "+f.Value, f.EvidenceIDs))
		}
	}
	for _, f := range ps.Timeline {
		key := strings.ToLower(f.Label)
		if len(s.KeyLabs) >= maxKeyLabs {
			break
		}
		if len(f.EvidenceIDs) == 0 || seenLabs[key] {
			continue
		}
		seenLabs[key] = true
		s.KeyLabs = append(s.KeyLabs, bullet(f.Label+": "+f.Value, f.EvidenceIDs))
	}

	// Supports need monitor or narrative evidence.
	supportPrefixes := []string{domain.EvidenceMonitor.Prefix(), domain.EvidenceNarrative.Prefix()}
	for _, f := range ps.Supports {
		for _, id := range f.EvidenceIDs {
			if domain.HasPrefix(id, supportPrefixes) {
				s.Supports = append(s.Supports, bullet(f.Value, f.EvidenceIDs))
				break
			}
		}
	}

	for _, f := range ps.Procedures[:min(capProcedures, len(ps.Procedures))] {
		if len(f.EvidenceIDs) > 0 {
			s.Procedures = append(s.Procedures, bullet(f.Value, f.EvidenceIDs))
		}
	}

	s.PatientInfo = capBullets(s.PatientInfo, capPatientInfo)
	s.PrimaryProblems = capBullets(s.PrimaryProblems, capPrimary)
	s.Respiratory = capBullets(s.Respiratory, capRespiratory)
	s.Cardiovascular = capBullets(s.Cardiovascular, capCardiovascular)
	s.Hepatic = capBullets(s.Hepatic, capHepatic)
	s.Renal = capBullets(s.Renal, capRenal)
	s.HematologyCoag = capBullets(s.HematologyCoag, capCoag)
	s.Infectious = capBullets(s.Infectious, capInfectious)
	s.Neurologic = capBullets(s.Neurologic, capNeurologic)
	s.KeyLabs = capBullets(s.KeyLabs, maxKeyLabs)
	s.Supports = capBullets(s.Supports, capSupports)
	s.Procedures = capBullets(s.Procedures, capProcedures)
	return s
}

func capBullets(b []domain.SummaryBullet, n int) []domain.SummaryBullet {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// FlatSummary lists cited patient-state facts as up to ten distinct bullets.
func FlatSummary(ps domain.PatientState) []domain.SummaryBullet {
	var bullets []domain.SummaryBullet
	for _, f := range ps.Demographics {
		bullets = append(bullets, domain.SummaryBullet{Text: f.Label + ": " + f.Value, EvidenceIDs: f.EvidenceIDs})
	}
	for _, f := range ps.Diagnoses[:min(5, len(ps.Diagnoses))] {
		bullets = append(bullets, domain.SummaryBullet{Text: "Problem: " + f.Value, EvidenceIDs: f.EvidenceIDs})
	}
	for _, f := range ps.Procedures[:min(3, len(ps.Procedures))] {
		bullets = append(bullets, domain.SummaryBullet{Text: "Procedure/history: " + f.Value, EvidenceIDs: f.EvidenceIDs})
	}
	for _, f := range ps.Meds[:min(5, len(ps.Meds))] {
		bullets = append(bullets, domain.SummaryBullet{Text: "Medication: " + f.Value, EvidenceIDs: f.EvidenceIDs})
	}
	for _, f := range ps.Timeline[:min(maxKeyLabs, len(ps.Timeline))] {
		bullets = append(bullets, domain.SummaryBullet{Text: fmt.Sprintf("Lab: %s = %s", f.Label, f.Value), EvidenceIDs: f.EvidenceIDs})
	}

	seen := make(map[string]bool)
	var out []domain.SummaryBullet
	for _, b := range bullets {
		if len(b.EvidenceIDs) == 0 || seen[b.Text] {
			continue
		}
		seen[b.Text] = true
		out = append(out, domain.SummaryBullet{Text: b.Text, EvidenceIDs: slices.Clone(b.EvidenceIDs)})
		if len(out) == maxFlatSummary {
			break
		}
	}
	return out
}

// SummaryBullets converts an ICU summary into report bullets: patient info
// lines, one line for the primary problems and one line per organ system.
func SummaryBullets(s domain.ICUSummary) []domain.SummaryBullet {
	var out []domain.SummaryBullet
	for _, b := range s.PatientInfo {
		out = append(out, domain.SummaryBullet{Text: "Patient: " + b.Text, EvidenceIDs: slices.Clone(b.EvidenceIDs)})
	}
	groups := []struct {
		name    string
		bullets []domain.SummaryBullet
		sep     string
	}{
		{"Primary problems", s.PrimaryProblems, ", "},
		{"Hepatic", s.Hepatic, "; "},
		{"Infectious", s.Infectious, "; "},
		{"Respiratory", s.Respiratory, "; "},
		{"Cardiovascular", s.Cardiovascular, "; "},
		{"Coagulation", s.HematologyCoag, "; "},
		{"Renal", s.Renal, "; "},
		{"Neurologic", s.Neurologic, "; "},
		{"Key labs", s.KeyLabs, "; "},
		{"Supports", s.Supports, "; "},
		{"Procedures", s.Procedures, "; "},
	}
	for _, g := range groups {
		if len(g.bullets) == 0 {
			continue
		}
		texts := make([]string, len(g.bullets))
		var ids []string
		for i, b := range g.bullets {
			texts[i] = b.Text
			for _, id := range b.EvidenceIDs {
				if !slices.Contains(ids, id) {
					ids = append(ids, id)
				}
			}
		}
		out = append(out, domain.SummaryBullet{Text: g.name + ": " + strings.Join(texts, g.sep), EvidenceIDs: ids})
	}
	return out
}
