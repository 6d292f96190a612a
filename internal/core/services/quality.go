package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

const maxScore = 100

// QualityGate scores the structure of a summary and differential. Scores
// are derived per report and never persisted as authoritative state.
type QualityGate struct {
	gate  domain.GateSettings
	rules *domain.RuleSet
}

// NewQualityGate creates a quality gate.
func NewQualityGate(gate domain.GateSettings, rules *domain.RuleSet) *QualityGate {
	return &QualityGate{gate: gate, rules: rules}
}

// Evaluate applies the given penalties to a 100-point score, clamps it to
// [0,100] and passes when there are no errors and the score reaches the
// threshold.
func (q *QualityGate) Evaluate(warnings, errors []string, warningPenalty, errorPenalty int) domain.QualityGateResult {
	score := maxScore - len(errors)*errorPenalty - len(warnings)*warningPenalty
	return q.result(clampScore(score), warnings, errors, nil)
}

func (q *QualityGate) result(score int, warnings, errors []string, metrics map[string]any) domain.QualityGateResult {
	if warnings == nil {
		warnings = []string{}
	}
	if errors == nil {
		errors = []string{}
	}
	if metrics == nil {
		metrics = map[string]any{}
	}
	return domain.QualityGateResult{
		Passed:   len(errors) == 0 && score >= q.gate.PassThreshold,
		Score:    score,
		Warnings: warnings,
		Errors:   errors,
		Metrics:  metrics,
	}
}

// ScoreSummary checks bullet count, primary problems, key labs and that
// every bullet cites evidence.
func (q *QualityGate) ScoreSummary(s domain.ICUSummary) domain.QualityGateResult {
	var warnings, errors []string

	bullets := s.Flatten()
	organs := 0
	for _, group := range [][]domain.SummaryBullet{
		s.Respiratory, s.Cardiovascular, s.Hepatic, s.Renal,
		s.HematologyCoag, s.Infectious, s.Neurologic,
	} {
		if len(group) > 0 {
			organs++
		}
	}
	metrics := map[string]any{
		"total_bullets":         len(bullets),
		"primary_problems":      len(s.PrimaryProblems),
		"key_labs":              len(s.KeyLabs),
		"organ_systems_covered": organs,
	}

	if len(bullets) < q.gate.MinSummaryBullets {
		warnings = append(warnings, fmt.Sprintf("Summary has only %d bullets (min: %d)", len(bullets), q.gate.MinSummaryBullets))
	}
	if len(s.PrimaryProblems) < q.gate.MinPrimaryProblems {
		errors = append(errors, "No primary problems identified")
	}
	if len(s.KeyLabs) < q.gate.MinKeyLabs {
		warnings = append(warnings, fmt.Sprintf("Only %d key labs (recommend: %d+)", len(s.KeyLabs), q.gate.MinKeyLabs))
	}

	uncited := 0
	for _, b := range bullets {
		if len(b.EvidenceIDs) == 0 {
			uncited++
		}
	}
	if uncited > 0 {
		errors = append(errors, fmt.Sprintf("%d bullets missing evidence_ids", uncited))
	}

	score := maxScore - len(errors)*q.gate.SummaryErrorPenalty - len(warnings)*q.gate.SummaryWarningPenalty
	return q.result(clampScore(score), warnings, errors, metrics)
}

// ScoreDifferential checks diagnosis count, supports, missing
// discriminators, uncited supports and overlapping diagnosis families.
// Meeting each count target earns a bonus.
func (q *QualityGate) ScoreDifferential(diffs []domain.DifferentialDiagnosis) domain.QualityGateResult {
	var warnings, errors []string

	names := make([]string, 0, len(diffs))
	metrics := map[string]any{
		"differential_count": len(diffs),
		"avg_supports":       0.0,
		"avg_missing":        0.0,
		"diagnoses":          names,
	}

	if len(diffs) == 0 {
		errors = append(errors, "No differential diagnoses generated")
		return q.result(0, warnings, errors, metrics)
	}

	if len(diffs) < q.gate.MinDiagnoses {
		warnings = append(warnings, fmt.Sprintf("Differential has only %d items (min: %d)", len(diffs), q.gate.MinDiagnoses))
	}

	supports, missing := 0, 0
	for _, d := range diffs {
		names = append(names, d.Diagnosis)
		supports += len(d.Support)
		missing += len(d.Missing)

		if len(d.Support) < q.gate.MinSupports {
			warnings = append(warnings, fmt.Sprintf("'%s' has only %d support items (min: %d)", d.Diagnosis, len(d.Support), q.gate.MinSupports))
		}
		if len(d.Missing) < q.gate.MinMissing {
			warnings = append(warnings, fmt.Sprintf("'%s' has no missing discriminators", d.Diagnosis))
		}
		for _, f := range d.Support {
			if len(f.EvidenceIDs) == 0 {
				errors = append(errors, fmt.Sprintf("'%s' support '%s' has no evidence_ids", d.Diagnosis, f.Label))
			}
		}
	}

	avgSupports := roundTenth(float64(supports) / float64(len(diffs)))
	avgMissing := roundTenth(float64(missing) / float64(len(diffs)))
	metrics["avg_supports"] = avgSupports
	metrics["avg_missing"] = avgMissing
	metrics["diagnoses"] = names

	for _, g := range q.rules.GateGroups {
		var matches []string
		for _, name := range names {
			if containsAny(name, g.Terms) {
				matches = append(matches, name)
			}
		}
		if len(matches) > g.Max {
			warnings = append(warnings, fmt.Sprintf("Possible overlapping %s diagnoses: %s", g.Name, strings.Join(matches, ", ")))
		}
	}

	score := maxScore - len(errors)*q.gate.DiffErrorPenalty - len(warnings)*q.gate.DiffWarningPenalty
	if len(diffs) >= q.gate.MinDiagnoses {
		score += q.gate.DiffBonus
	}
	if avgSupports >= float64(q.gate.MinSupports) {
		score += q.gate.DiffBonus
	}
	if avgMissing >= float64(q.gate.MinMissing) {
		score += q.gate.DiffBonus
	}
	return q.result(clampScore(score), warnings, errors, metrics)
}

// Score combines the summary and differential scores as a weighted mean.
// The combined gate passes only if both parts pass.
func (q *QualityGate) Score(s domain.ICUSummary, diffs []domain.DifferentialDiagnosis) domain.QualityGateResult {
	sum := q.ScoreSummary(s)
	dx := q.ScoreDifferential(diffs)

	warnings := make([]string, 0, len(sum.Warnings)+len(dx.Warnings))
	errors := make([]string, 0, len(sum.Errors)+len(dx.Errors))
	for _, w := range sum.Warnings {
		warnings = append(warnings, "[Summary] "+w)
	}
	for _, w := range dx.Warnings {
		warnings = append(warnings, "[Differential] "+w)
	}
	for _, e := range sum.Errors {
		errors = append(errors, "[Summary] "+e)
	}
	for _, e := range dx.Errors {
		errors = append(errors, "[Differential] "+e)
	}

	w := q.gate.SummaryWeight
	return domain.QualityGateResult{
		Passed:   sum.Passed && dx.Passed,
		Score:    int(w*float64(sum.Score) + (1-w)*float64(dx.Score)),
		Warnings: warnings,
		Errors:   errors,
		Metrics: map[string]any{
			"summary":            sum.Metrics,
			"differential":       dx.Metrics,
			"summary_score":      sum.Score,
			"differential_score": dx.Score,
		},
	}
}

func clampScore(score int) int {
	return max(0, min(maxScore, score))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
