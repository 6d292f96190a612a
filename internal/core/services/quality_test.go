package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

func newTestGate() *QualityGate {
	return NewQualityGate(domain.DefaultAppSettings().Gate, testRules())
}

func cited(text string, ids ...string) domain.SummaryBullet {
	return domain.SummaryBullet{Text: text, EvidenceIDs: ids}
}

func supported(name string, missing ...string) domain.DifferentialDiagnosis {
	return domain.DifferentialDiagnosis{
		Diagnosis: name,
		Support: []domain.Fact{
			{Label: "first", EvidenceIDs: []string{"CN_7_0"}},
			{Label: "second", EvidenceIDs: []string{"L000001"}},
		},
		Missing:    missing,
		Confidence: domain.ConfidenceMedium,
	}
}

func TestQualityGate_Evaluate(t *testing.T) {
	q := newTestGate()

	res := q.Evaluate([]string{"w1", "w2"}, nil, 10, 20)
	assert.Equal(t, 80, res.Score)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Errors)
	assert.NotNil(t, res.Metrics)

	res = q.Evaluate(nil, []string{"broken"}, 10, 20)
	assert.Equal(t, 80, res.Score)
	assert.False(t, res.Passed)

	res = q.Evaluate(nil, make([]string, 10), 10, 20)
	assert.Equal(t, 0, res.Score)
}

func TestQualityGate_ScoreSummary(t *testing.T) {
	q := newTestGate()

	t.Run("empty", func(t *testing.T) {
		res := q.ScoreSummary(domain.ICUSummary{})

		assert.Equal(t, 60, res.Score)
		assert.False(t, res.Passed)
		assert.Equal(t, []string{"No primary problems identified"}, res.Errors)
		assert.Equal(t, []string{
			"Summary has only 0 bullets (min: 6)",
			"Only 0 key labs (recommend: 2+)",
		}, res.Warnings)
	})

	t.Run("complete", func(t *testing.T) {
		res := q.ScoreSummary(domain.ICUSummary{
			PrimaryProblems: []domain.SummaryBullet{cited("Biliary atresia", "CS_7_0")},
			Respiratory:     []domain.SummaryBullet{cited("FiO2 0.8", "CN_7_0")},
			Hepatic:         []domain.SummaryBullet{cited("Bilirubin 12", "CN_7_1")},
			Infectious:      []domain.SummaryBullet{cited("E.coli bacteremia", "L000001")},
			KeyLabs:         []domain.SummaryBullet{cited("INR: 2.1", "CS_7_1"), cited("platelets: 60", "CS_7_1")},
		})

		assert.Equal(t, 100, res.Score)
		assert.True(t, res.Passed)
		assert.Empty(t, res.Warnings)
		assert.Equal(t, 6, res.Metrics["total_bullets"])
		assert.Equal(t, 3, res.Metrics["organ_systems_covered"])
	})

	t.Run("uncited bullet", func(t *testing.T) {
		res := q.ScoreSummary(domain.ICUSummary{
			PrimaryProblems: []domain.SummaryBullet{cited("Biliary atresia", "CS_7_0"), {Text: "uncited"}},
		})

		assert.Contains(t, res.Errors, "1 bullets missing evidence_ids")
		assert.False(t, res.Passed)
	})
}

func TestQualityGate_ScoreDifferential(t *testing.T) {
	q := newTestGate()

	t.Run("empty", func(t *testing.T) {
		res := q.ScoreDifferential(nil)

		assert.Equal(t, 0, res.Score)
		assert.False(t, res.Passed)
		assert.Equal(t, []string{"No differential diagnoses generated"}, res.Errors)
	})

	t.Run("complete", func(t *testing.T) {
		res := q.ScoreDifferential([]domain.DifferentialDiagnosis{
			supported("ARDS", "imaging"),
			supported("Sepsis", "culture"),
			supported("Coagulopathy", "fibrinogen"),
		})

		assert.Equal(t, 100, res.Score)
		assert.True(t, res.Passed)
		assert.Empty(t, res.Warnings)
		assert.Equal(t, []string{"ARDS", "Sepsis", "Coagulopathy"}, res.Metrics["diagnoses"])
		assert.Equal(t, 2.0, res.Metrics["avg_supports"])
	})

	t.Run("overlap", func(t *testing.T) {
		res := q.ScoreDifferential([]domain.DifferentialDiagnosis{
			supported("Sepsis", "source"),
			supported("Septic shock", "lactate"),
		})

		assert.Equal(t, []string{
			"Differential has only 2 items (min: 3)",
			"Possible overlapping sepsis diagnoses: Sepsis, Septic shock",
		}, res.Warnings)
		assert.Equal(t, 94, res.Score)
		assert.True(t, res.Passed)
	})

	t.Run("uncited support", func(t *testing.T) {
		d := supported("ARDS", "imaging")
		d.Support = append(d.Support, domain.Fact{Label: "PEEP"})

		res := q.ScoreDifferential([]domain.DifferentialDiagnosis{d})

		assert.Contains(t, res.Errors, "'ARDS' support 'PEEP' has no evidence_ids")
		assert.False(t, res.Passed)
	})
}

func TestQualityGate_ScoreCombines(t *testing.T) {
	q := newTestGate()
	summary := domain.ICUSummary{
		PrimaryProblems: []domain.SummaryBullet{cited("ARDS", "CN_7_0")},
		Respiratory:     []domain.SummaryBullet{cited("FiO2 0.8", "CN_7_0"), cited("PEEP 10", "CN_7_0")},
		Hepatic:         []domain.SummaryBullet{cited("Bilirubin 12", "CN_7_1")},
		KeyLabs:         []domain.SummaryBullet{cited("INR: 2.1", "CS_7_1"), cited("platelets: 60", "CS_7_1")},
	}

	res := q.Score(summary, nil)

	assert.Equal(t, 40, res.Score)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"[Differential] No differential diagnoses generated"}, res.Errors)
	assert.Equal(t, 100, res.Metrics["summary_score"])
	assert.Equal(t, 0, res.Metrics["differential_score"])
}
