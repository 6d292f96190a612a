package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

func TestFallbackQuestions(t *testing.T) {
	rules := testRules()
	diffs := []domain.DifferentialDiagnosis{{
		Diagnosis: "Sepsis",
		Support: []domain.Fact{
			{Label: "culture", EvidenceIDs: []string{"L000001", "N000001"}},
			{Label: "lactate", EvidenceIDs: []string{"M000001"}},
		},
		Missing:    []string{"source imaging", "lactate trend?", "third item"},
		Confidence: domain.ConfidenceHigh,
	}}

	questions := FallbackQuestions(diffs, rules, []string{"CN_7_0"})

	require.Len(t, questions, 4)
	assert.Equal(t, "source imaging?", questions[0].Question)
	assert.Equal(t, "Needed to confirm or rule out Sepsis", questions[0].Rationale)
	assert.Equal(t, domain.PriorityMedium, questions[0].Priority)
	assert.Equal(t, []string{"L000001", "M000001"}, questions[0].EvidenceIDs)
	assert.Equal(t, "lactate trend?", questions[1].Question)
	assert.Equal(t, rules.Questions[0].Question, questions[2].Question)
	assert.Equal(t, rules.Questions[1].Question, questions[3].Question)
}

func TestFallbackQuestions_UsesFallbackIDsAndCaps(t *testing.T) {
	rules := testRules()
	diffs := []domain.DifferentialDiagnosis{
		{Diagnosis: "ARDS", Missing: []string{"imaging", "gas"}, Confidence: domain.ConfidenceLow},
		{Diagnosis: "Hepatic failure", Missing: []string{"ammonia", "imaging"}},
		{Diagnosis: "AKI", Missing: []string{"urine output", "creatinine trend"}},
	}

	questions := FallbackQuestions(diffs, rules, []string{"CN_7_0", "CN_7_1"})

	require.Len(t, questions, 5)
	assert.Equal(t, domain.PriorityHigh, questions[0].Priority)
	assert.Equal(t, []string{"CN_7_0"}, questions[0].EvidenceIDs)

	seen := map[string]bool{}
	for _, q := range questions {
		assert.False(t, seen[q.Question], "duplicate question %q", q.Question)
		seen[q.Question] = true
	}
}

func TestFallbackActions(t *testing.T) {
	rules := testRules()
	diffs := []domain.DifferentialDiagnosis{
		{Diagnosis: "ARDS"},
		{
			Diagnosis: "Sepsis",
			Support: []domain.Fact{
				{Label: "culture", EvidenceIDs: []string{"L000001", "N000001"}},
				{Label: "lactate", EvidenceIDs: []string{"L000001", "M000001", "CN_7_0"}},
			},
		},
		{Diagnosis: "Coagulopathy", Support: []domain.Fact{{Label: "INR", EvidenceIDs: []string{"CS_7_1"}}}},
	}

	actions := FallbackActions(diffs, rules)

	require.Len(t, actions, 2)
	assert.Equal(t, "Review coagulation panel trend (PT/PTT/INR/fibrinogen)", actions[0].Item)
	assert.Equal(t, []string{"CS_7_1"}, actions[0].EvidenceIDs)
	assert.Equal(t, "Review blood culture results and antibiotic coverage", actions[1].Item)
	assert.Equal(t, []string{"L000001", "N000001", "M000001"}, actions[1].EvidenceIDs)
	assert.Equal(t, domain.PriorityHigh, actions[1].Priority)
}

func TestMergeComposition(t *testing.T) {
	rules := testRules()
	diffs := []domain.DifferentialDiagnosis{{
		Diagnosis:  "Sepsis",
		Support:    []domain.Fact{{Label: "culture", EvidenceIDs: []string{"L000001"}}},
		Missing:    []string{"source imaging"},
		Confidence: domain.ConfidenceLow,
	}}

	t.Run("compose failed", func(t *testing.T) {
		out := MergeComposition(nil, diffs, rules, nil, nil)

		assert.Equal(t, []string{composeFailedLimitation}, out.Limitations)
		assert.NotEmpty(t, out.ClarifyingQuestions)
		assert.NotEmpty(t, out.ActionItems)
	})

	t.Run("tops up questions without duplicates", func(t *testing.T) {
		composed := &domain.Composition{
			ClarifyingQuestions: []domain.ClarifyingQuestion{{Question: "Source Imaging?", Priority: domain.PriorityCritical}},
			ActionItems:         []domain.ActionItem{{Item: "Escalate antibiotics", EvidenceIDs: []string{"L000001"}}},
			Limitations:         []string{"No imaging available"},
		}

		out := MergeComposition(composed, diffs, rules, nil, nil)

		require.Len(t, out.ClarifyingQuestions, 3)
		assert.Equal(t, "Source Imaging?", out.ClarifyingQuestions[0].Question)
		assert.Equal(t, rules.Questions[0].Question, out.ClarifyingQuestions[1].Question)
		assert.Equal(t, []domain.ActionItem{{Item: "Escalate antibiotics", EvidenceIDs: []string{"L000001"}}}, out.ActionItems)
		assert.Equal(t, []string{"No imaging available"}, out.Limitations)
		assert.Len(t, composed.ClarifyingQuestions, 1, "input must not change")
	})

	t.Run("fills missing actions", func(t *testing.T) {
		out := MergeComposition(&domain.Composition{}, diffs, rules, nil, nil)

		require.Len(t, out.ActionItems, 1)
		assert.Equal(t, "Review blood culture results and antibiotic coverage", out.ActionItems[0].Item)
	})
}

func TestSlotQuestions_AlternatesSections(t *testing.T) {
	missing := map[domain.Section][]string{
		domain.SectionSubjective: {"chief_complaint", "duration", "onset"},
		domain.SectionObjective:  {"imaging"},
		domain.SectionPlan:       {"follow_up", "disposition"},
	}

	questions := SlotQuestions(missing, []string{"CN_1_0", "CN_1_1"})

	require.Len(t, questions, 5)
	assert.Equal(t, "What is the patient's chief complaint?", questions[0].Question)
	assert.Equal(t, "What is the patient's imaging?", questions[1].Question)
	assert.Equal(t, "What is the patient's follow up?", questions[2].Question)
	assert.Equal(t, "What is the patient's duration?", questions[3].Question)
	assert.Equal(t, "What is the patient's disposition?", questions[4].Question)
	assert.Equal(t, domain.PriorityHigh, questions[0].Priority)
	assert.Equal(t, domain.PriorityMedium, questions[1].Priority)
	assert.Equal(t, "Not documented in the Objective section", questions[1].Rationale)
	for _, q := range questions {
		assert.Equal(t, []string{"CN_1_0"}, q.EvidenceIDs)
	}
}

func TestSlotQuestions_NothingMissing(t *testing.T) {
	assert.Empty(t, SlotQuestions(nil, []string{"CN_1_0"}))
}

func TestSlotActions(t *testing.T) {
	missing := map[domain.Section][]string{
		domain.SectionSubjective: {"allergies"},
		domain.SectionObjective:  {"labs", "physical_exam"},
		domain.SectionPlan:       {"treatment"},
	}

	actions := SlotActions(missing, nil)

	require.Len(t, actions, 2)
	assert.Equal(t, "Document objective findings: labs, physical exam", actions[0].Item)
	assert.Equal(t, "Document plan findings: treatment", actions[1].Item)
	assert.Nil(t, actions[0].EvidenceIDs)
}

func TestMergeComposition_EmptyDifferentialUsesMissingSlots(t *testing.T) {
	missing := map[domain.Section][]string{
		domain.SectionSubjective: {"chief_complaint"},
		domain.SectionAssessment: {"primary_diagnosis"},
		domain.SectionPlan:       {"treatment"},
	}

	out := MergeComposition(nil, nil, testRules(), missing, []string{"CN_1_0"})

	require.Len(t, out.ClarifyingQuestions, 3)
	assert.Equal(t, "What is the patient's chief complaint?", out.ClarifyingQuestions[0].Question)
	assert.Equal(t, []string{"CN_1_0"}, out.ClarifyingQuestions[0].EvidenceIDs)
	require.Len(t, out.ActionItems, 2)
	assert.Equal(t, "Document assessment findings: primary diagnosis", out.ActionItems[0].Item)
	assert.Equal(t, []string{composeFailedLimitation}, out.Limitations)

	composed := &domain.Composition{Limitations: []string{"Sparse record"}}
	topped := MergeComposition(composed, nil, testRules(), missing, []string{"CN_1_0"})
	assert.Len(t, topped.ClarifyingQuestions, 3)
	assert.Len(t, topped.ActionItems, 2)
	assert.Equal(t, []string{"Sparse record"}, topped.Limitations)
}

func testPatientState() domain.PatientState {
	return domain.PatientState{
		Demographics: []domain.Fact{{Label: "age", Value: "3 months", EvidenceIDs: []string{"N000001"}}},
		Diagnoses: []domain.Fact{
			{Label: "dx", Value: "Biliary atresia", EvidenceIDs: []string{"CS_7_0"}},
			{Label: "dx", Value: "ARDS", EvidenceIDs: []string{"CN_7_0"}},
			{Label: "dx", Value: "E.coli sepsis", EvidenceIDs: []string{"L000001"}},
			{Label: "dx", Value: "Coagulopathy with INR 2.1", EvidenceIDs: []string{"CS_7_1"}},
		},
		Procedures: []domain.Fact{{Label: "surgery", Value: "Kasai procedure", EvidenceIDs: []string{"N000002"}}},
		Supports: []domain.Fact{
			{Label: "vent", Value: "Mechanical ventilation", EvidenceIDs: []string{"M000001"}},
			{Label: "ecmo", Value: "ECMO", EvidenceIDs: []string{"CS_7_0"}},
		},
		Meds: []domain.Fact{{Label: "abx", Value: "Meropenem"}},
		Timeline: []domain.Fact{
			{Label: "INR", Value: "2.1", EvidenceIDs: []string{"CS_7_1"}},
			{Label: "platelets", Value: "60", EvidenceIDs: []string{"CS_7_1"}},
			{Label: "heart rate", Value: "140", EvidenceIDs: []string{"M000001"}},
			{Label: "inr", Value: "2.0", EvidenceIDs: []string{"CS_7_1"}},
		},
	}
}

func TestDeterministicSummary(t *testing.T) {
	s := DeterministicSummary(testPatientState(), testRules())

	assert.Equal(t, []domain.SummaryBullet{cited("age: 3 months", "N000001")}, s.PatientInfo)
	require.Len(t, s.PrimaryProblems, 3)
	assert.Equal(t, "Biliary atresia", s.PrimaryProblems[0].Text)
	assert.Equal(t, []domain.SummaryBullet{
		cited("Coagulopathy with INR 2.1", "CS_7_1"),
		cited("Coag: INR 2.1", "CS_7_1"),
	}, s.HematologyCoag)
	assert.Equal(t, []domain.SummaryBullet{
		cited("INR: 2.1", "CS_7_1"),
		cited("platelets: 60", "CS_7_1"),
		cited("heart rate: 140", "M000001"),
	}, s.KeyLabs)
	assert.Equal(t, []domain.SummaryBullet{cited("Mechanical ventilation", "M000001")}, s.Supports)
	assert.Equal(t, []domain.SummaryBullet{cited("Kasai procedure", "N000002")}, s.Procedures)

	for _, b := range s.Flatten() {
		assert.NotEmpty(t, b.EvidenceIDs, b.Text)
	}
}

func TestFlatSummary(t *testing.T) {
	bullets := FlatSummary(testPatientState())

	texts := make([]string, len(bullets))
	for i, b := range bullets {
		texts[i] = b.Text
		assert.NotEmpty(t, b.EvidenceIDs)
	}
	assert.Equal(t, []string{
		"age: 3 months",
		"Problem: Biliary atresia",
		"Problem: ARDS",
		"Problem: E.coli sepsis",
		"Problem: Coagulopathy with INR 2.1",
		"Procedure/history: Kasai procedure",
		"Lab: INR = 2.1",
		"Lab: platelets = 60",
		"Lab: heart rate = 140",
		"Lab: inr = 2.0",
	}, texts)
}

func TestSummaryBullets(t *testing.T) {
	out := SummaryBullets(domain.ICUSummary{
		PatientInfo:     []domain.SummaryBullet{cited("age: 3 months", "N000001")},
		PrimaryProblems: []domain.SummaryBullet{cited("Biliary atresia", "CS_7_0"), cited("ARDS", "CN_7_0")},
		HematologyCoag:  []domain.SummaryBullet{cited("INR 2.1", "CS_7_1"), cited("platelets 60", "CS_7_1")},
	})

	assert.Equal(t, []domain.SummaryBullet{
		cited("Patient: age: 3 months", "N000001"),
		cited("Primary problems: Biliary atresia, ARDS", "CS_7_0", "CN_7_0"),
		cited("Coagulation: INR 2.1; platelets 60", "CS_7_1"),
	}, out)
}
