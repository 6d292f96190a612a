package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleSet_ClassifySection(t *testing.T) {
	rules := DefaultRuleSet()

	tests := []struct {
		text string
		want Section
	}{
		{"chief_complaint: abdominal pain", SectionSubjective},
		{"history: prior Kasai", SectionSubjective},
		{"labs: creatinine 1.2 mg", SectionObjective},
		{"diagnosis: cholangitis", SectionAssessment},
		{"plan: start antibiotics", SectionPlan},
		{"age: 4 months", SectionObjective},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.ClassifySection(tt.text))
		})
	}
}

func TestRuleSet_ClassifySection_PriorityOrder(t *testing.T) {
	rules := DefaultRuleSet()

	// Matches both S (pain) and A (diagnosis); S wins.
	assert.Equal(t, SectionSubjective, rules.ClassifySection("diagnosis of pain syndrome"))
}

func TestRuleSet_ClassifyDiagnosis(t *testing.T) {
	rules := DefaultRuleSet()

	tests := []struct {
		name string
		want DiagnosisCategory
	}{
		{"Primary Hepatic Failure", CategoryHepatic},
		{"Coagulopathy (likely hepatic)", CategoryCoagulation},
		{"AKI secondary to sepsis", CategoryRenal},
		{"Acute kidney injury", CategoryRenal},
		{"Sepsis with Multi-organ Dysfunction", CategoryInfectious},
		{"ARDS / Respiratory Failure", CategoryRespiratory},
		{"Shaking chills", CategoryOther},
		{"Seizure disorder", CategoryNeurologic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.ClassifyDiagnosis(tt.name))
		})
	}
}

func TestRuleSet_ClassifyOrgan(t *testing.T) {
	rules := DefaultRuleSet()

	assert.Equal(t, CategoryRespiratory, rules.ClassifyOrgan("On ventilator, FiO2 0.6"))
	assert.Equal(t, CategoryHepatic, rules.ClassifyOrgan("Post-Kasai biliary atresia"))
	assert.Equal(t, CategoryRenal, rules.ClassifyOrgan("BUN 73"))
	assert.Equal(t, CategoryCoagulation, rules.ClassifyOrgan("PTT 76.6"))
	assert.Equal(t, CategoryOther, rules.ClassifyOrgan("unremarkable"))
}

func TestContainsAnyTerm_WordBoundary(t *testing.T) {
	assert.True(t, ContainsAnyTerm("Hepatorenal syndrome", []string{"hepat"}))
	assert.False(t, ContainsAnyTerm("making progress", []string{"aki"}))
	assert.True(t, ContainsAnyTerm("chief_complaint", []string{"complaint"}))
	assert.True(t, ContainsAnyTerm("SpO2 98%", []string{"%"}))
	assert.False(t, ContainsAnyTerm("anything", nil))
}

func TestCountTerms(t *testing.T) {
	rules := DefaultRuleSet()
	terms := rules.Section(SectionSubjective).BoostTerms

	assert.Equal(t, 3, CountTerms("Patient reports pain, worse at night", terms))
	assert.Equal(t, 0, CountTerms("", terms))
}

func TestRuleSet_SectionLookup(t *testing.T) {
	rules := DefaultRuleSet()

	assert.Equal(t, 8, rules.Section(SectionSubjective).PackSize)
	assert.Equal(t, 10, rules.Section(SectionObjective).PackSize)
	assert.Equal(t, []string{"CS", "L", "M"}, rules.Section(SectionObjective).PreferredPrefixes)

	empty := (&RuleSet{}).Section(SectionPlan)
	assert.Equal(t, SectionPlan, empty.Section)
	assert.Empty(t, empty.BoostTerms)
}

func TestRuleSet_CategoryLookup(t *testing.T) {
	rules := DefaultRuleSet()

	coag, ok := rules.Category(CategoryCoagulation)
	assert.True(t, ok)
	assert.Contains(t, coag.WeakSupportLabels, "bun")
	assert.Len(t, coag.Actions, 1)

	_, ok = rules.Category(DiagnosisCategory("nope"))
	assert.False(t, ok)
}
