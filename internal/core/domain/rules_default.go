package domain

// DefaultRuleSet returns the built-in clinical rule tables.
// The rerank multipliers are empirical and can be overridden from a rules file.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Sections: []SectionRule{
			{
				Section: SectionSubjective,
				BoostTerms: []string{
					"pain", "fell", "fall", "hurt", "ache", "cannot", "unable",
					"worse", "better", "duration", "started", "began", "feeling",
					"complains", "reports", "states", "denies", "history",
					"symptom", "complaint", "concern", "worried", "noticed",
				},
				PreferredPrefixes: []string{"CV", "CN"},
				PackPrefixes:      []string{"CV", "CN", "N"},
				PackSize:          8,
				DefaultQuery:      "chief complaint symptoms history duration onset",
				ClassifyTerms:     []string{"complaint", "symptom", "history", "pain", "duration", "patient reports"},
				QueryKeys:         []string{"complaint", "symptom", "history", "present", "onset", "duration"},
				ContextCap:        10,
				Slots: []string{
					"chief_complaint", "duration", "onset", "severity",
					"associated_symptoms", "past_medical_history", "medications", "allergies",
				},
			},
			{
				Section: SectionObjective,
				BoostTerms: []string{
					"mg/dl", "mmol", "bpm", "mmhg", "%", "mg", "ml", "kg",
					"temperature", "pulse", "bp", "resp", "spo2", "hr",
					"lab", "vital", "exam", "finding", "observed", "measured",
					"elevated", "decreased", "normal", "abnormal", "positive", "negative",
				},
				PreferredPrefixes: []string{"CS", "L", "M"},
				PackPrefixes:      []string{"CS", "L", "M", "CF"},
				PackSize:          10,
				DefaultQuery:      "labs vitals exam findings measurements objective",
				ClassifyTerms:     []string{"lab", "vital", "exam", "finding", "level", "mg", "mmol", "bpm"},
				QueryKeys:         []string{"lab", "vital", "exam", "finding", "physical", "objective"},
				ContextCap:        10,
				Slots:             []string{"vitals", "general_appearance", "physical_exam", "labs", "imaging"},
			},
			{
				Section: SectionAssessment,
				BoostTerms: []string{
					"diagnosis", "diagnosed", "impression", "assessment", "problem",
					"condition", "disorder", "syndrome", "disease", "likely",
					"probable", "suspect", "differential", "rule out", "consistent with",
					"secondary to", "due to", "caused by", "etiology",
				},
				PreferredPrefixes: []string{"CS", "CF", "N"},
				PackSize:          8,
				DefaultQuery:      "diagnosis assessment impression problem differential",
				ClassifyTerms:     []string{"diagnosis", "problem", "condition", "impression", "assessment"},
				QueryKeys:         []string{"diagnosis", "assessment", "impression", "problem", "condition"},
				ContextCap:        5,
				Slots:             []string{"primary_diagnosis", "problem_list", "differential", "severity_assessment"},
			},
			{
				Section: SectionPlan,
				BoostTerms: []string{
					"plan", "order", "prescribe", "recommend", "schedule",
					"follow-up", "refer", "consult", "monitor", "continue",
					"start", "stop", "increase", "decrease", "change",
					"treatment", "therapy", "medication", "procedure",
				},
				PreferredPrefixes: []string{"CS", "CN"},
				PackSize:          5,
				DefaultQuery:      "plan treatment recommendation orders follow-up",
				ClassifyTerms:     []string{"plan", "recommend", "order", "follow", "treatment", "prescribe"},
				QueryKeys:         []string{"plan", "treatment", "recommend", "order", "follow"},
				ContextCap:        5,
				Slots:             []string{"treatment", "medications", "follow_up", "patient_education", "disposition"},
			},
		},
		Rerank: RerankRule{
			PrefixBoost:       1.3,
			KeywordStep:       0.05,
			KeywordCap:        5,
			NumericBoost:      1.2,
			NumericMin:        3,
			BackgroundPenalty: 0.5,
			ExpansionTerms:    5,
		},
		Categories: []CategoryRule{
			{
				Category:       CategoryRespiratory,
				DiagnosisTerms: []string{"ards", "respiratory", "pneumon", "hypox", "lung"},
				Precedence:     4,
				OrganTerms:     []string{"ards", "respiratory", "lung", "ventilat", "pneumo", "hypox", "fio2", "peep"},
			},
			{
				Category:       CategoryHepatic,
				DiagnosisTerms: []string{"hepat", "liver", "biliary", "cholang", "kasai"},
				Precedence:     5,
				OrganTerms:     []string{"liver", "hepat", "biliary", "kasai", "cholang", "bilirubin", "ast", "alt", "portal"},
			},
			{
				Category:          CategoryRenal,
				DiagnosisTerms:    []string{"aki", "acute kidney injury", "kidney", "renal"},
				Precedence:        2,
				OrganTerms:        []string{"kidney", "renal", "bun", "creatinine", "oligur", "anuri", "dialysis"},
				WeakSupportLabels: []string{"rbc", "rbc elevation", "red blood cell"},
				WeakSupportValues: []string{"rbc elevation", "rbc"},
			},
			{
				Category:       CategoryInfectious,
				DiagnosisTerms: []string{"sepsis", "septic", "infect", "bacteremia", "cholangitis"},
				Precedence:     3,
				OrganTerms:     []string{"sepsis", "septic", "infect", "bacteria", "e.coli", "culture", "antibiotic"},
				Actions: []ActionTemplate{{
					Item:      "Review blood culture results and antibiotic coverage",
					Rationale: "Sepsis on the differential; culture data confirms the source and guides therapy",
					Priority:  PriorityHigh,
				}},
			},
			{
				Category:          CategoryCoagulation,
				DiagnosisTerms:    []string{"coagul", "dic"},
				Precedence:        1,
				OrganTerms:        []string{"coagul", "pt ", "ptt", "inr", "platelet", "bleed", "dic", "fibrinogen"},
				WeakSupportLabels: []string{"bun", "elevated bun"},
				WeakSupportValues: []string{"elevated bun"},
				Actions: []ActionTemplate{{
					Item:      "Review coagulation panel trend (PT/PTT/INR/fibrinogen)",
					Rationale: "Coagulopathy on the differential; trend separates DIC from hepatic synthetic failure",
					Priority:  PriorityHigh,
				}},
			},
			{
				Category:       CategoryCardiovascular,
				DiagnosisTerms: []string{"cardiac", "heart", "shock", "hypotens"},
				Precedence:     6,
				OrganTerms:     []string{"cardiac", "heart", "bp", "hypotens", "shock", "map", "vasopressor"},
			},
			{
				Category:       CategoryNeurologic,
				DiagnosisTerms: []string{"neuro", "encephalop", "seizure"},
				Precedence:     7,
				OrganTerms:     []string{"neuro", "mental", "encephalop", "seizure", "gcs"},
			},
		},
		Corrections: []ProvenanceCorrection{
			{Term: "kasai", EvidenceID: "N000002"},
		},
		CleanupGroups: []OverlapGroup{
			{Name: "hepatic-related", Terms: []string{"hepat", "liver", "coagul"}, Max: 2},
		},
		GateGroups: []OverlapGroup{
			{Name: "hepatic failure", Terms: []string{"hepatic", "liver"}, Max: 1},
			{Name: "sepsis", Terms: []string{"sepsis", "septic"}, Max: 1},
			{Name: "respiratory failure", Terms: []string{"ards", "respiratory"}, Max: 1},
		},
		Questions: []QuestionTemplate{
			{
				Key:       "infection_source",
				Category:  CategoryInfectious,
				Question:  "What is the suspected source of infection (e.g., biliary, bloodstream, lung), and what evidence supports it?",
				Rationale: "Helps narrow sepsis source and competing causes of deterioration.",
			},
			{
				Key:       "cultures",
				Category:  CategoryInfectious,
				Question:  "What are the blood culture results (organism, sensitivities) and timing relative to antibiotics?",
				Rationale: "Confirms pathogen, guides whether ongoing sepsis is plausible.",
			},
			{
				Key:       "resp_metrics",
				Category:  CategoryRespiratory,
				Question:  "What are the key respiratory severity metrics/trends (FiO2, PEEP, PIP, PaO2/SpO2 trend) over time?",
				Rationale: "Required to stage ARDS severity and distinguish ventilation issues vs disease progression.",
			},
			{
				Key:       "coag_profile",
				Category:  CategoryCoagulation,
				Question:  "What is the full coagulation profile trend (PT/INR, PTT, fibrinogen, platelets) and bleeding status?",
				Rationale: "Distinguishes liver-related coagulopathy from DIC and assesses severity.",
			},
			{
				Key:       "hepatic_labs",
				Category:  CategoryHepatic,
				Question:  "What are liver function trends (bilirubin, AST/ALT, ammonia) and clinical signs (encephalopathy) if documented?",
				Rationale: "Corroborates liver failure trajectory and severity.",
			},
			{
				Key:       "renal_status",
				Category:  CategoryRenal,
				Question:  "What is renal function trend (BUN/Cr, urine output) and fluid balance?",
				Rationale: "Differentiates pre-renal vs intrinsic kidney injury and impacts overall severity assessment.",
			},
		},
		KeyLabs: []string{
			"pt", "ptt", "inr", "bun", "creatinine", "lactate",
			"bilirubin", "ast", "alt", "wbc", "rbc", "platelets",
		},
		SubjectiveTurnTerms:        []string{"pain", "complaint", "symptom", "fell", "hurt"},
		MissingEvidencePlaceholder: "Additional clinical or lab evidence needed to confirm diagnosis",
	}
}
