package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
	"github.com/Pg1910/clinical-rag/internal/logger"
	"github.com/Pg1910/clinical-rag/internal/telemetry"
)

// Ensure CaseService implements the interface.
var _ driving.CaseService = (*CaseService)(nil)

// Limitations reported when a generation stage falls back.
const (
	limitPatientState = "Patient state extraction failed; facts were taken directly from retrieved summary evidence."
	limitDifferential = "Differential generation failed; no differential diagnoses are reported."
)

// demographicTerms route context facts to patient info.
var demographicTerms = []string{"age", "sex", "gender", "weight", "height"}

// patientPrefixes are the evidence types a differential may cite.
var patientPrefixes = []string{"N", "L", "M", "CS", "CN", "CF", "CV"}

// differentialOutput is the JSON envelope of the differential prompt.
type differentialOutput struct {
	Differential []domain.DifferentialDiagnosis `json:"differential"`
}

// soapDraft is the JSON shape of the SOAP extraction prompt.
type soapDraft struct {
	S []domain.Fact `json:"S"`
	O []domain.Fact `json:"O"`
	A []domain.Fact `json:"A"`
	P []domain.Fact `json:"P"`
}

// CaseService runs the report pipeline for one case: context, packs,
// patient state, summary, differential, cleanup, composition, validation
// and scoring.
type CaseService struct {
	soap      driving.SOAPService
	generator driving.GenerationService
	prompts   driven.PromptStore
	rules     domain.RuleSet
	settings  domain.AppSettings
	gate      *QualityGate
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// NewCaseService creates a new case service.
// The generator parameter is optional (can be nil); every generation stage
// then uses its deterministic fallback.
func NewCaseService(
	soap driving.SOAPService,
	generator driving.GenerationService,
	prompts driven.PromptStore,
	rules domain.RuleSet,
	settings domain.AppSettings,
) *CaseService {
	s := &CaseService{
		soap:      soap,
		generator: generator,
		prompts:   prompts,
		rules:     rules,
		settings:  settings,
		metrics:   telemetry.Default(),
		now:       time.Now,
	}
	s.gate = NewQualityGate(settings.Gate, &s.rules)
	return s
}

// caseState carries intermediate artifacts between stages.
type caseState struct {
	corpus   *driven.Corpus
	req      domain.CaseRequest
	soap     domain.SOAPContext
	packs    map[domain.Section]domain.EvidencePack
	evidence []domain.RetrievalResult
	notes    []string
	limits   []string
}

// Run produces a validated, scored report for one case.
func (s *CaseService) Run(ctx context.Context, corpus *driven.Corpus, req domain.CaseRequest) (result *domain.CaseResult, err error) {
	start := s.now()
	runID := uuid.NewString()

	ctx, span := telemetry.StartSpan(ctx, "case.run",
		attribute.String("case.run_id", runID),
		attribute.String("case.label", req.Label()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			telemetry.Add(ctx, s.metrics.CasesFailed, 1)
		} else {
			telemetry.Add(ctx, s.metrics.CasesCompleted, 1)
		}
		span.End()
	}()

	log := logger.FromContext(ctx).With().Str("run_id", runID).Str("case", req.Label()).Logger()

	if corpus == nil || corpus.Store == nil {
		return nil, &domain.RetrievalError{Op: "case", Err: errors.New("corpus not loaded")}
	}
	if req.RowID != nil && *req.RowID < 0 {
		return nil, fmt.Errorf("%w: negative row id %d", domain.ErrInvalidInput, *req.RowID)
	}

	st := &caseState{corpus: corpus, req: req}

	if err := s.buildContext(ctx, st); err != nil {
		return nil, fmt.Errorf("%s: build context: %w", req.Label(), err)
	}
	log.Debug().Int("facts", st.soap.Len()).Int("evidence", len(st.evidence)).Msg("context built")

	ps := s.patientState(ctx, st)

	icu := DeterministicSummary(ps, &s.rules)
	summary := SummaryBullets(icu)
	if icu.IsEmpty() {
		summary = FlatSummary(ps)
	}

	diffs := s.differential(ctx, st)

	cleaned := Cleanup(diffs, &s.rules, corpus.Store)
	st.notes = append(st.notes, cleaned.Notes...)

	composition := s.compose(ctx, st, summary, cleaned.Differential)

	report := domain.Report{
		PatientState:        ps,
		Summary:             summary,
		Differential:        cleaned.Differential,
		ClarifyingQuestions: composition.ClarifyingQuestions,
		ActionItems:         composition.ActionItems,
		Limitations:         append(st.limits, composition.Limitations...),
	}

	validation, err := NewValidator(corpus.Store, s.settings.Gate).ValidateReport(report)
	if err != nil {
		log.Warn().Int("violations", len(validation.Violations)).Msg("report failed citation validation")
		return nil, fmt.Errorf("%s: %w", req.Label(), err)
	}
	st.notes = append(st.notes, validation.Warnings...)

	quality := s.gate.Score(icu, cleaned.Differential)
	span.SetAttributes(
		attribute.Int("case.score", quality.Score),
		attribute.Bool("case.passed", quality.Passed),
	)
	log.Info().Int("score", quality.Score).Bool("passed", quality.Passed).Msg("case complete")

	return &domain.CaseResult{
		RunID:      runID,
		Request:    req,
		Report:     report,
		ICUSummary: icu,
		Quality:    quality,
		SOAP:       st.soap,
		Packs:      st.packs,
		Notes:      st.notes,
		Duration:   s.now().Sub(start),
	}, nil
}

// buildContext builds the global SOAP context and the section packs.
func (s *CaseService) buildContext(ctx context.Context, st *caseState) error {
	ctx, span := telemetry.StartSpan(ctx, "case.context")
	defer span.End()

	records := st.corpus.Store.All()
	if st.req.RowID != nil {
		st.soap = s.soap.BuildGlobalContextFromRow(records, *st.req.RowID)
	}
	if st.soap.Len() == 0 {
		soapCtx, err := s.soap.BuildGlobalContext(ctx, st.corpus, st.req.RowID)
		if err != nil {
			return err
		}
		st.soap = soapCtx
	}

	queries := s.soap.QueriesFromFacts(records, st.req.RowID)
	if q := strings.TrimSpace(st.req.Query); q != "" {
		for _, section := range domain.AllSections() {
			queries[section] = q
		}
	}

	req := driving.PackRequest{Queries: queries, RowID: st.req.RowID}
	if len(st.soap.P) == 0 {
		req.PlanMissing = s.soap.MissingSlots(st.soap)[domain.SectionPlan]
	}

	packs, err := s.soap.BuildPacks(ctx, st.corpus, req)
	if err != nil {
		return err
	}
	st.packs = packs

	seen := make(map[string]bool)
	for _, section := range domain.AllSections() {
		for _, r := range packs[section].Results {
			if !seen[r.EvidenceID] {
				seen[r.EvidenceID] = true
				st.evidence = append(st.evidence, r)
			}
		}
	}
	return nil
}

// generate fills a prompt template's named placeholders and calls the
// generator. The rest of the template is sent verbatim.
func (s *CaseService) generate(ctx context.Context, name, evidence, templates string) (string, error) {
	if s.generator == nil {
		return "", domain.ErrLLMUnavailable
	}
	if s.prompts == nil {
		return "", fmt.Errorf("prompt %s: no prompt store configured", name)
	}
	tmpl, err := s.prompts.Load(name)
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", name, err)
	}
	prompt := strings.NewReplacer(
		driven.PlaceholderEvidence, evidence,
		driven.PlaceholderTemplates, templates,
	).Replace(tmpl)
	return s.generator.Generate(ctx, prompt, true)
}

// evidenceBlock renders results as "[id] text" lines within the evidence budget.
func (s *CaseService) evidenceBlock(results []domain.RetrievalResult) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("[%s] %s", r.EvidenceID, r.Text)
	}
	return strings.Join(TruncateEvidence(lines, s.settings.Budget.MaxEvidenceChars), "\n")
}

// patientState extracts the patient state with the LLM, falling back to the
// global context when generation, parsing or validation fails.
func (s *CaseService) patientState(ctx context.Context, st *caseState) domain.PatientState {
	ctx, span := telemetry.StartSpan(ctx, "case.patient_state")
	defer span.End()

	raw, err := s.generate(ctx, driven.PromptPatientState, s.evidenceBlock(st.evidence), "")
	if err == nil {
		parsed := Parse[domain.PatientState](raw)
		if parsed.OK() {
			violations := NewValidator(st.corpus.Store, s.settings.Gate).ValidatePatientState(parsed.Value)
			if len(violations) == 0 && !parsed.Value.IsEmpty() {
				return parsed.Value
			}
			err = &domain.EvidenceIntegrityError{Artifact: "patient_state", Violations: violations}
		} else {
			err = parsed.SchemaError("patient_state")
		}
	}

	if !errors.Is(err, domain.ErrLLMUnavailable) {
		logger.Warn("%s: patient state fallback: %v", st.req.Label(), err)
	}
	st.limits = append(st.limits, limitPatientState)
	return s.patientStateFromContext(st.soap)
}

// patientStateFromContext maps global context facts to patient-state
// groups: assessment to diagnoses, plan to procedures and the rest to the
// timeline, with demographic labels pulled out first. Background citations
// are dropped.
func (s *CaseService) patientStateFromContext(soap domain.SOAPContext) domain.PatientState {
	var ps domain.PatientState
	for _, section := range domain.AllSections() {
		for _, f := range soap.Facts(section) {
			f = patientFact(f)
			if len(f.EvidenceIDs) == 0 {
				continue
			}
			switch {
			case domain.ContainsAnyTerm(f.Label, demographicTerms):
				ps.Demographics = append(ps.Demographics, f)
			case section == domain.SectionAssessment:
				ps.Diagnoses = append(ps.Diagnoses, f)
			case section == domain.SectionPlan:
				ps.Procedures = append(ps.Procedures, f)
			case section == domain.SectionObjective:
				ps.Timeline = append(ps.Timeline, f)
			}
		}
	}
	return ps
}

func patientFact(f domain.Fact) domain.Fact {
	ids := make([]string, 0, len(f.EvidenceIDs))
	for _, id := range f.EvidenceIDs {
		if !domain.IsBackgroundID(id) {
			ids = append(ids, id)
		}
	}
	return domain.Fact{Label: f.Label, Value: f.Value, EvidenceIDs: ids}
}

// differential asks the LLM for distinct-mechanism diagnoses over patient
// evidence. Failure yields an empty differential and a limitation.
func (s *CaseService) differential(ctx context.Context, st *caseState) []domain.DifferentialDiagnosis {
	ctx, span := telemetry.StartSpan(ctx, "case.differential")
	defer span.End()

	var evidence []domain.RetrievalResult
	for _, section := range []domain.Section{domain.SectionAssessment, domain.SectionObjective, domain.SectionSubjective} {
		for _, r := range st.packs[section].Results {
			if domain.HasPrefix(r.EvidenceID, patientPrefixes) {
				evidence = append(evidence, r)
			}
		}
	}
	evidence = dedupeResults(evidence)

	soapJSON, _ := json.Marshal(st.soap)
	block := fmt.Sprintf("SOAP CONTEXT:\n%s\n\nEVIDENCE:\n%s", soapJSON, s.evidenceBlock(evidence))

	raw, err := s.generate(ctx, driven.PromptDifferential, block, "")
	if err == nil {
		parsed := Parse[differentialOutput](raw)
		if parsed.OK() {
			diffs := parsed.Value.Differential
			for i := range diffs {
				diffs[i].Confidence = confidenceFor(len(diffs[i].Support))
			}
			span.SetAttributes(attribute.Int("case.diagnoses", len(diffs)))
			return diffs
		}
		err = parsed.SchemaError("differential")
	}

	if !errors.Is(err, domain.ErrLLMUnavailable) {
		logger.Warn("%s: differential unavailable: %v", st.req.Label(), err)
	}
	st.limits = append(st.limits, limitDifferential)
	return nil
}

// confidenceFor derives confidence from the number of supports. The
// model's own confidence label is never trusted.
func confidenceFor(supports int) domain.Confidence {
	switch {
	case supports >= 3:
		return domain.ConfidenceHigh
	case supports == 2:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

func dedupeResults(results []domain.RetrievalResult) []domain.RetrievalResult {
	seen := make(map[string]bool, len(results))
	out := results[:0:0]
	for _, r := range results {
		if !seen[r.EvidenceID] {
			seen[r.EvidenceID] = true
			out = append(out, r)
		}
	}
	return out
}

// compose asks the LLM for questions, actions and limitations and merges
// the answer with deterministic items.
func (s *CaseService) compose(
	ctx context.Context, st *caseState, summary []domain.SummaryBullet, diffs []domain.DifferentialDiagnosis,
) domain.Composition {
	ctx, span := telemetry.StartSpan(ctx, "case.compose")
	defer span.End()

	var patient []domain.RetrievalResult
	var ids []string
	for _, r := range st.evidence {
		if !domain.IsBackgroundID(r.EvidenceID) {
			patient = append(patient, r)
			ids = append(ids, r.EvidenceID)
		}
	}

	summaryJSON, _ := json.Marshal(summary)
	diffJSON, _ := json.Marshal(diffs)
	templatesJSON, _ := json.Marshal(s.rules.Questions)
	block := fmt.Sprintf("SUMMARY:\n%s\n\nDIFFERENTIAL:\n%s\n\nEVIDENCE SNIPPETS:\n%s",
		summaryJSON, diffJSON, s.evidenceBlock(patient))

	var composed *domain.Composition
	raw, err := s.generate(ctx, driven.PromptReportCompose, block, string(templatesJSON))
	if err == nil {
		parsed := Parse[domain.Composition](raw)
		if parsed.OK() {
			composed = &parsed.Value
		} else {
			err = parsed.SchemaError("report_compose")
		}
	}
	if err != nil && !errors.Is(err, domain.ErrLLMUnavailable) {
		logger.Warn("%s: composition fallback: %v", st.req.Label(), err)
	}

	return MergeComposition(composed, diffs, &s.rules, s.soap.MissingSlots(st.soap), ids)
}

// Draft extracts a SOAP note from the case's section packs with the LLM.
// Facts citing unknown or background evidence are dropped.
func (s *CaseService) Draft(ctx context.Context, corpus *driven.Corpus, req domain.CaseRequest) (domain.SOAPContext, error) {
	ctx, span := telemetry.StartSpan(ctx, "case.draft", attribute.String("case.label", req.Label()))
	defer span.End()

	if corpus == nil || corpus.Store == nil {
		return domain.SOAPContext{}, &domain.RetrievalError{Op: "draft", Err: errors.New("corpus not loaded")}
	}

	st := &caseState{corpus: corpus, req: req}
	if err := s.buildContext(ctx, st); err != nil {
		return domain.SOAPContext{}, err
	}

	raw, err := s.generate(ctx, driven.PromptSOAPExtraction, s.evidenceBlock(st.evidence), "")
	if err != nil {
		return domain.SOAPContext{}, err
	}
	parsed := Parse[soapDraft](raw)
	if !parsed.OK() {
		return domain.SOAPContext{}, parsed.SchemaError("soap_extraction")
	}

	draft := domain.SOAPContext{RowID: req.RowID}
	sections := map[domain.Section][]domain.Fact{
		domain.SectionSubjective: parsed.Value.S,
		domain.SectionObjective:  parsed.Value.O,
		domain.SectionAssessment: parsed.Value.A,
		domain.SectionPlan:       parsed.Value.P,
	}
	for _, section := range domain.AllSections() {
		for _, f := range sections[section] {
			if citesPatientEvidence(f.EvidenceIDs, corpus.Store) {
				draft.Append(section, f)
			}
		}
	}
	return draft, nil
}

func citesPatientEvidence(ids []string, store driven.EvidenceStore) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !store.Has(id) || domain.IsBackgroundID(id) {
			return false
		}
	}
	return true
}
