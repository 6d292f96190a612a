package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Pg1910/clinical-rag/internal/adapters/driven/embedding/hashing"
	"github.com/Pg1910/clinical-rag/internal/adapters/driven/index"
	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
)

// mockBundleStore keeps generations in memory.
type mockBundleStore struct {
	mu      sync.Mutex
	bundles []*domain.IndexBundle
	saveErr error
}

func (m *mockBundleStore) Save(_ context.Context, bundle *domain.IndexBundle) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles = append(m.bundles, bundle)
	return nil
}

func (m *mockBundleStore) Latest(_ context.Context) (*domain.IndexBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bundles) == 0 {
		return nil, domain.ErrNotFound
	}
	return m.bundles[len(m.bundles)-1], nil
}

func (m *mockBundleStore) List(_ context.Context) ([]domain.IndexInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.IndexInfo, 0, len(m.bundles))
	for i := len(m.bundles) - 1; i >= 0; i-- {
		b := m.bundles[i]
		out = append(out, domain.IndexInfo{
			Generation:     b.Generation,
			Checksum:       b.Checksum,
			CreatedAt:      b.CreatedAt,
			EmbeddingModel: b.EmbeddingModel,
			Dimensions:     b.Dimensions,
			Records:        len(b.Records),
		})
	}
	return out, nil
}

func (m *mockBundleStore) Close() error {
	return nil
}

// mockRunStore records saved runs.
type mockRunStore struct {
	mu   sync.Mutex
	runs []domain.RunRecord
	err  error
}

func (m *mockRunStore) SaveRun(_ context.Context, run domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockRunStore) ListRuns(_ context.Context, limit int) ([]domain.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	return append([]domain.RunRecord(nil), m.runs[:limit]...), nil
}

// llmReply is one scripted backend answer.
type llmReply struct {
	text string
	err  error
}

// mockLLMService replays scripted replies and records every call.
// The last reply repeats once the script is exhausted.
type mockLLMService struct {
	mu      sync.Mutex
	replies []llmReply
	prompts []string
	opts    []driven.GenerateOptions
}

func (m *mockLLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)
	if len(m.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply.text, reply.err
}

func (m *mockLLMService) ModelName() string {
	return "mock-llm"
}

func (m *mockLLMService) Ping(_ context.Context) error {
	return nil
}

func (m *mockLLMService) Close() error {
	return nil
}

func (m *mockLLMService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// mockPromptStore returns templates whose first line names the prompt, so
// mockGenerator can tell the stages apart.
type mockPromptStore struct {
	loadErr error
}

func (m *mockPromptStore) Load(name string) (string, error) {
	if m.loadErr != nil {
		return "", m.loadErr
	}
	if name == driven.PromptReportCompose {
		return name + "\n" + driven.PlaceholderEvidence + "\nTEMPLATES:\n" + driven.PlaceholderTemplates, nil
	}
	return name + "\n" + driven.PlaceholderEvidence + "\nFlag SpO2 < 90% as hypoxaemia.", nil
}

func (m *mockPromptStore) Reload() {}

// mockGenerator answers per prompt name. Missing names fail.
type mockGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	prompts   map[string]string
}

func newMockGenerator(responses map[string]string) *mockGenerator {
	return &mockGenerator{
		responses: responses,
		errs:      map[string]error{},
		prompts:   map[string]string{},
	}
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, _ bool) (string, error) {
	name, _, _ := strings.Cut(prompt, "\n")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[name] = prompt
	if err, ok := m.errs[name]; ok {
		return "", err
	}
	text, ok := m.responses[name]
	if !ok {
		return "", fmt.Errorf("no response for %s", name)
	}
	return text, nil
}

// mockRetrieval returns fixed results and records the last call.
type mockRetrieval struct {
	results   []domain.RetrievalResult
	err       error
	lastQuery string
	lastTopK  int
}

func (m *mockRetrieval) Search(_ context.Context, _ *driven.Corpus, query string, topK int) ([]domain.RetrievalResult, error) {
	m.lastQuery = query
	m.lastTopK = topK
	if m.err != nil {
		return nil, m.err
	}
	out := append([]domain.RetrievalResult(nil), m.results...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// mockCaseService runs a function per request.
type mockCaseService struct {
	run func(req domain.CaseRequest) (*domain.CaseResult, error)
}

func (m *mockCaseService) Run(_ context.Context, _ *driven.Corpus, req domain.CaseRequest) (*domain.CaseResult, error) {
	return m.run(req)
}

func (m *mockCaseService) Draft(context.Context, *driven.Corpus, domain.CaseRequest) (domain.SOAPContext, error) {
	return domain.SOAPContext{}, nil
}

var _ driving.CaseService = (*mockCaseService)(nil)

func testRules() *domain.RuleSet {
	rules := domain.DefaultRuleSet()
	return &rules
}

func intPtr(n int) *int {
	return &n
}

// rowRecordFor builds a row-scoped record by hand.
func rowRecordFor(t domain.EvidenceType, row, k int, text string, meta map[string]string) domain.EvidenceRecord {
	id := row
	return domain.EvidenceRecord{
		ID:       domain.FormatEvidenceID(t, row, k),
		Type:     t,
		RawText:  text,
		Locator:  domain.Locator{RowID: &id, Field: string(t), ChunkIndex: k},
		Metadata: meta,
	}
}

// legacyRecord builds a legacy record by hand.
func legacyRecord(t domain.EvidenceType, n int, text string) domain.EvidenceRecord {
	return domain.EvidenceRecord{
		ID:      domain.FormatLegacyID(t, n),
		Type:    t,
		RawText: text,
		Locator: domain.Locator{SourceFile: "fixture.txt", Field: string(t), ChunkIndex: n - 1},
	}
}

// icuRecords is a small ICU corpus: one patient row, a second row and
// legacy narrative, lab, monitor and background records.
func icuRecords() []domain.EvidenceRecord {
	return []domain.EvidenceRecord{
		rowRecordFor(domain.EvidenceCSVNote, 7, 0,
			"Infant on ventilator with FiO2 0.6 and PEEP 8, SpO2 88% despite recruitment.", nil),
		rowRecordFor(domain.EvidenceCSVNote, 7, 1,
			"Bilirubin rising to 12 mg/dl with AST 300 and ALT 280 after Kasai procedure.", nil),
		rowRecordFor(domain.EvidenceCSVConversation, 7, 0,
			"Parent: she has had belly pain and fever since yesterday.", nil),
		rowRecordFor(domain.EvidenceCSVSummary, 7, 0, "diagnosis: biliary atresia status post Kasai",
			map[string]string{"key": "diagnosis", "value": "biliary atresia status post Kasai"}),
		rowRecordFor(domain.EvidenceCSVSummary, 7, 1, "lab: INR 2.1 and platelets 60",
			map[string]string{"key": "lab", "value": "INR 2.1 and platelets 60"}),
		rowRecordFor(domain.EvidenceCSVNote, 8, 0,
			"Adult with chest pain, troponin negative, discharged home.", nil),
		legacyRecord(domain.EvidenceNarrative, 1, "Admitted to PICU with respiratory failure."),
		legacyRecord(domain.EvidenceNarrative, 2, "History of Kasai portoenterostomy at 2 months."),
		legacyRecord(domain.EvidenceLab, 1, "Blood culture positive for E.coli."),
		legacyRecord(domain.EvidenceMonitor, 1, "FiO2 0.6 PEEP 8 PIP 28 SpO2 88"),
		legacyRecord(domain.EvidenceDomain, 1, "ARDS is defined by hypoxemia with bilateral infiltrates; FiO2 and PEEP set severity."),
		legacyRecord(domain.EvidenceCodebook, 1, "Code 17: FiO2 fraction of inspired oxygen"),
	}
}

// buildCorpus indexes records with BM25 and the hashing embedder.
func buildCorpus(t *testing.T, records []domain.EvidenceRecord) *driven.Corpus {
	t.Helper()
	svc := NewIndexService(&mockBundleStore{}, index.NewFactory(), hashing.NewEmbeddingService(128))
	corpus, err := svc.Build(context.Background(), records)
	require.NoError(t, err)
	return corpus
}

// newTestRetrieval returns hybrid retrieval over the hashing embedder.
func newTestRetrieval() *RetrievalService {
	return NewRetrievalService(hashing.NewEmbeddingService(128), domain.DefaultAppSettings().Retrieval)
}
