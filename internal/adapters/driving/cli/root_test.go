package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pg1910/clinical-rag/internal/adapters/driven/storage/memory"
	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
)

func intPtr(v int) *int { return &v }

// Mock services for testing

type mockSettingsService struct {
	settings    domain.AppSettings
	sets        map[string]string
	setErr      error
	validateErr error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultAppSettings(), sets: map[string]string{}}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(s *domain.AppSettings) error {
	m.settings = *s
	return nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets[key] = value
	return nil
}

func (m *mockSettingsService) Keys() []string {
	return []string{"llm.provider", "llm.model", "retrieval.top_k"}
}

func (m *mockSettingsService) SetEmbeddingProvider(p domain.AIProvider, model, apiKey string) error {
	m.settings.Embedding.Provider = p
	m.settings.Embedding.Model = model
	m.settings.Embedding.APIKey = apiKey
	return nil
}

func (m *mockSettingsService) SetLLMProvider(p domain.AIProvider, model, apiKey string) error {
	m.settings.LLM.Provider = p
	m.settings.LLM.Model = model
	m.settings.LLM.APIKey = apiKey
	return nil
}

func (m *mockSettingsService) Validate() error                { return m.validateErr }
func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }
func (m *mockSettingsService) ValidateEmbeddingConfig() error  { return nil }
func (m *mockSettingsService) ValidateLLMConfig() error        { return nil }

type mockIngestService struct {
	report   *domain.IngestReport
	legacy   []domain.EvidenceRecord
	err      error
	lastPath string
}

func (m *mockIngestService) IngestRow(_ context.Context, _ domain.SourceRow) ([]domain.EvidenceRecord, error) {
	return nil, m.err
}

func (m *mockIngestService) IngestRows(_ context.Context, _ []domain.SourceRow) (*domain.IngestReport, error) {
	return m.report, m.err
}

func (m *mockIngestService) IngestFile(_ context.Context, path string) (*domain.IngestReport, error) {
	m.lastPath = path
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

func (m *mockIngestService) IngestLegacyDir(_ context.Context, dir string) ([]domain.EvidenceRecord, error) {
	m.lastPath = dir
	return m.legacy, m.err
}

type mockIndexService struct {
	corpus   *driven.Corpus
	infos    []domain.IndexInfo
	openErr  error
	buildErr error
	built    []domain.EvidenceRecord
}

func (m *mockIndexService) Build(_ context.Context, records []domain.EvidenceRecord) (*driven.Corpus, error) {
	if m.buildErr != nil {
		return nil, m.buildErr
	}
	m.built = records
	store, err := memory.NewEvidenceStore(records)
	if err != nil {
		return nil, err
	}
	return &driven.Corpus{Generation: "gen-new", Store: store}, nil
}

func (m *mockIndexService) Open(_ context.Context) (*driven.Corpus, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.corpus, nil
}

func (m *mockIndexService) List(_ context.Context) ([]domain.IndexInfo, error) {
	return m.infos, nil
}

type mockRetrievalService struct {
	results []domain.RetrievalResult
	err     error
	topK    int
}

func (m *mockRetrievalService) Search(_ context.Context, _ *driven.Corpus, _ string, topK int) ([]domain.RetrievalResult, error) {
	m.topK = topK
	return m.results, m.err
}

type mockSOAPService struct {
	soap      domain.SOAPContext
	pack      domain.EvidencePack
	missing   map[domain.Section][]string
	err       error
	lastRowID *int
}

func (m *mockSOAPService) SectionSearch(_ context.Context, _ *driven.Corpus, section domain.Section, query string, rowID *int, _ int) (domain.EvidencePack, error) {
	m.lastRowID = rowID
	pack := m.pack
	pack.Section = section
	pack.Query = query
	return pack, m.err
}

func (m *mockSOAPService) BuildPacks(_ context.Context, _ *driven.Corpus, _ driving.PackRequest) (map[domain.Section]domain.EvidencePack, error) {
	return nil, m.err
}

func (m *mockSOAPService) BuildGlobalContext(_ context.Context, _ *driven.Corpus, rowID *int) (domain.SOAPContext, error) {
	m.lastRowID = rowID
	soap := m.soap
	soap.RowID = rowID
	return soap, m.err
}

func (m *mockSOAPService) BuildGlobalContextFromRow(_ []domain.EvidenceRecord, _ int) domain.SOAPContext {
	return m.soap
}

func (m *mockSOAPService) MissingSlots(_ domain.SOAPContext) map[domain.Section][]string {
	return m.missing
}

func (m *mockSOAPService) GenerateQueries(_ string) map[domain.Section]string { return nil }

func (m *mockSOAPService) QueriesFromFacts(_ []domain.EvidenceRecord, _ *int) map[domain.Section]string {
	return nil
}

type mockCaseService struct {
	result  *domain.CaseResult
	draft   domain.SOAPContext
	err     error
	lastReq domain.CaseRequest
}

func (m *mockCaseService) Run(_ context.Context, _ *driven.Corpus, req domain.CaseRequest) (*domain.CaseResult, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	result := *m.result
	result.Request = req
	return &result, nil
}

func (m *mockCaseService) Draft(_ context.Context, _ *driven.Corpus, req domain.CaseRequest) (domain.SOAPContext, error) {
	m.lastReq = req
	return m.draft, m.err
}

type mockBatchService struct {
	result *domain.BatchResult
	err    error
	reqs   []domain.CaseRequest
}

func (m *mockBatchService) Run(_ context.Context, _ *driven.Corpus, reqs []domain.CaseRequest) (*domain.BatchResult, error) {
	m.reqs = reqs
	return m.result, m.err
}

type mockRuleStore struct {
	path string
	err  error
}

func (m *mockRuleStore) Rules() (domain.RuleSet, error) {
	if m.err != nil {
		return domain.RuleSet{}, m.err
	}
	return domain.DefaultRuleSet(), nil
}

func (m *mockRuleStore) Path() string { return m.path }

// testCorpus holds two rows and one background record.
func testCorpus() *driven.Corpus {
	store, err := memory.NewEvidenceStore([]domain.EvidenceRecord{
		{
			ID:      "CN_7_0",
			Type:    domain.EvidenceCSVNote,
			RawText: "Intubated for hypoxemic respiratory failure, FiO2 0.8.",
			Locator: domain.Locator{RowID: intPtr(7), Field: "note"},
		},
		{
			ID:      "CN_2_0",
			Type:    domain.EvidenceCSVNote,
			RawText: "INR 2.1 with oozing from line sites.",
			Locator: domain.Locator{RowID: intPtr(2), Field: "note"},
		},
		{
			ID:      "CN_7_1",
			Type:    domain.EvidenceCSVNote,
			RawText: "Bilirubin 12 after Kasai procedure.",
			Locator: domain.Locator{RowID: intPtr(7), Field: "note", ChunkIndex: 1},
		},
		{
			ID:      "D000001",
			Type:    domain.EvidenceDomain,
			RawText: "ARDS is defined by the Berlin criteria.",
			Locator: domain.Locator{SourceFile: "domain.txt", Field: "domain"},
		},
	})
	if err != nil {
		panic(err)
	}
	return &driven.Corpus{Generation: "gen-test", Store: store}
}

func testCaseResult() *domain.CaseResult {
	return &domain.CaseResult{
		RunID: "run-1",
		Report: domain.Report{
			Summary: []domain.SummaryBullet{{Text: "Primary problems: ARDS", EvidenceIDs: []string{"CN_7_0"}}},
			Differential: []domain.DifferentialDiagnosis{{
				Diagnosis:  "ARDS",
				Support:    []domain.Fact{{Label: "FiO2", Value: "0.8", EvidenceIDs: []string{"CN_7_0"}}},
				Missing:    []string{"chest imaging"},
				Confidence: domain.ConfidenceMedium,
			}},
			ClarifyingQuestions: []domain.ClarifyingQuestion{{
				Question: "Latest PaO2/FiO2 ratio?", Priority: domain.PriorityHigh, EvidenceIDs: []string{"CN_7_0"},
			}},
			Limitations: []string{"Composition fell back to rule-based output"},
		},
		Quality: domain.QualityGateResult{Score: 74, Passed: true, Warnings: []string{"Differential has only 1 items (min: 3)"}},
		Notes:   []string{"Removed weak support"},
	}
}

type testServices struct {
	settings  *mockSettingsService
	ingest    *mockIngestService
	index     *mockIndexService
	retrieval *mockRetrievalService
	soap      *mockSOAPService
	cases     *mockCaseService
	batch     *mockBatchService
	rules     *mockRuleStore
}

// setupTestServices installs mocks and returns them with a cleanup func.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		settings: newMockSettingsService(),
		ingest:   &mockIngestService{},
		index:    &mockIndexService{corpus: testCorpus()},
		retrieval: &mockRetrievalService{results: []domain.RetrievalResult{
			{EvidenceID: "CN_7_0", Score: 0.912, Text: "Intubated for hypoxemic respiratory failure, FiO2 0.8."},
			{EvidenceID: "CN_7_1", Score: 0.415, Text: "Bilirubin 12 after Kasai procedure."},
		}},
		soap:  &mockSOAPService{},
		cases: &mockCaseService{result: testCaseResult()},
		batch: &mockBatchService{},
		rules: &mockRuleStore{},
	}
	SetServices(&Services{
		Settings:  ts.settings,
		Ingest:    ts.ingest,
		Index:     ts.index,
		Retrieval: ts.retrieval,
		SOAP:      ts.soap,
		Cases:     ts.cases,
		Batch:     ts.batch,
		Rules:     ts.rules,
	})

	return ts, func() {
		SetServices(nil)
		resetFlags(rootCmd)
	}
}

// resetFlags restores every flag to its default so tests stay independent.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// executeCommand runs the root command with args and returns its output.
func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_Metadata(t *testing.T) {
	assert.Equal(t, "copilot", rootCmd.Use)
	assert.True(t, rootCmd.SilenceUsage)

	for _, name := range []string{"no-config", "verbose", "log-json", "data-dir"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}

	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"batch", "case", "index", "ingest", "mcp", "rules", "search", "settings", "soap", "version", "watch"} {
		assert.Contains(t, names, want)
	}
}

func TestInitServices_CallsSetupWithOptions(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	var got Options
	calls := 0
	closed := false
	SetSetup(func(o Options) (*Services, func(), error) {
		calls++
		got = o
		return &Services{Index: ts.index, Retrieval: ts.retrieval}, func() { closed = true }, nil
	})
	defer SetSetup(nil)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"--no-config", "--data-dir", "/tmp/copilot", "search", "FiO2"})
	defer rootCmd.SetArgs(nil)

	err := Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, got.NoConfig)
	assert.Equal(t, "/tmp/copilot", got.DataDir)
	assert.True(t, closed, "cleanup runs after the command")
	assert.Contains(t, buf.String(), "CN_7_0")
}

func TestInitServices_SkipsAnnotatedCommands(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	SetSetup(func(Options) (*Services, func(), error) {
		return nil, nil, errors.New("should not be called")
	})
	defer SetSetup(nil)

	out, err := executeCommand("version")

	require.NoError(t, err)
	assert.Contains(t, out, "copilot version")
}

func TestInitServices_SetupError(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	SetSetup(func(Options) (*Services, func(), error) {
		return nil, nil, errors.New("database is locked")
	})
	defer SetSetup(nil)

	_, err := executeCommand("search", "FiO2")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialise services: database is locked")
}

func TestOpenCorpus_Hints(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	ts.index.openErr = domain.ErrNotFound
	_, err := executeCommand("search", "FiO2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "copilot index build <path>' first")

	ts.index.openErr = domain.ErrStaleIndex
	_, err = executeCommand("search", "FiO2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStaleIndex)
	assert.Contains(t, err.Error(), "Rebuild with")
}

func TestOpenCorpus_NotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	indexService = nil

	_, err := openCorpus(rootCmd)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "index service not configured")
}

func TestCorpusRows(t *testing.T) {
	assert.Equal(t, []int{2, 7}, corpusRows(testCorpus()))

	store, err := memory.NewEvidenceStore([]domain.EvidenceRecord{
		{ID: "N000001", Type: domain.EvidenceNarrative, RawText: "3 month old", Locator: domain.Locator{SourceFile: "narrative.txt"}},
	})
	require.NoError(t, err)
	assert.Empty(t, corpusRows(&driven.Corpus{Store: store}))
}

func TestRowFlag(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	var row int
	cmd.Flags().IntVar(&row, "row", 0, "")

	assert.Nil(t, rowFlag(cmd, row))

	require.NoError(t, cmd.Flags().Set("row", "0"))
	got := rowFlag(cmd, row)
	require.NotNil(t, got)
	assert.Equal(t, 0, *got)
}

func TestLoadRecords_MissingPath(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, _, err := loadRecords(context.Background(), "/does/not/exist.csv")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLoadRecords_NotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	ingestService = nil

	_, _, err := loadRecords(context.Background(), t.TempDir())

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "ingest service not configured"))
}
