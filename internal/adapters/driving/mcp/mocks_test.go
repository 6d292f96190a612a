package mcp

import (
	"context"

	"github.com/Pg1910/clinical-rag/internal/adapters/driven/storage/memory"
	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
)

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	corpus *driven.Corpus
	infos  []domain.IndexInfo
	err    error
	opens  int
}

func (m *mockIndexService) Build(_ context.Context, _ []domain.EvidenceRecord) (*driven.Corpus, error) {
	return m.corpus, m.err
}

func (m *mockIndexService) Open(_ context.Context) (*driven.Corpus, error) {
	m.opens++
	if m.err != nil {
		return nil, m.err
	}
	return m.corpus, nil
}

func (m *mockIndexService) List(_ context.Context) ([]domain.IndexInfo, error) {
	return m.infos, m.err
}

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	results []domain.RetrievalResult
	err     error
	topK    int
}

func (m *mockRetrievalService) Search(
	_ context.Context,
	_ *driven.Corpus,
	_ string,
	topK int,
) ([]domain.RetrievalResult, error) {
	m.topK = topK
	return m.results, m.err
}

// mockSOAPService is a mock implementation of driving.SOAPService.
type mockSOAPService struct {
	soap    domain.SOAPContext
	missing map[domain.Section][]string
	err     error
}

func (m *mockSOAPService) SectionSearch(
	_ context.Context, _ *driven.Corpus, s domain.Section, q string, _ *int, _ int,
) (domain.EvidencePack, error) {
	return domain.EvidencePack{Section: s, Query: q}, m.err
}

func (m *mockSOAPService) BuildPacks(
	_ context.Context, _ *driven.Corpus, _ driving.PackRequest,
) (map[domain.Section]domain.EvidencePack, error) {
	return nil, m.err
}

func (m *mockSOAPService) BuildGlobalContext(_ context.Context, _ *driven.Corpus, rowID *int) (domain.SOAPContext, error) {
	if m.err != nil {
		return domain.SOAPContext{}, m.err
	}
	soap := m.soap
	soap.RowID = rowID
	return soap, nil
}

func (m *mockSOAPService) BuildGlobalContextFromRow(_ []domain.EvidenceRecord, rowID int) domain.SOAPContext {
	return domain.SOAPContext{RowID: &rowID}
}

func (m *mockSOAPService) MissingSlots(_ domain.SOAPContext) map[domain.Section][]string {
	return m.missing
}

func (m *mockSOAPService) GenerateQueries(_ string) map[domain.Section]string {
	return nil
}

func (m *mockSOAPService) QueriesFromFacts(_ []domain.EvidenceRecord, _ *int) map[domain.Section]string {
	return nil
}

// mockCaseService is a mock implementation of driving.CaseService.
type mockCaseService struct {
	result  *domain.CaseResult
	err     error
	lastReq domain.CaseRequest
}

func (m *mockCaseService) Run(_ context.Context, _ *driven.Corpus, req domain.CaseRequest) (*domain.CaseResult, error) {
	m.lastReq = req
	return m.result, m.err
}

func (m *mockCaseService) Draft(_ context.Context, _ *driven.Corpus, req domain.CaseRequest) (domain.SOAPContext, error) {
	m.lastReq = req
	return domain.SOAPContext{RowID: req.RowID}, m.err
}

func intPtr(v int) *int { return &v }

// testCorpus returns a small in-memory corpus with one row and one background record.
func testCorpus() *driven.Corpus {
	store, err := memory.NewEvidenceStore([]domain.EvidenceRecord{
		{
			ID:      "CN_4_0",
			Type:    domain.EvidenceCSVNote,
			RawText: "Intubated for hypoxemic respiratory failure, FiO2 0.8.",
			Locator: domain.Locator{RowID: intPtr(4), Field: "note"},
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

func testPorts() *Ports {
	return &Ports{
		Index:     &mockIndexService{corpus: testCorpus()},
		Retrieval: &mockRetrievalService{},
	}
}
