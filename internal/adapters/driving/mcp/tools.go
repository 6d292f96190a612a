package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

// defaultLimit is used when a search omits its limit.
const defaultLimit = 10

// SearchInput is the input schema for the search_evidence tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"free-text clinical query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// SearchOutput is the output schema for the search_evidence tool.
type SearchOutput struct {
	Results []EvidenceHit `json:"results"`
	Count   int           `json:"count"`
}

// EvidenceHit represents a single ranked evidence record.
type EvidenceHit struct {
	EvidenceID string  `json:"evidence_id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// GetEvidenceInput is the input schema for the get_evidence tool.
type GetEvidenceInput struct {
	IDs []string `json:"ids" jsonschema:"evidence ids to resolve, e.g. CN_12_0 or L000004"`
}

// GetEvidenceOutput is the output schema for the get_evidence tool.
type GetEvidenceOutput struct {
	Records []EvidenceOutput `json:"records"`
	Missing []string         `json:"missing,omitempty"`
}

// EvidenceOutput is one resolved evidence record.
type EvidenceOutput struct {
	EvidenceID string `json:"evidence_id"`
	Type       string `json:"type"`
	Text       string `json:"text"`
	Field      string `json:"field,omitempty"`
	SourceFile string `json:"source_file,omitempty"`
	RowID      *int   `json:"row_id,omitempty"`
	Background bool   `json:"background"`
}

// SOAPInput is the input schema for the soap_context tool.
type SOAPInput struct {
	RowID *int `json:"row_id,omitempty" jsonschema:"source row of the case; omit for whole-corpus cases"`
}

// SOAPOutput is the output schema for the soap_context tool.
type SOAPOutput struct {
	Context domain.SOAPContext  `json:"context"`
	Missing map[string][]string `json:"missing"`
}

// CaseInput is the input schema for the run_case tool.
type CaseInput struct {
	RowID *int   `json:"row_id,omitempty" jsonschema:"source row of the case; omit for whole-corpus cases"`
	Query string `json:"query,omitempty" jsonschema:"optional query seeding every section pack"`
}

// CaseOutput is the output schema for the run_case tool.
type CaseOutput struct {
	RunID   string                   `json:"run_id"`
	Report  domain.Report            `json:"report"`
	Quality domain.QualityGateResult `json:"quality"`
	Notes   []string                 `json:"notes,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
// Tools backed by optional ports are only exposed when the port is set.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_evidence",
		Description: "Hybrid keyword and semantic search over cited clinical evidence",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_evidence",
		Description: "Resolve evidence ids to their source text",
	}, s.handleGetEvidence)

	if s.ports.SOAP != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "soap_context",
			Description: "Build the SOAP context of one case with missing-information slots",
		}, s.handleSOAPContext)
	}

	if s.ports.Cases != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "run_case",
			Description: "Generate an evidence-grounded report for one case and score it",
		}, s.handleRunCase)
	}
}

// handleSearch handles the search_evidence tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	corpus, err := s.loadCorpus(ctx)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	results, err := s.ports.Retrieval.Search(ctx, corpus, input.Query, limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]EvidenceHit, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = EvidenceHit{
			EvidenceID: results[i].EvidenceID,
			Score:      results[i].Score,
			Text:       results[i].Text,
		}
	}

	return nil, output, nil
}

// handleGetEvidence handles the get_evidence tool invocation.
func (s *Server) handleGetEvidence(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetEvidenceInput,
) (*mcp.CallToolResult, GetEvidenceOutput, error) {
	if len(input.IDs) == 0 {
		return nil, GetEvidenceOutput{}, errors.New("at least one evidence id is required")
	}

	corpus, err := s.loadCorpus(ctx)
	if err != nil {
		return nil, GetEvidenceOutput{}, err
	}

	output := GetEvidenceOutput{Records: make([]EvidenceOutput, 0, len(input.IDs))}
	for _, id := range input.IDs {
		rec, ok := corpus.Store.Get(id)
		if !ok {
			output.Missing = append(output.Missing, id)
			continue
		}
		output.Records = append(output.Records, toEvidenceOutput(rec))
	}

	return nil, output, nil
}

// handleSOAPContext handles the soap_context tool invocation.
func (s *Server) handleSOAPContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SOAPInput,
) (*mcp.CallToolResult, SOAPOutput, error) {
	corpus, err := s.loadCorpus(ctx)
	if err != nil {
		return nil, SOAPOutput{}, err
	}

	soap, err := s.ports.SOAP.BuildGlobalContext(ctx, corpus, input.RowID)
	if err != nil {
		return nil, SOAPOutput{}, fmt.Errorf("building SOAP context: %w", err)
	}

	missing := make(map[string][]string)
	for section, slots := range s.ports.SOAP.MissingSlots(soap) {
		missing[string(section)] = slots
	}

	return nil, SOAPOutput{Context: soap, Missing: missing}, nil
}

// handleRunCase handles the run_case tool invocation.
func (s *Server) handleRunCase(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CaseInput,
) (*mcp.CallToolResult, CaseOutput, error) {
	corpus, err := s.loadCorpus(ctx)
	if err != nil {
		return nil, CaseOutput{}, err
	}

	result, err := s.ports.Cases.Run(ctx, corpus, domain.CaseRequest{RowID: input.RowID, Query: input.Query})
	if err != nil {
		return nil, CaseOutput{}, err
	}

	return nil, CaseOutput{
		RunID:   result.RunID,
		Report:  result.Report,
		Quality: result.Quality,
		Notes:   result.Notes,
	}, nil
}

func toEvidenceOutput(rec domain.EvidenceRecord) EvidenceOutput {
	return EvidenceOutput{
		EvidenceID: rec.ID,
		Type:       rec.Type.String(),
		Text:       rec.RawText,
		Field:      rec.Locator.Field,
		SourceFile: rec.Locator.SourceFile,
		RowID:      rec.Locator.RowID,
		Background: rec.IsBackground(),
	}
}
