package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for copilot resources.
	uriScheme = "copilot://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing index generations.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "generations",
		Name:        "generations",
		Description: "Stored index generations, newest first",
		MIMEType:    "application/json",
	}, s.handleGenerationsResource)

	// Template for evidence text.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "evidence/{evidenceId}",
		Name:        "evidence",
		Description: "Source text of one evidence record",
		MIMEType:    "text/plain",
	}, s.handleEvidenceResource)
}

// handleGenerationsResource returns metadata of every stored generation.
func (s *Server) handleGenerationsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	infos, err := s.ports.Index.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}

	text := "[]"
	if len(infos) > 0 {
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshalling generations: %w", err)
		}
		text = string(data)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     text,
		}},
	}, nil
}

// handleEvidenceResource returns the raw text of one evidence record.
func (s *Server) handleEvidenceResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract evidenceId from URI: copilot://evidence/{evidenceId}
	id := extractEvidenceID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	corpus, err := s.loadCorpus(ctx)
	if err != nil {
		return nil, err
	}

	rec, ok := corpus.Store.Get(id)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     rec.RawText,
		}},
	}, nil
}

// extractEvidenceID extracts the evidence ID from a URI like copilot://evidence/{evidenceId}.
func extractEvidenceID(uri string) string {
	const prefix = uriScheme + "evidence/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
