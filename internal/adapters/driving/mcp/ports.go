package mcp

import (
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Index opens the current index generation.
	Index driving.IndexService

	// Retrieval ranks evidence for free-text queries.
	Retrieval driving.RetrievalService

	// SOAP builds per-case SOAP context. Optional.
	SOAP driving.SOAPService

	// Cases runs the full case pipeline. Optional.
	Cases driving.CaseService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Index == nil {
		return ErrMissingIndexService
	}
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
