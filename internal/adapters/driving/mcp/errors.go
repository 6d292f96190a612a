// Package mcp provides an MCP (Model Context Protocol) server adapter for the copilot.
// It lets AI assistants search cited evidence, read SOAP context and run cases.
package mcp

import "errors"

var (
	// ErrMissingIndexService is returned when the index service is not provided.
	ErrMissingIndexService = errors.New("mcp: index service is required")

	// ErrMissingRetrievalService is returned when the retrieval service is not provided.
	ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
)
