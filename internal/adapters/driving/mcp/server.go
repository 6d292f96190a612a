package mcp

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Server is the MCP server for the clinical copilot.
type Server struct {
	ports  *Ports
	server *mcp.Server

	mu     sync.Mutex
	corpus *driven.Corpus
}

// NewServer creates a new MCP server with the given ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	impl := &mcp.Implementation{
		Name:    "clinical-copilot",
		Version: Version,
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(impl, nil),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// loadCorpus returns the current generation, opening it on first use.
// A failed open is not cached so a later build becomes visible.
func (s *Server) loadCorpus(ctx context.Context) (*driven.Corpus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.corpus != nil {
		return s.corpus, nil
	}
	corpus, err := s.ports.Index.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	logger.Debug("mcp: loaded generation %s (%d records)", corpus.Generation, corpus.Len())
	s.corpus = corpus
	return corpus, nil
}

// Reload drops the cached generation; the next call reopens the index.
func (s *Server) Reload() {
	s.mu.Lock()
	s.corpus = nil
	s.mu.Unlock()
}

// Run starts the MCP server over stdio.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP starts the MCP server over HTTP on the specified address.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
