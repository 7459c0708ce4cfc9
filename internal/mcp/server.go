// Package mcp exposes one tenant's documents to MCP clients over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/docqa/internal/ingest"
	"github.com/ziadkadry99/docqa/internal/rag"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Searcher finds chunks in a tenant's index.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, k int) ([]vectordb.SearchResult, error)
}

// Lister lists a tenant's files.
type Lister interface {
	List(ctx context.Context, tenantID string) ([]ingest.FileInfo, error)
}

// Server wraps an MCP server bound to a single tenant.
type Server struct {
	tenantID string
	store    Searcher
	answerer *rag.Answerer
	files    Lister
	mcp      *server.MCPServer
}

// NewServer creates an MCP server for tenantID. answerer and files may be
// nil, which leaves out the tools that need them.
func NewServer(tenantID string, store Searcher, answerer *rag.Answerer, files Lister) *Server {
	s := &Server{
		tenantID: tenantID,
		store:    store,
		answerer: answerer,
		files:    files,
	}

	s.mcp = server.NewMCPServer(
		"docqa",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	if s.answerer != nil {
		s.mcp.AddTool(askDocumentsTool, s.handleAskDocuments)
	}
	if s.files != nil {
		s.mcp.AddTool(listDocumentsTool, s.handleListDocuments)
	}
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
