package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/docqa/internal/vectordb"
)

const maxSearchLimit = 20

func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, maxSearchLimit)

	results, err := s.store.Search(ctx, s.tenantID, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. Upload and process documents first."), nil
	}

	return mcp.NewToolResultText(vectordb.FormatResults(results)), nil
}

func (s *Server) handleAskDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}

	ans, err := s.answerer.Answer(ctx, s.tenantID, question, request.GetInt("top_k", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
	}
	if ans.ConfigurationError {
		return mcp.NewToolResultError(ans.Answer), nil
	}

	var sb strings.Builder
	sb.WriteString(ans.Answer)
	if len(ans.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for _, c := range ans.Sources {
			sb.WriteString("- ")
			sb.WriteString(c.Filename)
			if c.Page != nil {
				fmt.Fprintf(&sb, ", page %d", *c.Page)
			}
			if c.SectionTitle != "" {
				fmt.Fprintf(&sb, " (%s)", c.SectionTitle)
			} else if c.ContentType != "" {
				fmt.Fprintf(&sb, " (%s)", c.ContentType)
			}
			sb.WriteString("\n")
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleListDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := s.files.List(ctx, s.tenantID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing documents failed: %v", err)), nil
	}
	if len(files) == 0 {
		return mcp.NewToolResultText("No documents uploaded."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d document(s):\n", len(files))
	for _, f := range files {
		fmt.Fprintf(&sb, "- %s [%s", f.Filename, f.Stage)
		if f.State != "" {
			fmt.Fprintf(&sb, ", %s", f.State)
		}
		fmt.Fprintf(&sb, "] %d bytes", f.Size)
		if f.ChunkCount > 0 {
			fmt.Fprintf(&sb, ", %d chunks", f.ChunkCount)
		}
		if f.LastError != "" {
			fmt.Fprintf(&sb, ", last error: %s", f.LastError)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}
