package mcp

import "github.com/mark3labs/mcp-go/mcp"

var searchDocumentsTool = mcp.NewTool("search_documents",
	mcp.WithDescription("Semantic search over the indexed documents. Returns the matching sections and table chunks with their source file and page."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 10, max 20)"),
	),
)

var askDocumentsTool = mcp.NewTool("ask_documents",
	mcp.WithDescription("Answer a question from the indexed documents and cite the sources used."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The question to answer"),
	),
	mcp.WithNumber("top_k",
		mcp.Description("How many chunks to retrieve as context (default 15, max 20)"),
	),
)

var listDocumentsTool = mcp.NewTool("list_documents",
	mcp.WithDescription("List uploaded documents with their ingestion state and chunk counts."),
)
