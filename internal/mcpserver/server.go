// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Pagebook tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pagebook/internal/apperr"
	"github.com/starford/pagebook/internal/export"
	"github.com/starford/pagebook/internal/pageservice"
)

// BlockFormatURI identifies the block format contract resource.
const BlockFormatURI = "pagebook://block-format"

// Server wraps the MCP server with Pagebook tools.
type Server struct {
	mcp *server.MCPServer
	svc *pageservice.Service
}

// New creates a new MCP server with all Pagebook tools registered.
func New(svc *pageservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Pagebook",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List pages sorted by title, one \"id<TAB>title\" line each. "+
			"The current page is marked with a leading '*'."),
		mcp.WithString("query", mcp.Description("Optional case-insensitive title filter")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read a page rendered as Markdown (or HTML)."),
		mcp.WithString("id", mcp.Description("Page id; defaults to the current page")),
		mcp.WithString("format", mcp.Description("Output format: md (default) or html")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("create_page",
		mcp.WithDescription("Create a new page from Markdown or from a named template and make it current. "+
			"Markdown MUST follow the block format contract. Read the contract first via "+
			"the get_block_contract tool or the "+BlockFormatURI+" resource."),
		mcp.WithString("markdown", mcp.Description("Page content following the block format contract")),
		mcp.WithString("template", mcp.Description("Template name (see the templates list in the contract)")),
	), s.createPage)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Full-text search through page titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("ask_ai",
		mcp.WithDescription("Run a web-grounded AI search and append the quoted prompt and the "+
			"answer with its sources to a page."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Question to ask")),
		mcp.WithString("id", mcp.Description("Target page id; defaults to the current page")),
	), s.askAI)

	s.mcp.AddTool(mcp.NewTool("get_block_contract",
		mcp.WithDescription("Returns the Pagebook block format contract. "+
			"Call this before creating pages to ensure correct structure."),
	), s.getBlockContract)

	// Resource: block format contract.
	s.mcp.AddResource(
		mcp.NewResource(BlockFormatURI, "Block Format Contract",
			mcp.WithResourceDescription("How Markdown maps onto Pagebook blocks."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readBlockFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages := s.svc.ListPages(ctx, req.GetString("query", ""))
	if len(pages) == 0 {
		return mcp.NewToolResultText("no pages found"), nil
	}
	current := ""
	if cur, err := s.svc.CurrentPage(ctx); err == nil {
		current = cur.ID
	}
	lines := make([]string, len(pages))
	for i, p := range pages {
		mark := ""
		if p.ID == current {
			mark = "*"
		}
		lines[i] = mark + p.ID + "\t" + p.Title
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.pageID(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	body, _, err := s.svc.Export(ctx, id, req.GetString("format", export.FormatMarkdown))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *Server) createPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := pageservice.CreateInput{
		Markdown: req.GetString("markdown", ""),
		Template: req.GetString("template", ""),
	}
	page, err := s.svc.CreatePage(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%s)", page.ID, page.Title)), nil
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) askAI(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.pageID(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	res, err := s.svc.AskAI(ctx, id, prompt)
	if err != nil {
		return toolError(err), nil
	}
	if !res.Applied {
		return mcp.NewToolResultText("page was deleted before the answer arrived; result discarded"), nil
	}
	return mcp.NewToolResultText(res.Answer), nil
}

func (s *Server) getBlockContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.contract()), nil
}

func (s *Server) readBlockFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      BlockFormatURI,
			MIMEType: "text/markdown",
			Text:     s.contract(),
		},
	}, nil
}

// pageID returns the "id" argument or, when absent, the current page.
func (s *Server) pageID(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	if id := req.GetString("id", ""); id != "" {
		return id, nil
	}
	cur, err := s.svc.CurrentPage(ctx)
	if err != nil {
		return "", err
	}
	return cur.ID, nil
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("page not found")
	}
	return mcp.NewToolResultError(err.Error())
}
