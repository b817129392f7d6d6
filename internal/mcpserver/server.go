// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes ogfetch tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/starford/ogfetch/internal/apperr"
	"github.com/starford/ogfetch/internal/index"
	"github.com/starford/ogfetch/internal/ogservice"
	"github.com/starford/ogfetch/internal/scanner"
)

const formatURI = "ogfetch://frontmatter-format"

// Server wraps the MCP server with ogfetch tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *ogservice.Service
	scanner *scanner.Scanner
	history index.History
}

// New creates a new MCP server with all ogfetch tools registered.
// history may be nil; search_history then reports an error.
func New(svc *ogservice.Service, sc *scanner.Scanner, history index.History) *Server {
	s := &Server{svc: svc, scanner: sc, history: history}

	s.mcp = server.NewMCPServer(
		"ogfetch",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("fetch_metadata",
		mcp.WithDescription("Fetch OpenGraph metadata for the url in a document's frontmatter "+
			"and write it back into the frontmatter. Read the ogfetch://frontmatter-format "+
			"resource for the keys that are written."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. links/post.md)")),
		mcp.WithBoolean("overwrite", mcp.Description("Replace metadata values that are already present")),
		mcp.WithBoolean("force", mcp.Description("Ignore cached metadata for the url")),
	), s.fetchMetadata)

	s.mcp.AddTool(mcp.NewTool("scan_documents",
		mcp.WithDescription("List documents that carry a url, with the metadata fields each one is missing."),
		mcp.WithString("folder", mcp.Description("Optional folder to scan (empty for the whole vault)")),
	), s.scanDocuments)

	s.mcp.AddTool(mcp.NewTool("read_frontmatter",
		mcp.WithDescription("Read the parsed frontmatter of a document as JSON."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document")),
	), s.readFrontmatter)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Fetch metadata for a url and create a new document named after the page title."),
		mcp.WithString("folder", mcp.Description("Folder for the new document (empty for the vault root)")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page url to fetch")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("clear_cache",
		mcp.WithDescription("Drop cached metadata for one url, or for every url when none is given."),
		mcp.WithString("url", mcp.Description("Url to invalidate")),
	), s.clearCache)

	s.mcp.AddTool(mcp.NewTool("search_history",
		mcp.WithDescription("Search past fetch outcomes by path, url, title or error text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchHistory)

	// Resource: frontmatter format.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Frontmatter Format",
			mcp.WithResourceDescription("Frontmatter keys ogfetch reads and writes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

// toolError reports err to the model, prefixed with its stable code when it has one.
func toolError(err error) *mcp.CallToolResult {
	if code := apperr.Code(err); code != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", code, err.Error()))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) fetchMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()
	var opts ogservice.ProcessOptions
	if raw, ok := args["overwrite"]; ok {
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return mcp.NewToolResultError("overwrite: " + err.Error()), nil
		}
		opts.Overrides.OverwriteExisting = &v
	}
	if raw, ok := args["force"]; ok {
		opts.Force = cast.ToBool(raw)
	}

	res, err := s.svc.ProcessDocument(ctx, path, opts)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (s *Server) scanDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.scanner.Scan(req.GetString("folder", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("no documents with a url found"), nil
	}
	return jsonResult(docs)
}

func (s *Server) readFrontmatter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.svc.ReadFrontmatter(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return jsonResult(b.Map())
}

func (s *Server) createDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.CreateDocument(ctx, req.GetString("folder", ""), rawURL, ogservice.ProcessOptions{})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", res.Path)), nil
}

func (s *Server) clearCache(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u := req.GetString("url", "")
	s.svc.ClearCache(u)
	if u == "" {
		return mcp.NewToolResultText("cache cleared"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("cache cleared: %s", u)), nil
}

func (s *Server) searchHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.history == nil {
		return mcp.NewToolResultError("fetch history is disabled"), nil
	}
	rows, err := s.history.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rows)
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     FrontmatterFormat,
		},
	}, nil
}
