// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes picshelf catalog tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/picshelf/internal/catalog"
	"github.com/starford/picshelf/internal/models"
)

const grammarURI = "picshelf://filter-grammar"

// Server wraps the MCP server with catalog tools.
type Server struct {
	mcp *server.MCPServer
	svc *catalog.Service
}

// New creates a new MCP server with all catalog tools registered.
func New(svc *catalog.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"picshelf",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query_records",
		mcp.WithDescription("Query catalog records. Read the filter grammar first via "+
			"get_filter_grammar or the "+grammarURI+" resource. Unset arguments fall back to the configured defaults."),
		mcp.WithString("path", mcp.Description("Substring of the file path")),
		mcp.WithString("keywords", mcp.Description("Substring of the keywords")),
		mcp.WithString("used", mcp.Enum("any", "true", "false")),
		mcp.WithString("date_mode", mcp.Enum("none", "before", "after", "between")),
		mcp.WithString("from", mcp.Description("Date in YYYY.MM.DD")),
		mcp.WithString("to", mcp.Description("Date in YYYY.MM.DD")),
		mcp.WithString("combinator", mcp.Enum("AND", "OR")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (>= 1)")),
		mcp.WithString("order_by", mcp.Enum(columnNames()...)),
		mcp.WithString("direction", mcp.Enum("ASC", "DESC")),
	), s.queryRecords)

	s.mcp.AddTool(mcp.NewTool("get_filter_grammar",
		mcp.WithDescription("Returns the filter grammar accepted by query_records."),
	), s.getFilterGrammar)

	s.mcp.AddTool(mcp.NewTool("scan_folders",
		mcp.WithDescription("Register new image files found in folders. Existing records are never changed."),
		mcp.WithArray("folders", mcp.WithStringItems(),
			mcp.Description("Folders to scan (defaults to the configured folders)")),
	), s.scanFolders)

	s.mcp.AddTool(mcp.NewTool("set_keywords",
		mcp.WithDescription("Stage new keywords for a record. An empty string clears them. Call save_changes to persist."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute file path of the record")),
		mcp.WithString("keywords", mcp.Required(), mcp.Description("Comma separated keywords")),
	), s.setKeywords)

	s.mcp.AddTool(mcp.NewTool("set_used",
		mcp.WithDescription("Stage the used flag for records. Call save_changes to persist."),
		mcp.WithArray("paths", mcp.Required(), mcp.WithStringItems()),
		mcp.WithBoolean("used", mcp.Required()),
	), s.setUsed)

	s.mcp.AddTool(mcp.NewTool("pending_changes",
		mcp.WithDescription("List staged edits that have not been saved."),
	), s.pendingChanges)

	s.mcp.AddTool(mcp.NewTool("save_changes",
		mcp.WithDescription("Write every staged edit to the catalog."),
	), s.saveChanges)

	// Resource: filter grammar.
	s.mcp.AddResource(
		mcp.NewResource(grammarURI, "Filter Grammar",
			mcp.WithResourceDescription("Columns and filter arguments understood by query_records."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGrammarResource,
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

func columnNames() []string {
	out := make([]string, 0, len(models.Columns()))
	for _, c := range models.Columns() {
		out = append(out, string(c))
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func specFromRequest(req mcp.CallToolRequest, spec models.FilterSpec) models.FilterSpec {
	spec.PathContains = req.GetString("path", spec.PathContains)
	spec.KeywordsContains = req.GetString("keywords", spec.KeywordsContains)
	spec.Used = models.UsedFilter(strings.ToLower(req.GetString("used", string(spec.Used))))
	spec.Date.Mode = models.DateMode(strings.ToLower(req.GetString("date_mode", string(spec.Date.Mode))))
	spec.Date.From = req.GetString("from", spec.Date.From)
	spec.Date.To = req.GetString("to", spec.Date.To)
	spec.Combinator = models.Combinator(strings.ToUpper(req.GetString("combinator", string(spec.Combinator))))
	spec.Limit = req.GetInt("limit", spec.Limit)
	spec.OrderBy = req.GetString("order_by", spec.OrderBy)
	spec.Direction = models.Direction(strings.ToUpper(req.GetString("direction", string(spec.Direction))))
	return spec
}

func (s *Server) queryRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := s.svc.Query(ctx, specFromRequest(req, s.svc.DefaultSpec()))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if recs == nil {
		recs = []models.Record{}
	}
	return jsonResult(recs)
}

func (s *Server) getFilterGrammar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FilterGrammar), nil
}

func (s *Server) readGrammarResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      grammarURI,
			MIMEType: "text/markdown",
			Text:     FilterGrammar,
		},
	}, nil
}

func (s *Server) scanFolders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folders := req.GetStringSlice("folders", nil)
	if len(folders) == 0 {
		folders = s.svc.Folders()
	}
	if len(folders) == 0 {
		return mcp.NewToolResultError("no folders given and none configured"), nil
	}
	res := s.svc.ScanFolders(ctx, folders)
	return mcp.NewToolResultText(strings.Join(res.Report, "\n")), nil
}

func (s *Server) setKeywords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	keywords, err := req.RequireString("keywords")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.Get(ctx, path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.svc.EditKeywords(path, keywords)
	return mcp.NewToolResultText(fmt.Sprintf("staged keywords: %s", path)), nil
}

func (s *Server) setUsed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, err := req.RequireStringSlice("paths")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(paths) == 0 {
		return mcp.NewToolResultError("paths must not be empty"), nil
	}
	used, err := req.RequireBool("used")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.SetUsed(ctx, paths, used); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("staged used=%t for %d records", used, len(paths))), nil
}

func (s *Server) pendingChanges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	changes := s.svc.Pending()
	if len(changes) == 0 {
		return mcp.NewToolResultText("no pending changes"), nil
	}
	return jsonResult(changes)
}

func (s *Server) saveChanges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Save(ctx))
}
