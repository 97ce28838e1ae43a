package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/picshelf/internal/catalog"
	"github.com/starford/picshelf/internal/models"
	"github.com/starford/picshelf/internal/storage"
	"github.com/starford/picshelf/internal/testutil"
)

func testServer(t *testing.T) (*Server, *catalog.Service, string) {
	t.Helper()

	dir := t.TempDir()
	svc := catalog.NewService(testutil.TestDB(t), storage.NewFS(),
		catalog.WithLogger(testutil.DiscardLogger()),
		catalog.WithFolders([]string{dir}, nil),
	)
	return New(svc, "test"), svc, dir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" helper, so handlers are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "query_records":
		result, err = srv.queryRecords(ctx, req)
	case "get_filter_grammar":
		result, err = srv.getFilterGrammar(ctx, req)
	case "scan_folders":
		result, err = srv.scanFolders(ctx, req)
	case "set_keywords":
		result, err = srv.setKeywords(ctx, req)
	case "set_used":
		result, err = srv.setUsed(ctx, req)
	case "pending_changes":
		result, err = srv.pendingChanges(ctx, req)
	case "save_changes":
		result, err = srv.saveChanges(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestScanAndQuery(t *testing.T) {
	srv, _, dir := testServer(t)
	testutil.WriteImages(t, dir, "b.jpg", "a.jpg")

	r := callTool(t, srv, "scan_folders", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("scan error: %s", resultText(r))
	}
	if !strings.HasSuffix(resultText(r), "Scan finished. New files added: 2") {
		t.Errorf("scan report = %q", resultText(r))
	}

	r = callTool(t, srv, "query_records", map[string]interface{}{"limit": 10})
	var recs []models.Record
	if err := json.Unmarshal([]byte(resultText(r)), &recs); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if len(recs) != 2 || filepath.Base(recs[0].Path) != "a.jpg" {
		t.Errorf("records = %+v", recs)
	}
}

func TestQueryRecordsInvalidSpec(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "query_records", map[string]interface{}{"order_by": "secret"})
	if !r.IsError {
		t.Error("expected error for unknown sort column")
	}
	r = callTool(t, srv, "query_records", map[string]interface{}{"limit": 0})
	if !r.IsError {
		t.Error("expected error for zero limit")
	}
}

func TestQueryRecordsEmpty(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "query_records", map[string]interface{}{"keywords": "nothing"})
	if r.IsError || resultText(r) != "[]" {
		t.Errorf("empty query = %q", resultText(r))
	}
}

func TestSetKeywordsAndSave(t *testing.T) {
	srv, svc, dir := testServer(t)
	paths := testutil.WriteImages(t, dir, "cat.jpg")
	svc.Scan(context.Background())

	r := callTool(t, srv, "set_keywords", map[string]interface{}{
		"path":     paths[0],
		"keywords": "cat, sofa",
	})
	if r.IsError {
		t.Fatalf("set_keywords: %s", resultText(r))
	}

	r = callTool(t, srv, "pending_changes", map[string]interface{}{})
	if !strings.Contains(resultText(r), "cat, sofa") {
		t.Errorf("pending = %q", resultText(r))
	}

	r = callTool(t, srv, "save_changes", map[string]interface{}{})
	var res catalog.SaveResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Succeeded != 1 {
		t.Errorf("save = %+v", res)
	}

	r = callTool(t, srv, "query_records", map[string]interface{}{"keywords": "sofa"})
	if !strings.Contains(resultText(r), "cat.jpg") {
		t.Errorf("query after save = %q", resultText(r))
	}
	r = callTool(t, srv, "pending_changes", map[string]interface{}{})
	if resultText(r) != "no pending changes" {
		t.Errorf("pending after save = %q", resultText(r))
	}
}

func TestSetKeywordsUnknownRecord(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "set_keywords", map[string]interface{}{
		"path":     "/nope.jpg",
		"keywords": "x",
	})
	if !r.IsError {
		t.Error("expected error for unknown record")
	}
}

func TestSetUsed(t *testing.T) {
	srv, svc, dir := testServer(t)
	paths := testutil.WriteImages(t, dir, "a.jpg", "b.jpg")
	svc.Scan(context.Background())

	r := callTool(t, srv, "set_used", map[string]interface{}{
		"paths": []interface{}{paths[0], paths[1]},
		"used":  true,
	})
	if r.IsError {
		t.Fatalf("set_used: %s", resultText(r))
	}
	if got := len(svc.Pending()); got != 4 {
		t.Errorf("pending changes = %d, want 4", got)
	}

	r = callTool(t, srv, "set_used", map[string]interface{}{"paths": []interface{}{}, "used": true})
	if !r.IsError {
		t.Error("expected error for empty paths")
	}
}

func TestSetUsedUnknownRecord(t *testing.T) {
	srv, svc, dir := testServer(t)
	paths := testutil.WriteImages(t, dir, "a.jpg")
	svc.Scan(context.Background())

	r := callTool(t, srv, "set_used", map[string]interface{}{
		"paths": []interface{}{paths[0], "/nope.jpg"},
		"used":  true,
	})
	if !r.IsError {
		t.Error("expected error for unknown record")
	}
	if got := len(svc.Pending()); got != 0 {
		t.Errorf("pending changes = %d, want 0", got)
	}
}

func TestFilterGrammar(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "get_filter_grammar", map[string]interface{}{})
	if !strings.Contains(resultText(r), "date_mode") {
		t.Error("grammar missing date_mode")
	}

	contents, err := srv.readGrammarResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != grammarURI {
		t.Errorf("resource = %+v", contents[0])
	}
}
