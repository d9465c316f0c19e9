package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/vectable"
	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/infrastructure/api/jsonapi"
	"github.com/helixml/vectable/infrastructure/provider"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	conn, err := vectable.Connect(
		vectable.WithSQLite(filepath.Join(t.TempDir(), "vectable.db")),
		vectable.WithBuiltins(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "text", Type: arrow.BinaryTypes.String},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"apple pie", "beef stew", "apple crumble"}, nil)
	rec := b.NewRecord()
	defer rec.Release()

	def := vectable.NewEmbeddingDefinition("text", provider.HashName, "vector").WithParams(embedding.Params{"dim": 64})
	builder, err := conn.CreateTable("recipes", schema).Data(rec).AddEmbedding(def)
	require.NoError(t, err)
	_, err = builder.Execute(ctx)
	require.NoError(t, err)

	return NewServer(conn, "test", nil)
}

// sendMessage marshals a JSON-RPC request, sends it through HandleMessage,
// and returns the JSONRPCResponse.
func sendMessage(t *testing.T, srv *Server, method string, id int, params map[string]any) mcp.JSONRPCResponse {
	t.Helper()

	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	result := srv.MCPServer().HandleMessage(context.Background(), raw)
	resp, ok := result.(mcp.JSONRPCResponse)
	require.True(t, ok, "expected JSONRPCResponse, got %T: %+v", result, result)
	return resp
}

// resultJSON re-marshals the Result field through JSON into dst.
func resultJSON(t *testing.T, resp mcp.JSONRPCResponse, dst any) {
	t.Helper()
	b, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, dst))
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "0.0.1",
		},
	}
}

// callTool initializes the session, calls the named tool and returns the
// result.
func callTool(t *testing.T, srv *Server, name string, args map[string]any) mcp.CallToolResult {
	t.Helper()
	sendMessage(t, srv, "initialize", 1, initializeParams())

	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	resp := sendMessage(t, srv, "tools/call", 2, params)

	var result mcp.CallToolResult
	resultJSON(t, resp, &result)
	return result
}

// textFromContent extracts the text of the first content item. It
// round-trips through JSON because in-process responses may hold the content
// as a map rather than a typed struct.
func textFromContent(t *testing.T, result mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "no content in result")
	b, err := json.Marshal(result.Content[0])
	require.NoError(t, err)
	var tc struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(b, &tc))
	return tc.Text
}

func TestServer_Initialize(t *testing.T) {
	srv := testServer(t)
	resp := sendMessage(t, srv, "initialize", 1, initializeParams())

	var result mcp.InitializeResult
	resultJSON(t, resp, &result)
	assert.Equal(t, "vectable", result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
}

func TestServer_ListTools(t *testing.T) {
	srv := testServer(t)
	sendMessage(t, srv, "initialize", 1, initializeParams())
	resp := sendMessage(t, srv, "tools/list", 2, nil)

	var result mcp.ListToolsResult
	resultJSON(t, resp, &result)

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"list_tables", "list_functions", "describe_table", "search"}, names)
}

func TestServer_ListTables(t *testing.T) {
	srv := testServer(t)
	result := callTool(t, srv, "list_tables", nil)
	require.False(t, result.IsError)

	var names []string
	require.NoError(t, json.Unmarshal([]byte(textFromContent(t, result)), &names))
	assert.Equal(t, []string{"recipes"}, names)
}

func TestServer_ListFunctions(t *testing.T) {
	srv := testServer(t)
	result := callTool(t, srv, "list_functions", nil)
	require.False(t, result.IsError)

	var names []string
	require.NoError(t, json.Unmarshal([]byte(textFromContent(t, result)), &names))
	assert.Equal(t, []string{"hash", "openai", "sentence-transformers"}, names)
}

func TestServer_DescribeTable(t *testing.T) {
	srv := testServer(t)
	result := callTool(t, srv, "describe_table", map[string]any{"table": "recipes"})
	require.False(t, result.IsError, textFromContent(t, result))

	var attrs jsonapi.TableAttributes
	require.NoError(t, json.Unmarshal([]byte(textFromContent(t, result)), &attrs))
	assert.Equal(t, "recipes", attrs.Name)
	assert.Equal(t, int64(3), attrs.Rows)
	require.Len(t, attrs.Definitions, 1)
	assert.Equal(t, "vector", attrs.Definitions[0].DestColumn)

	missing := callTool(t, srv, "describe_table", map[string]any{"table": "nope"})
	assert.True(t, missing.IsError)
}

func TestServer_SearchText(t *testing.T) {
	srv := testServer(t)
	result := callTool(t, srv, "search", map[string]any{
		"table":  "recipes",
		"query":  "apple pie",
		"limit":  2,
		"select": []string{"text"},
	})
	require.False(t, result.IsError, textFromContent(t, result))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(textFromContent(t, result)), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "apple pie", rows[0]["text"])
	assert.Equal(t, "apple crumble", rows[1]["text"])
	assert.Contains(t, rows[0], vectable.DistanceColumn)
	assert.NotContains(t, rows[0], "id")
}

func TestServer_SearchErrors(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing table argument", map[string]any{"query": "x"}},
		{"missing query", map[string]any{"table": "recipes"}},
		{"unknown table", map[string]any{"table": "nope", "query": "x"}},
		{"unknown metric", map[string]any{"table": "recipes", "query": "x", "metric": "manhattan"}},
		{"wrong vector size", map[string]any{"table": "recipes", "vector": []float64{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, srv, "search", tt.args)
			assert.True(t, result.IsError)
		})
	}
}
