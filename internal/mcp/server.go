// Package mcp exposes vectable tables to Model Context Protocol clients.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helixml/vectable"
	"github.com/helixml/vectable/domain/search"
	"github.com/helixml/vectable/infrastructure/api/jsonapi"
)

// Server wraps the MCP server with table tools.
type Server struct {
	mcpServer *server.MCPServer
	conn      *vectable.Connection
	logger    *slog.Logger
}

// NewServer creates an MCP server answering from conn.
func NewServer(conn *vectable.Connection, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{conn: conn, logger: logger}

	mcpServer := server.NewMCPServer(
		"vectable",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("list_tables",
		mcp.WithDescription("List the names of the stored tables"),
	), s.handleListTables)

	mcpServer.AddTool(mcp.NewTool("list_functions",
		mcp.WithDescription("List the registered embedding functions"),
	), s.handleListFunctions)

	mcpServer.AddTool(mcp.NewTool("describe_table",
		mcp.WithDescription("Show a table's columns, embedding definitions, version and row count"),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name"),
		),
	), s.handleDescribeTable)

	mcpServer.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Find the rows nearest to a text query or a vector, nearest first"),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table to search"),
		),
		mcp.WithString("query",
			mcp.Description("Text embedded with the searched column's embedding function"),
		),
		mcp.WithArray("vector",
			mcp.Description("A query vector, used instead of query"),
			mcp.Items(map[string]any{"type": "number"}),
		),
		mcp.WithString("column",
			mcp.Description("Vector column to search (default: the first embedding destination)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of rows to return"),
		),
		mcp.WithString("metric",
			mcp.Description("Distance metric"),
			mcp.Enum(string(search.MetricCosine), string(search.MetricL2), string(search.MetricDot)),
		),
		mcp.WithArray("select",
			mcp.Description("Columns to return; the distance column is always included"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), s.handleSearch)
}

func (s *Server) handleListTables(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.conn.TableNames(ctx)
	if err != nil {
		s.logger.Error("failed to list tables", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("list tables: %v", err)), nil
	}
	if names == nil {
		names = []string{}
	}
	return jsonResult(names)
}

func (s *Server) handleListFunctions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.conn.EmbeddingRegistry().Names())
}

func (s *Server) handleDescribeTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("table")
	if err != nil {
		return mcp.NewToolResultError("table is required"), nil
	}

	t, err := s.conn.OpenTable(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open table: %v", err)), nil
	}
	meta, err := t.Metadata(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("describe table: %v", err)), nil
	}
	return jsonResult(jsonapi.TableResource(meta).Attributes)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("table")
	if err != nil {
		return mcp.NewToolResultError("table is required"), nil
	}

	var query any
	if vector := request.GetFloatSlice("vector", nil); len(vector) > 0 {
		query = vector
	} else if text := request.GetString("query", ""); text != "" {
		query = text
	} else {
		return mcp.NewToolResultError("query or vector is required"), nil
	}

	metric, err := search.ParseMetric(request.GetString("metric", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t, err := s.conn.OpenTable(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open table: %v", err)), nil
	}
	result, err := t.Search(query).
		Column(request.GetString("column", "")).
		Limit(request.GetInt("limit", 0)).
		Metric(metric).
		Select(request.GetStringSlice("select", nil)...).
		Execute(ctx)
	if err != nil {
		s.logger.Error("search failed", slog.String("table", name), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	defer result.Release()

	rows, err := result.MarshalJSON()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(rows)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
