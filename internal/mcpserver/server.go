// Package mcpserver exposes the newsgraph daemon as Model Context Protocol
// tools over stdio. Every tool is a thin call through the daemon HTTP API.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"newsgraph/internal/api"
)

const (
	defaultFailureLimit = 20
	maxFailureLimit     = 200
)

// Backend is the subset of the daemon API the tools use.
type Backend interface {
	SubmitArticle(ctx context.Context, req api.ArticleRequest) (api.SubmitResponse, error)
	Item(ctx context.Context, id string) (api.ItemStatus, error)
	Health(ctx context.Context) (api.HealthResponse, error)
	Failures(ctx context.Context, limit int) ([]api.Failure, error)
}

// NewServer creates an MCP server with the newsgraph tools registered.
func NewServer(backend Backend, version string) *server.MCPServer {
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer("newsgraph", version, server.WithToolCapabilities(false))
	registerSubmitTool(s, backend)
	registerStatusTool(s, backend)
	registerHealthTool(s, backend)
	registerFailuresTool(s, backend)
	return s
}

// ServeStdio serves s on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func registerSubmitTool(s *server.MCPServer, backend Backend) {
	tool := mcp.NewTool("submit_article",
		mcp.WithDescription("Submit a news article for knowledge extraction. Returns the item id to poll with item_status."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Article body as plain text"),
		),
		mcp.WithString("id",
			mcp.Description("Item id. Generated when empty."),
		),
		mcp.WithString("headline", mcp.Description("Article headline")),
		mcp.WithString("url", mcp.Description("Absolute source URL")),
		mcp.WithString("outlet", mcp.Description("Publishing outlet name")),
		mcp.WithString("country", mcp.Description("Outlet country code")),
		mcp.WithString("language", mcp.Description("ISO 639-1 language hint")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("text is required"), nil
		}
		article := api.ArticleRequest{
			ID:       optionalString(req, "id"),
			Headline: optionalString(req, "headline"),
			Text:     text,
			Source: api.Source{
				URL:      optionalString(req, "url"),
				Outlet:   optionalString(req, "outlet"),
				Country:  optionalString(req, "country"),
				Language: optionalString(req, "language"),
			},
		}
		resp, err := backend.SubmitArticle(ctx, article)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("submit failed: %v", err)), nil
		}
		return jsonResult(resp)
	})
}

func registerStatusTool(s *server.MCPServer, backend Backend) {
	tool := mcp.NewTool("item_status",
		mcp.WithDescription("Get the processing status of a submitted item, including failure classification and warnings."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Item id returned by submit_article"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcp.NewToolResultError("id is required"), nil
		}
		item, err := backend.Item(ctx, strings.TrimSpace(id))
		if err != nil {
			if api.IsNotFound(err) {
				return mcp.NewToolResultError(fmt.Sprintf("item %s not found", id)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("status lookup failed: %v", err)), nil
		}
		return jsonResult(item)
	})
}

func registerHealthTool(s *server.MCPServer, backend Backend) {
	tool := mcp.NewTool("pipeline_health",
		mcp.WithDescription("Get pipeline health: queue depth, worker utilization, outcome totals, per-phase error counts and service readiness."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		health, err := backend.Health(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("health failed: %v", err)), nil
		}
		return jsonResult(health)
	})
}

func registerFailuresTool(s *server.MCPServer, backend Backend) {
	tool := mcp.NewTool("list_failures",
		mcp.WithDescription("List items whose processing failed permanently and were stored for retry, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of failures (default: %d, max: %d)", defaultFailureLimit, maxFailureLimit)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := defaultFailureLimit
		if value, err := req.RequireFloat("limit"); err == nil && value > 0 {
			limit = min(int(value), maxFailureLimit)
		}
		failures, err := backend.Failures(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failures failed: %v", err)), nil
		}
		return jsonResult(api.FailureListResponse{Failures: failures})
	})
}

func optionalString(req mcp.CallToolRequest, key string) string {
	value, err := req.RequireString(key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
