package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"

	"newsgraph/internal/api"
)

type stubBackend struct {
	submitted  []api.ArticleRequest
	items      map[string]api.ItemStatus
	failLimit  int
	health     api.HealthResponse
	submitFail error
}

func (b *stubBackend) SubmitArticle(_ context.Context, req api.ArticleRequest) (api.SubmitResponse, error) {
	if b.submitFail != nil {
		return api.SubmitResponse{}, b.submitFail
	}
	b.submitted = append(b.submitted, req)
	return api.SubmitResponse{ItemID: req.ID, Status: "queued", RequestID: "req-1"}, nil
}

func (b *stubBackend) Item(_ context.Context, id string) (api.ItemStatus, error) {
	item, ok := b.items[id]
	if !ok {
		return api.ItemStatus{}, &api.Error{StatusCode: 404, Message: "item not found"}
	}
	return item, nil
}

func (b *stubBackend) Health(context.Context) (api.HealthResponse, error) {
	return b.health, nil
}

func (b *stubBackend) Failures(_ context.Context, limit int) ([]api.Failure, error) {
	b.failLimit = limit
	return []api.Failure{{ID: 3, ItemID: "a-3", Classification: "persistence_error"}}, nil
}

type toolResult struct {
	Text    string
	IsError bool
}

func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]any) toolResult {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	raw, err := json.Marshal(srv.HandleMessage(context.Background(), msg))
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, raw)
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	out := toolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			out.Text += c.Text
		}
	}
	return out
}

func TestSubmitArticleTool(t *testing.T) {
	backend := &stubBackend{}
	srv := NewServer(backend, "test")

	result := callTool(t, srv, "submit_article", map[string]any{
		"id":      "a-1",
		"text":    "The central bank raised rates.",
		"outlet":  "Wire",
		"country": " US ",
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Text)
	}
	var resp api.SubmitResponse
	if err := json.Unmarshal([]byte(result.Text), &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if resp.ItemID != "a-1" || resp.Status != "queued" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(backend.submitted) != 1 || backend.submitted[0].Source.Country != "US" || backend.submitted[0].Source.Outlet != "Wire" {
		t.Fatalf("unexpected submission: %+v", backend.submitted)
	}

	missing := callTool(t, srv, "submit_article", map[string]any{"headline": "no body"})
	if !missing.IsError {
		t.Fatal("expected error without text")
	}
}

func TestItemStatusTool(t *testing.T) {
	backend := &stubBackend{items: map[string]api.ItemStatus{
		"a-1": {ID: "a-1", Status: "failed", Classification: "extraction_parse_error"},
	}}
	srv := NewServer(backend, "")

	result := callTool(t, srv, "item_status", map[string]any{"id": "a-1"})
	if result.IsError || !strings.Contains(result.Text, "extraction_parse_error") {
		t.Fatalf("unexpected result: %+v", result)
	}
	unknown := callTool(t, srv, "item_status", map[string]any{"id": "zzz"})
	if !unknown.IsError || !strings.Contains(unknown.Text, "not found") {
		t.Fatalf("expected not found error, got %+v", unknown)
	}
}

func TestPipelineHealthTool(t *testing.T) {
	backend := &stubBackend{health: api.HealthResponse{Pipeline: api.PipelineHealth{Running: true, QueueDepth: 3}}}
	result := callTool(t, NewServer(backend, ""), "pipeline_health", nil)
	var health api.HealthResponse
	if err := json.Unmarshal([]byte(result.Text), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !health.Pipeline.Running || health.Pipeline.QueueDepth != 3 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestListFailuresToolClampsLimit(t *testing.T) {
	backend := &stubBackend{}
	srv := NewServer(backend, "")

	result := callTool(t, srv, "list_failures", map[string]any{"limit": 5000})
	if result.IsError || !strings.Contains(result.Text, "a-3") {
		t.Fatalf("unexpected result: %+v", result)
	}
	if backend.failLimit != maxFailureLimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxFailureLimit, backend.failLimit)
	}
	callTool(t, srv, "list_failures", nil)
	if backend.failLimit != defaultFailureLimit {
		t.Fatalf("expected default limit, got %d", backend.failLimit)
	}
}
