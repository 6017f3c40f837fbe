package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/tools"
)

// setupTestServer creates a test MCP server with tools and connects a
// client to it via in-memory transports.
func setupTestServer(t *testing.T, name string, serverTools map[string]mcp.ToolHandler) *Client {
	t.Helper()

	server := mcp.NewServer(
		&mcp.Implementation{Name: name, Version: "1.0.0"},
		nil,
	)
	for toolName, handler := range serverTools {
		server.AddTool(
			&mcp.Tool{
				Name:        toolName,
				Description: "Test tool: " + toolName,
				InputSchema: map[string]any{"type": "object"},
			},
			handler,
		)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := NewClient(ServerConfig{Name: name})
	if err := client.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func textHandler(text string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

func resolved(t *testing.T, clients ...*Client) (*Executor, []tools.Endpoint) {
	t.Helper()
	executor := NewExecutor(clients...)
	endpoints, err := executor.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return executor, endpoints
}

func TestExecutor_ResolveEndpoints(t *testing.T) {
	client := setupTestServer(t, "test-server", map[string]mcp.ToolHandler{
		"get_weather": textHandler("sunny"),
		"get_time":    textHandler("12:00"),
	})

	executor, endpoints := resolved(t, client)

	if len(endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(endpoints))
	}
	if endpoints[0].Name != "get_time" || endpoints[1].Name != "get_weather" {
		t.Errorf("endpoints not sorted by name: %q, %q", endpoints[0].Name, endpoints[1].Name)
	}
	for _, ep := range endpoints {
		if ep.Server != "test-server" {
			t.Errorf("Server = %q, want %q", ep.Server, "test-server")
		}
		var schema map[string]any
		if err := json.Unmarshal(ep.InputSchema, &schema); err != nil || schema["type"] != "object" {
			t.Errorf("InputSchema = %s", ep.InputSchema)
		}
	}

	again, err := executor.Resolve(context.Background())
	if err != nil || len(again) != len(endpoints) {
		t.Errorf("cached Resolve = %d endpoints, err %v", len(again), err)
	}
}

func TestExecutor_CanExecute(t *testing.T) {
	client := setupTestServer(t, "test-server", map[string]mcp.ToolHandler{
		"available_tool": textHandler("ok"),
	})

	executor := NewExecutor(client)
	if executor.CanExecute("available_tool") {
		t.Error("CanExecute should be false before Resolve")
	}
	if _, err := executor.Resolve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !executor.CanExecute("available_tool") {
		t.Error("CanExecute should return true for resolved tool")
	}
	if executor.CanExecute("unknown_tool") {
		t.Error("CanExecute should return false for unknown tool")
	}
}

func TestExecutor_CallTool(t *testing.T) {
	client := setupTestServer(t, "test-server", map[string]mcp.ToolHandler{
		"greet": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "Hello, " + args.Name + "!"}},
			}, nil
		},
	})
	executor, _ := resolved(t, client)

	result, err := executor.Execute(context.Background(), &api.ToolCall{
		ID:   "call_123",
		Name: "greet",
		Args: map[string]any{"name": "World"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.ID != "call_123" {
		t.Errorf("ID = %q, want %q", result.ID, "call_123")
	}
	if result.Output != "Hello, World!" {
		t.Errorf("Output = %v, want %q", result.Output, "Hello, World!")
	}
	if result.Error != "" {
		t.Errorf("Error = %q, want empty", result.Error)
	}
}

func TestExecutor_MultiServer(t *testing.T) {
	clientA := setupTestServer(t, "server-a", map[string]mcp.ToolHandler{
		"tool_a": textHandler("from server A"),
		"shared": textHandler("shared from A"),
	})
	clientB := setupTestServer(t, "server-b", map[string]mcp.ToolHandler{
		"tool_b": textHandler("from server B"),
		"shared": textHandler("shared from B"),
	})
	executor, endpoints := resolved(t, clientB, clientA)

	if len(endpoints) != 3 {
		t.Fatalf("expected 3 endpoints after dedup, got %d", len(endpoints))
	}

	tests := []struct {
		tool, want string
	}{
		{"tool_a", "from server A"},
		{"tool_b", "from server B"},
		{"shared", "shared from A"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			res, err := executor.Execute(context.Background(), &api.ToolCall{ID: "c_" + tt.tool, Name: tt.tool})
			if err != nil {
				t.Fatal(err)
			}
			if res.Output != tt.want {
				t.Errorf("Output = %v, want %q", res.Output, tt.want)
			}
		})
	}
}

func TestExecutor_ToolCallError(t *testing.T) {
	client := setupTestServer(t, "test-server", map[string]mcp.ToolHandler{
		"failing_tool": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "something went wrong"}},
				IsError: true,
			}, nil
		},
	})
	executor, _ := resolved(t, client)

	result, err := executor.Execute(context.Background(), &api.ToolCall{ID: "call_err", Name: "failing_tool"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Error != "something went wrong" {
		t.Errorf("Error = %q, want %q", result.Error, "something went wrong")
	}
}

func TestExecutor_UnknownTool(t *testing.T) {
	client := setupTestServer(t, "test-server", map[string]mcp.ToolHandler{
		"known_tool": textHandler("ok"),
	})
	executor, _ := resolved(t, client)

	result, err := executor.Execute(context.Background(), &api.ToolCall{ID: "call_unknown", Name: "nonexistent_tool"})
	if err != nil {
		t.Fatalf("Execute failed with unexpected error: %v", err)
	}
	if result.Error == "" {
		t.Error("expected an error result for unknown tool")
	}
}

func TestExecutor_WithExecuteAll(t *testing.T) {
	client := setupTestServer(t, "test-server", map[string]mcp.ToolHandler{
		"echo": textHandler("echoed"),
	})
	executor, _ := resolved(t, client)

	results := tools.ExecuteAll(context.Background(), []tools.Executor{executor},
		[]*api.ToolCall{{ID: "c1", Name: "echo"}, {ID: "c2", Name: "echo"}}, 0)
	for i, r := range results {
		if r.Output != "echoed" {
			t.Errorf("results[%d].Output = %v", i, r.Output)
		}
	}
}

func TestDialRejectsUnknownTransport(t *testing.T) {
	_, err := Dial(context.Background(), []ServerConfig{{Name: "bad", Transport: "carrier-pigeon", URL: "http://x"}})
	if err == nil {
		t.Fatal("Dial should fail for an unsupported transport")
	}
}
