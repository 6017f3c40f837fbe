package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/tools"
)

// Client is a connection to a single MCP server.
type Client struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession

	mu        sync.Mutex
	endpoints []tools.Endpoint
	listed    bool
}

// NewClient creates a Client for the given server. Call Connect to
// establish the session.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.cfg.Name }

// Connect performs the MCP handshake over a transport built from the
// server configuration.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport performs the MCP handshake over transport. If
// transport is nil, one is created from the server configuration.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{Name: "convlog", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

func (c *Client) createTransport() (mcp.Transport, error) {
	var httpClient *http.Client
	if len(c.cfg.Headers) > 0 {
		httpClient = &http.Client{
			Transport: &headerTransport{base: http.DefaultTransport, headers: c.cfg.Headers},
		}
	}

	switch c.cfg.Transport {
	case "sse":
		return &mcp.SSEClientTransport{Endpoint: c.cfg.URL, HTTPClient: httpClient}, nil
	case "streamable-http", "":
		return &mcp.StreamableClientTransport{Endpoint: c.cfg.URL, HTTPClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// headerTransport adds static headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// Endpoints lists the server's tools. The result is cached after the
// first successful call.
func (c *Client) Endpoints(ctx context.Context) ([]tools.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listed {
		return c.endpoints, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var endpoints []tools.Endpoint
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		ep, err := c.endpoint(tool)
		if err != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, err)
		}
		endpoints = append(endpoints, ep)
	}

	c.endpoints = endpoints
	c.listed = true
	return endpoints, nil
}

// CallTool executes a tool call on the server. Protocol failures are
// reported in the result's Error field.
func (c *Client) CallTool(ctx context.Context, call *api.ToolCall) (*api.ToolResult, error) {
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      call.Name,
		Arguments: call.Args,
	})
	if err != nil {
		return &api.ToolResult{ID: call.ID, Error: fmt.Sprintf("MCP tool call error: %v", err)}, nil
	}
	return convertResult(call.ID, result), nil
}

// Close closes the MCP session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) endpoint(t *mcp.Tool) (tools.Endpoint, error) {
	ep := tools.Endpoint{
		Name:        t.Name,
		Description: t.Description,
		Server:      c.cfg.Name,
	}
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return tools.Endpoint{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		ep.InputSchema = data
	}
	return ep, nil
}

// convertResult prefers structured content; otherwise the text blocks are
// joined with newlines. An error result carries its text in Error.
func convertResult(callID string, result *mcp.CallToolResult) *api.ToolResult {
	var texts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if result.IsError {
		return &api.ToolResult{ID: callID, Error: text}
	}
	if result.StructuredContent != nil {
		return &api.ToolResult{ID: callID, Output: result.StructuredContent}
	}
	return &api.ToolResult{ID: callID, Output: text}
}
