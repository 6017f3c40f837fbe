package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/tools"
)

// Executor implements tools.Executor for MCP server tools. It routes each
// call to the server that listed the tool.
type Executor struct {
	mu sync.RWMutex

	// clients maps server name to Client.
	clients map[string]*Client

	// toolToServer maps tool name to the server name that provides it.
	toolToServer map[string]string

	endpoints []tools.Endpoint
	resolved  bool
}

// Ensure Executor implements tools.Executor at compile time.
var _ tools.Executor = (*Executor)(nil)

// NewExecutor creates an Executor over already connected clients.
func NewExecutor(clients ...*Client) *Executor {
	m := make(map[string]*Client, len(clients))
	for _, c := range clients {
		m[c.Name()] = c
	}
	return &Executor{
		clients:      m,
		toolToServer: make(map[string]string),
	}
}

// Dial connects to every configured server concurrently. If any connection
// fails, the ones that succeeded are closed and the errors are joined.
func Dial(ctx context.Context, servers []ServerConfig) (*Executor, error) {
	clients := make([]*Client, len(servers))
	errs := make([]error, len(servers))

	var g errgroup.Group
	for i, cfg := range servers {
		g.Go(func() error {
			c := NewClient(cfg)
			if err := c.Connect(ctx); err != nil {
				errs[i] = err
				return nil
			}
			clients[i] = c
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		for _, c := range clients {
			if c != nil {
				_ = c.Close()
			}
		}
		return nil, err
	}
	return NewExecutor(clients...), nil
}

// Resolve lists the tools of every server concurrently and returns the
// combined endpoints sorted by name. When two servers offer the same tool
// name, the server that sorts first wins and the duplicate is logged.
// The result is cached; a server that fails to list makes Resolve fail.
func (e *Executor) Resolve(ctx context.Context) ([]tools.Endpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resolved {
		return e.endpoints, nil
	}

	names := make([]string, 0, len(e.clients))
	for name := range e.clients {
		names = append(names, name)
	}
	sort.Strings(names)

	listed := make([][]tools.Endpoint, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		client := e.clients[name]
		g.Go(func() error {
			eps, err := client.Endpoints(gctx)
			if err != nil {
				return err
			}
			listed[i] = eps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving MCP tools: %w", err)
	}

	var endpoints []tools.Endpoint
	for i, eps := range listed {
		for _, ep := range eps {
			if owner, exists := e.toolToServer[ep.Name]; exists {
				slog.Warn("duplicate MCP tool name, using first provider",
					"tool", ep.Name,
					"server", names[i],
					"kept", owner,
				)
				continue
			}
			e.toolToServer[ep.Name] = names[i]
			endpoints = append(endpoints, ep)
		}
		debug.Log(debug.Tools, "resolved MCP tools", "server", names[i], "count", len(eps))
	}
	sort.Slice(endpoints, func(a, b int) bool { return endpoints[a].Name < endpoints[b].Name })

	e.endpoints = endpoints
	e.resolved = true
	return endpoints, nil
}

// CanExecute reports whether a resolved server provides the named tool.
// Call Resolve first; before that no tool is known.
func (e *Executor) CanExecute(toolName string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.toolToServer[toolName]
	return ok
}

// Execute routes the tool call to the server that provides it.
func (e *Executor) Execute(ctx context.Context, call *api.ToolCall) (*api.ToolResult, error) {
	e.mu.RLock()
	serverName, ok := e.toolToServer[call.Name]
	client := e.clients[serverName]
	e.mu.RUnlock()

	if !ok {
		return &api.ToolResult{
			ID:    call.ID,
			Error: fmt.Sprintf("no MCP server provides tool %q", call.Name),
		}, nil
	}
	return client.CallTool(ctx, call)
}

// Close closes all client connections.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, client := range e.clients {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close MCP client", "server", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
