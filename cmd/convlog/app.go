package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rhuss/convlog/pkg/branch"
	"github.com/rhuss/convlog/pkg/config"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/engine"
	"github.com/rhuss/convlog/pkg/observability"
	"github.com/rhuss/convlog/pkg/ordering"
	"github.com/rhuss/convlog/pkg/provider/builtin"
	"github.com/rhuss/convlog/pkg/storage"
	"github.com/rhuss/convlog/pkg/storage/memory"
	"github.com/rhuss/convlog/pkg/storage/postgres"
	"github.com/rhuss/convlog/pkg/storage/sqlite"
	"github.com/rhuss/convlog/pkg/tools"
	"github.com/rhuss/convlog/pkg/tools/mcp"
)

// app holds what a command needs. Close releases all of it.
type app struct {
	cfg   *config.Config
	store storage.EventStore
	svc   *engine.Service
	mcp   *mcp.Executor

	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

// openApp loads configuration and builds the service. With withTools the
// configured MCP servers are dialed and their tools resolved.
func openApp(ctx context.Context, withTools bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debugCats != "" {
		cfg.Logging.Debug = debugCats
	}
	if metricsAddr != "" {
		cfg.Observability.Metrics.Addr = metricsAddr
	}
	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})
	debug.Log(debug.Config, "configuration loaded",
		"storage", cfg.Storage.Type,
		"provider", cfg.Provider.Name,
		"mcp_servers", len(cfg.MCP.Servers),
	)

	a := &app{cfg: cfg}
	a.startMetrics(ctx)

	a.store, err = openStore(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}

	var executors []tools.Executor
	if withTools && len(cfg.MCP.Servers) > 0 {
		a.mcp, err = mcp.Dial(ctx, mcpServers(cfg.MCP.Servers))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting MCP servers: %w", err)
		}
		if _, err := a.mcp.Resolve(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("resolving MCP tools: %w", err)
		}
		executors = append(executors, a.mcp)
	}

	a.svc, err = engine.New(a.store, builtin.Registry(), engine.Config{
		Ordering:     ordering.Config{MaxAttempts: cfg.Ordering.MaxAttempts},
		Branch:       branch.Config{CopyBatchSize: cfg.Branch.CopyBatchSize},
		Executors:    executors,
		AllowedTools: cfg.Tools.Allowed,
		ToolLimit:    cfg.Tools.Limit,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) startMetrics(ctx context.Context) {
	addr := a.cfg.Observability.Metrics.Addr
	if addr == "" {
		return
	}
	mctx, cancel := context.WithCancel(ctx)
	a.stopMetrics = cancel
	a.metricsDone = make(chan struct{})
	go func() {
		defer close(a.metricsDone)
		if err := observability.Serve(mctx, addr, a.cfg.Observability.Metrics.Path); err != nil {
			slog.Warn("metrics endpoint stopped", "addr", addr, "error", err)
		}
	}()
}

// Close releases the store, MCP connections and the metrics endpoint.
func (a *app) Close() {
	if a.mcp != nil {
		if err := a.mcp.Close(); err != nil {
			slog.Warn("closing MCP clients", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
		<-a.metricsDone
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.EventStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(cfg.MaxSize), nil
	case "sqlite":
		s, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MigrateOnStart:  cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

func mcpServers(in []config.MCPServerConfig) []mcp.ServerConfig {
	out := make([]mcp.ServerConfig, len(in))
	for i, s := range in {
		out[i] = mcp.ServerConfig{
			Name:      s.Name,
			Transport: s.Transport,
			URL:       s.URL,
			Headers:   s.Headers,
		}
	}
	return out
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads a named file, or stdin for "-" or no name.
func readInput(args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, err
	}
	return f, nil
}
