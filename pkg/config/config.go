// Package config provides unified configuration for convlog.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CONVLOG_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for convlog.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Ordering      OrderingConfig      `yaml:"ordering"`
	Branch        BranchConfig        `yaml:"branch"`
	Provider      ProviderConfig      `yaml:"provider"`
	MCP           MCPConfig           `yaml:"mcp"`
	Tools         ToolsConfig         `yaml:"tools"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig selects and configures the event store.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "sqlite", default: "sqlite"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"`          // _file variant for dsn
	MaxConns        int32         `yaml:"max_conns"`         // default: 25
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"` // default: 5m
	MigrateOnStart  bool          `yaml:"migrate_on_start"`  // default: false
}

// SQLiteConfig holds settings for the single-file store.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: "convlog.db"
}

// OrderingConfig tunes order-key assignment.
type OrderingConfig struct {
	MaxAttempts int `yaml:"max_attempts"` // default: 5
}

// BranchConfig tunes conversation branching.
type BranchConfig struct {
	CopyBatchSize int `yaml:"copy_batch_size"` // default: 100
}

// ProviderConfig describes the provider used for import and export.
type ProviderConfig struct {
	Name            string `yaml:"name"`             // "openai", "openai-chat" or "anthropic", default: "openai"
	Model           string `yaml:"model"`            // required for export
	MaxTokens       int    `yaml:"max_tokens"`       // optional
	ReasoningEffort string `yaml:"reasoning_effort"` // optional
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Transport   string            `yaml:"transport" json:"transport"` // "sse" or "streamable-http"
	URL         string            `yaml:"url" json:"url"`
	Headers     map[string]string `yaml:"headers" json:"headers,omitempty"`
	HeadersFile string            `yaml:"headers_file" json:"headers_file,omitempty"` // YAML map merged under headers
}

// ToolsConfig restricts tool execution.
type ToolsConfig struct {
	Allowed []string `yaml:"allowed"` // empty allows every resolved tool
	Limit   int      `yaml:"limit"`   // concurrent calls, 0 means unbounded
}

// LoggingConfig configures pkg/debug. CONVLOG_DEBUG and CONVLOG_LOG_LEVEL
// take precedence over these values.
type LoggingConfig struct {
	Debug  string `yaml:"debug"`  // comma-separated categories
	Level  string `yaml:"level"`  // default: "INFO"
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings. An empty Addr
// disables the endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"` // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Type:    "sqlite",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns:        25,
				MaxConnLifetime: 5 * time.Minute,
			},
			SQLite: SQLiteConfig{
				Path: "convlog.db",
			},
		},
		Ordering: OrderingConfig{
			MaxAttempts: 5,
		},
		Branch: BranchConfig{
			CopyBatchSize: 100,
		},
		Provider: ProviderConfig{
			Name: "openai",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Path: "/metrics",
			},
		},
	}
}
