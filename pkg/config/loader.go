package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CONVLOG_CONFIG env, ./convlog.yaml, /etc/convlog/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CONVLOG_CONFIG environment variable
// 3. ./convlog.yaml in the current directory
// 4. /etc/convlog/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("CONVLOG_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"convlog.yaml",
		"/etc/convlog/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps CONVLOG_* environment variables to config fields.
// A variable that is set but cannot be parsed is an error.
func applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		env string
		dst *string
	}{
		{"CONVLOG_STORAGE", &cfg.Storage.Type},
		{"CONVLOG_POSTGRES_DSN", &cfg.Storage.Postgres.DSN},
		{"CONVLOG_SQLITE_PATH", &cfg.Storage.SQLite.Path},
		{"CONVLOG_PROVIDER", &cfg.Provider.Name},
		{"CONVLOG_MODEL", &cfg.Provider.Model},
		{"CONVLOG_REASONING_EFFORT", &cfg.Provider.ReasoningEffort},
		{"CONVLOG_LOG_FORMAT", &cfg.Logging.Format},
		{"CONVLOG_METRICS_ADDR", &cfg.Observability.Metrics.Addr},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"CONVLOG_STORAGE_SIZE", &cfg.Storage.MaxSize},
		{"CONVLOG_MAX_ATTEMPTS", &cfg.Ordering.MaxAttempts},
		{"CONVLOG_COPY_BATCH_SIZE", &cfg.Branch.CopyBatchSize},
		{"CONVLOG_MAX_TOKENS", &cfg.Provider.MaxTokens},
		{"CONVLOG_TOOLS_LIMIT", &cfg.Tools.Limit},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", i.env, err)
		}
		*i.dst = n
	}

	if v := os.Getenv("CONVLOG_TOOLS_ALLOWED"); v != "" {
		cfg.Tools.Allowed = splitList(v)
	}

	// CONVLOG_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("CONVLOG_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err != nil {
			return err
		}
		cfg.MCP.Servers = servers
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. A value set directly wins over its file reference.
func resolveFileReferences(cfg *Config) error {
	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// mcp.servers[*].headers_file -> mcp.servers[*].headers
	for i := range cfg.MCP.Servers {
		s := &cfg.MCP.Servers[i]
		if s.HeadersFile == "" {
			continue
		}
		data, err := os.ReadFile(s.HeadersFile)
		if err != nil {
			return fmt.Errorf("mcp.servers[%d].headers_file: %w", i, err)
		}
		var headers map[string]string
		if err := yaml.Unmarshal(data, &headers); err != nil {
			return fmt.Errorf("mcp.servers[%d].headers_file: %w", i, err)
		}
		merged := make(map[string]string, len(headers)+len(s.Headers))
		maps.Copy(merged, headers)
		maps.Copy(merged, s.Headers)
		s.Headers = merged
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
