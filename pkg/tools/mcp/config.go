package mcp

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name is the logical name for this server, used for logging and
	// identification when routing tool calls.
	Name string `json:"name" yaml:"name"`

	// Transport is the transport type to use: "sse" or "streamable-http".
	// If empty, defaults to "streamable-http".
	Transport string `json:"transport" yaml:"transport"`

	// URL is the MCP server endpoint URL.
	URL string `json:"url" yaml:"url"`

	// Headers contains additional HTTP headers to send with requests,
	// typically API keys or bearer tokens.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers"`
}
