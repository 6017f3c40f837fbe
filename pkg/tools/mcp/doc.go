// Package mcp resolves tool endpoints from MCP (Model Context Protocol)
// servers and executes tool_call segments against them.
//
// It wraps the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk).
// An Executor connects to every configured server, lists their tools as
// tools.Endpoint values, and routes each call to the server that offered
// the tool.
package mcp
