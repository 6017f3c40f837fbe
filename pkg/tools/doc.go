// Package tools defines the tool endpoints a conversation can call and the
// Executor contract that backends implement to answer tool_call segments
// with tool_result segments.
//
// Endpoints are resolved outside the event core (for example by listing the
// tools of configured MCP servers) and handed to provider mappers, which
// encode them into each vendor's tool definition shape.
package tools
