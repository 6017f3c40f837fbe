// Package anthropic maps event logs to and from the Anthropic Messages API
// (/v1/messages).
//
// A leading system event becomes the top-level system field. Tool results
// travel as tool_result blocks inside user messages and come back as tool
// events. Thinking blocks are read as reasoning but never replayed, since
// the API only accepts them with the signature it issued.
package anthropic

import "encoding/json"

// DefaultMaxTokens is sent when the caller sets no limit; the API requires one.
const DefaultMaxTokens = 4096

// Content block types.
const (
	blockText       = "text"
	blockToolUse    = "tool_use"
	blockToolResult = "tool_result"
	blockThinking   = "thinking"
)

// messagesRequest is the request body for POST /v1/messages.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	Tools     []tool    `json:"tools,omitempty"`
	Stream    bool      `json:"stream,omitempty"`
}

// message is one user or assistant turn.
type message struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

// block is a content block. Which fields are set depends on Type.
type block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

// tool is a tool definition in the Messages API format.
type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// messagesResponse is the non-streaming response body.
type messagesResponse struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Role       string        `json:"role"`
	Model      string        `json:"model"`
	Content    []block       `json:"content"`
	StopReason string        `json:"stop_reason"`
	Error      *errorPayload `json:"error,omitempty"`
}

// errorPayload is the error object of error responses and error stream events.
type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Streaming event types.
const (
	eventMessageStart      = "message_start"
	eventMessageDelta      = "message_delta"
	eventMessageStop       = "message_stop"
	eventContentBlockStart = "content_block_start"
	eventContentBlockDelta = "content_block_delta"
	eventContentBlockStop  = "content_block_stop"
	eventPing              = "ping"
	eventError             = "error"
)

// Delta types inside content_block_delta.
const (
	deltaText      = "text_delta"
	deltaInputJSON = "input_json_delta"
	deltaThinking  = "thinking_delta"
	deltaSignature = "signature_delta"
)

// streamEvent is the union of the streaming event payloads this package reads.
type streamEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index"`
	ContentBlock *block        `json:"content_block"`
	Delta        *streamDelta  `json:"delta"`
	Error        *errorPayload `json:"error"`
}

// streamDelta is the delta of content_block_delta and message_delta events.
type streamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	PartialJSON string `json:"partial_json"`
	Thinking    string `json:"thinking"`
	StopReason  string `json:"stop_reason"`
}
