// Package openai maps event logs to and from the OpenAI Responses API
// (/v1/responses). Every segment kind has a native item type, so nothing
// is dropped in either direction.
package openai

import "encoding/json"

// Item types of the Responses API input and output arrays.
const (
	itemMessage             = "message"
	itemFunctionCall        = "function_call"
	itemFunctionCallOutput  = "function_call_output"
	itemReasoning           = "reasoning"
	itemWebSearchCall       = "web_search_call"
	itemCodeInterpreterCall = "code_interpreter_call"
)

// --- Request types ---

// responsesRequest is the wire format for POST /v1/responses.
type responsesRequest struct {
	Model           string           `json:"model"`
	Input           []item           `json:"input"`
	Tools           []functionTool   `json:"tools,omitempty"`
	MaxOutputTokens *int             `json:"max_output_tokens,omitempty"`
	Reasoning       *reasoningConfig `json:"reasoning,omitempty"`
	Store           bool             `json:"store"`
	Stream          bool             `json:"stream,omitempty"`
}

// reasoningConfig carries reasoning options in requests and responses.
type reasoningConfig struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// functionTool is a tool definition in the Responses API format.
type functionTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// item is an input or output item. Which fields are set depends on Type.
type item struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   []contentPart   `json:"content,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Summary   []summaryPart   `json:"summary,omitempty"`
	Code      string          `json:"code,omitempty"`
}

// contentPart is a content part within a message item.
type contentPart struct {
	Type string `json:"type"` // "input_text", "output_text"
	Text string `json:"text"`
}

// summaryPart is one entry of a reasoning item's summary.
type summaryPart struct {
	Type string `json:"type"` // "summary_text"
	Text string `json:"text"`
}

// --- Response types ---

// responsesResponse is the wire format returned by POST /v1/responses (non-streaming).
type responsesResponse struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Model     string           `json:"model"`
	Output    []item           `json:"output"`
	Reasoning *reasoningConfig `json:"reasoning,omitempty"`
	Error     *responsesError  `json:"error,omitempty"`
}

// responsesError is the error format in Responses API responses.
type responsesError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- SSE event types ---

// Streaming event type strings from the Responses API.
const (
	eventResponseCompleted    = "response.completed"
	eventResponseFailed       = "response.failed"
	eventResponseIncomplete   = "response.incomplete"
	eventError                = "error"
	eventOutputItemAdded      = "response.output_item.added"
	eventOutputItemDone       = "response.output_item.done"
	eventTextDelta            = "response.output_text.delta"
	eventTextDone             = "response.output_text.done"
	eventFuncCallArgsDelta    = "response.function_call_arguments.delta"
	eventFuncCallArgsDone     = "response.function_call_arguments.done"
	eventReasoningPartAdded   = "response.reasoning_summary_part.added"
	eventReasoningPartDone    = "response.reasoning_summary_part.done"
	eventReasoningTextDelta   = "response.reasoning_summary_text.delta"
	eventReasoningTextDone    = "response.reasoning_summary_text.done"
	eventCodeInterpreterDelta = "response.code_interpreter_call_code.delta"
	eventCodeInterpreterDone  = "response.code_interpreter_call_code.done"
	eventWebSearchCompleted   = "response.web_search_call.completed"
)

// streamEvent is the union of the streaming event payloads this package reads.
type streamEvent struct {
	Type           string             `json:"type"`
	SequenceNumber int                `json:"sequence_number"`
	OutputIndex    int                `json:"output_index"`
	SummaryIndex   int                `json:"summary_index"`
	ItemID         string             `json:"item_id"`
	Delta          string             `json:"delta"`
	Text           string             `json:"text"`
	Arguments      string             `json:"arguments"`
	Code           string             `json:"code"`
	Message        string             `json:"message"`
	Item           *item              `json:"item"`
	Part           *summaryPart       `json:"part"`
	Response       *responsesResponse `json:"response"`
}
