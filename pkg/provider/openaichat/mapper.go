package openaichat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/provider"
)

// Name is the registry name of this provider.
const Name = "openai-chat"

// Mapper implements provider.Mapper for Chat Completions.
type Mapper struct{}

var _ provider.Mapper = Mapper{}

// New returns a Chat Completions mapper.
func New() Mapper { return Mapper{} }

// Name returns "openai-chat".
func (Mapper) Name() string { return Name }

// Capabilities reports that reasoning_effort is accepted but reasoning
// content is never replayed.
func (Mapper) Capabilities() provider.Capabilities {
	return provider.Capabilities{ReasoningEffort: true}
}

// Encode converts the log to a messages array.
func (m Mapper) Encode(log *api.EventLog) (*provider.Payload, error) {
	msgs, err := encodeMessages(log)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("encoding messages: %w", err)
	}
	return &provider.Payload{Messages: raw}, nil
}

// Decode converts a messages array back into events.
func (m Mapper) Decode(p *provider.Payload) (*provider.Conversion, error) {
	var msgs []chatMessage
	if err := json.Unmarshal(p.Messages, &msgs); err != nil {
		return nil, api.NewInvalidRequestError("messages", "messages is not a message array: "+err.Error())
	}
	d := &decoder{conv: &provider.Conversion{}}
	for i := range msgs {
		d.message(&msgs[i])
	}
	return d.conv, nil
}

// DecodeResponse converts the first choice of a completion into an
// assistant event.
func (m Mapper) DecodeResponse(body []byte) (*provider.Conversion, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, api.NewInvalidRequestError("body", "response is not valid JSON: "+err.Error())
	}
	if resp.Error != nil {
		return nil, api.NewServerError(fmt.Sprintf("provider error %v: %s", resp.Error.Code, resp.Error.Message))
	}
	if len(resp.Choices) == 0 {
		return nil, api.NewServerError("completion has no choices")
	}

	choice := resp.Choices[0]
	debug.Log(debug.Providers, "decoding chat completion",
		"completion_id", resp.ID,
		"finish_reason", choice.FinishReason,
		"tool_calls", len(choice.Message.ToolCalls),
	)
	if choice.Message.Role == "" {
		choice.Message.Role = string(api.RoleAssistant)
	}
	d := &decoder{conv: &provider.Conversion{}}
	d.message(&choice.Message)
	return d.conv, nil
}

// RequestBody builds a /v1/chat/completions request that replays the log.
func (m Mapper) RequestBody(log *api.EventLog, opts provider.RequestOptions) ([]byte, error) {
	if apiErr := provider.ValidateOptions(m.Capabilities(), opts); apiErr != nil {
		return nil, apiErr
	}
	msgs, err := encodeMessages(log)
	if err != nil {
		return nil, err
	}

	req := chatRequest{
		Model:           opts.Model,
		Messages:        msgs,
		ReasoningEffort: opts.ReasoningEffort,
		Stream:          opts.Stream,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = &opts.MaxTokens
	}
	if opts.Stream {
		req.StreamOptions = &chatStreamOptions{IncludeUsage: true}
	}
	for _, ep := range opts.Tools {
		req.Tools = append(req.Tools, chatTool{
			Type: "function",
			Function: chatFunctionDef{
				Name:        ep.Name,
				Description: ep.Description,
				Parameters:  ep.Schema(),
			},
		})
	}
	return json.Marshal(req)
}

// NewStreamFolder returns a folder for completion chunks.
func (Mapper) NewStreamFolder() provider.StreamFolder {
	return newStreamFolder()
}

func encodeMessages(log *api.EventLog) ([]chatMessage, error) {
	msgs := []chatMessage{}
	for _, e := range log.Events() {
		encoded, err := encodeEvent(e)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		msgs = append(msgs, encoded...)
	}
	return msgs, nil
}

// encodeEvent produces one message for a system, user or assistant event,
// and one role "tool" message per result in a tool event.
func encodeEvent(e *api.Event) ([]chatMessage, error) {
	var (
		msgs  []chatMessage
		text  strings.Builder
		calls []chatToolCall
	)

	for _, seg := range e.Segments {
		switch s := seg.(type) {
		case *api.Text:
			text.WriteString(s.Text)
		case *api.ToolCall:
			args, err := provider.EncodeArgs(s.Args)
			if err != nil {
				return nil, err
			}
			calls = append(calls, chatToolCall{
				ID:       s.ID,
				Type:     "function",
				Function: chatFunctionCall{Name: s.Name, Arguments: args},
			})
		case *api.ToolResult:
			out, err := provider.EncodeOutput(s.Output, s.Error)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, chatMessage{Role: "tool", ToolCallID: s.ID, Content: stringContent(out)})
		case *api.Reasoning, *api.WebSearchCall, *api.CodeInterpreterCall:
			debug.Log(debug.Providers, "dropping segment unsupported by chat completions",
				"event_id", e.ID, "segment_type", seg.Type())
		default:
			return nil, fmt.Errorf("unknown segment %T", seg)
		}
	}

	if text.Len() == 0 && len(calls) == 0 {
		return msgs, nil
	}
	role := string(e.Role)
	if e.Role == api.RoleTool {
		role = string(api.RoleUser)
	}
	m := chatMessage{Role: role, ToolCalls: calls, Content: json.RawMessage("null")}
	if text.Len() > 0 {
		m.Content = stringContent(text.String())
	}
	// Text in a tool event follows its results.
	if e.Role == api.RoleTool {
		return append(msgs, m), nil
	}
	return append([]chatMessage{m}, msgs...), nil
}

func stringContent(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

// contentText reads the content field in either string or part-array form.
func contentText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []chatContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("content is neither a string nor a part array")
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String(), nil
}

// decoder groups messages into events: system and user messages are one
// event each, adjacent assistant messages merge, and adjacent tool messages
// form one tool event.
type decoder struct {
	conv *provider.Conversion
	cur  *api.Event
}

func (d *decoder) event(role api.Role, continues bool) *api.Event {
	if continues && d.cur != nil && d.cur.Role == role {
		return d.cur
	}
	d.cur = api.NewEvent(role)
	d.conv.Events = append(d.conv.Events, d.cur)
	return d.cur
}

func (d *decoder) message(m *chatMessage) {
	text, err := contentText(m.Content)
	if err != nil {
		d.conv.Skip(Name, provider.SkippedSegment{ID: m.ToolCallID, Reason: err.Error()})
		return
	}

	role := api.Role(m.Role)
	if m.Role == "developer" {
		role = api.RoleSystem
	}

	switch role {
	case api.RoleSystem, api.RoleUser:
		e := d.event(role, false)
		e.Segments = append(e.Segments, &api.Text{Text: text})

	case api.RoleTool:
		e := d.event(api.RoleTool, true)
		e.Segments = append(e.Segments, &api.ToolResult{ID: m.ToolCallID, Output: provider.DecodeOutput(text)})

	case api.RoleAssistant:
		var segs []api.Segment
		if m.ReasoningContent != "" {
			segs = append(segs, &api.Reasoning{
				ID: provider.NewID("rs_"),
				Parts: []api.ReasoningPart{{
					Type:       api.DefaultReasoningPartType,
					Text:       m.ReasoningContent,
					IsComplete: true,
				}},
			})
		}
		if text != "" {
			segs = append(segs, &api.Text{Text: text})
		}
		for _, tc := range m.ToolCalls {
			args, err := provider.ParseArgs(tc.Function.Arguments)
			if err != nil {
				d.conv.Skip(Name, provider.SkippedSegment{ID: tc.ID, Name: tc.Function.Name, Reason: err.Error()})
				continue
			}
			segs = append(segs, &api.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
		}
		if len(segs) == 0 {
			return
		}
		e := d.event(api.RoleAssistant, true)
		e.Segments = append(e.Segments, segs...)

	default:
		d.conv.Skip(Name, provider.SkippedSegment{Reason: fmt.Sprintf("unsupported message role %q", m.Role)})
	}
}
