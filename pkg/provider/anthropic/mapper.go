package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/provider"
)

// Name is the registry name of this provider.
const Name = "anthropic"

// Mapper implements provider.Mapper for the Messages API.
type Mapper struct{}

var _ provider.Mapper = Mapper{}

// New returns a Messages API mapper.
func New() Mapper { return Mapper{} }

// Name returns "anthropic".
func (Mapper) Name() string { return Name }

// Capabilities reports the separate system field. Reasoning and built-in
// tool calls are not replayed.
func (Mapper) Capabilities() provider.Capabilities {
	return provider.Capabilities{SystemField: true}
}

// Encode converts the log to a system string and a messages array.
func (m Mapper) Encode(log *api.EventLog) (*provider.Payload, error) {
	msgs, err := encodeMessages(log)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("encoding messages: %w", err)
	}
	return &provider.Payload{System: log.SystemParameter(), Messages: raw}, nil
}

// Decode converts a system string and messages array back into events.
func (m Mapper) Decode(p *provider.Payload) (*provider.Conversion, error) {
	var msgs []message
	if err := json.Unmarshal(p.Messages, &msgs); err != nil {
		return nil, api.NewInvalidRequestError("messages", "messages is not a message array: "+err.Error())
	}
	d := newDecoder()
	if p.System != "" {
		d.text(api.RoleSystem, p.System)
	}
	for i := range msgs {
		d.message(&msgs[i])
	}
	return d.conv, nil
}

// DecodeResponse converts a /v1/messages body into one assistant event.
func (m Mapper) DecodeResponse(body []byte) (*provider.Conversion, error) {
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, api.NewInvalidRequestError("body", "response is not valid JSON: "+err.Error())
	}
	if resp.Error != nil {
		return nil, &api.APIError{Type: api.ErrorTypeServerError, Code: resp.Error.Type, Message: resp.Error.Message}
	}
	debug.Log(debug.Providers, "decoding anthropic message",
		"message_id", resp.ID,
		"stop_reason", resp.StopReason,
		"blocks", len(resp.Content),
	)
	d := newDecoder()
	d.message(&message{Role: "assistant", Content: resp.Content})
	return d.conv, nil
}

// RequestBody builds a /v1/messages request that replays the log.
func (m Mapper) RequestBody(log *api.EventLog, opts provider.RequestOptions) ([]byte, error) {
	if apiErr := provider.ValidateOptions(m.Capabilities(), opts); apiErr != nil {
		return nil, apiErr
	}
	msgs, err := encodeMessages(log)
	if err != nil {
		return nil, err
	}

	req := messagesRequest{
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
		System:    log.SystemParameter(),
		Messages:  msgs,
		Stream:    opts.Stream,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	for _, ep := range opts.Tools {
		req.Tools = append(req.Tools, tool{
			Name:        ep.Name,
			Description: ep.Description,
			InputSchema: ep.Schema(),
		})
	}
	return json.Marshal(req)
}

// NewStreamFolder returns a folder for Messages API streaming events.
func (Mapper) NewStreamFolder() provider.StreamFolder {
	return newStreamFolder()
}

// encodeMessages skips the leading system event, which travels in the
// system field, and merges consecutive messages of the same role since the
// API requires user and assistant turns to alternate.
func encodeMessages(log *api.EventLog) ([]message, error) {
	events := log.Events()
	if len(events) > 0 && events[0].Role == api.RoleSystem {
		events = events[1:]
	}

	msgs := []message{}
	for _, e := range events {
		role, blocks, err := encodeEvent(e)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		if len(blocks) == 0 {
			continue
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content = append(msgs[n-1].Content, blocks...)
			continue
		}
		msgs = append(msgs, message{Role: role, Content: blocks})
	}
	return msgs, nil
}

func encodeEvent(e *api.Event) (string, []block, error) {
	role := "user"
	if e.Role == api.RoleAssistant {
		role = "assistant"
	}

	var blocks []block
	for _, seg := range e.Segments {
		switch s := seg.(type) {
		case *api.Text:
			blocks = append(blocks, block{Type: blockText, Text: s.Text})
		case *api.ToolCall:
			input := json.RawMessage("{}")
			if s.Args != nil {
				var err error
				if input, err = json.Marshal(s.Args); err != nil {
					return "", nil, fmt.Errorf("encoding tool input: %w", err)
				}
			}
			blocks = append(blocks, block{Type: blockToolUse, ID: s.ID, Name: s.Name, Input: input})
		case *api.ToolResult:
			out, err := provider.EncodeOutput(s.Output, s.Error)
			if err != nil {
				return "", nil, err
			}
			content, _ := json.Marshal(out)
			blocks = append(blocks, block{
				Type:      blockToolResult,
				ToolUseID: s.ID,
				Content:   content,
				IsError:   s.Error != "",
			})
		case *api.Reasoning, *api.WebSearchCall, *api.CodeInterpreterCall:
			debug.Log(debug.Providers, "dropping segment unsupported by anthropic",
				"event_id", e.ID, "segment_type", seg.Type())
		default:
			return "", nil, fmt.Errorf("unknown segment %T", seg)
		}
	}

	// Tool results must open the user turn that answers the tool use.
	if e.Role == api.RoleTool {
		var results, rest []block
		for _, b := range blocks {
			if b.Type == blockToolResult {
				results = append(results, b)
			} else {
				rest = append(rest, b)
			}
		}
		blocks = append(results, rest...)
	}
	return role, blocks, nil
}

// resultText reads tool_result content in string or block-array form.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return string(raw)
	}
	var b strings.Builder
	for _, bl := range blocks {
		if bl.Type == blockText {
			b.WriteString(bl.Text)
		}
	}
	return b.String()
}

// decoder groups blocks into events. A user message holding tool_result
// blocks yields a tool event for them and a user event for any text.
type decoder struct {
	conv *provider.Conversion
	cur  *api.Event
}

func newDecoder() *decoder {
	return &decoder{conv: &provider.Conversion{}}
}

func (d *decoder) event(role api.Role) *api.Event {
	if d.cur == nil || d.cur.Role != role {
		d.cur = api.NewEvent(role)
		d.conv.Events = append(d.conv.Events, d.cur)
	}
	return d.cur
}

func (d *decoder) add(role api.Role, seg api.Segment) {
	e := d.event(role)
	e.Segments = append(e.Segments, seg)
}

// text appends to a trailing text segment so adjacent blocks form one segment.
func (d *decoder) text(role api.Role, s string) {
	e := d.event(role)
	if n := len(e.Segments); n > 0 {
		if t, ok := e.Segments[n-1].(*api.Text); ok {
			t.Text += s
			return
		}
	}
	e.Segments = append(e.Segments, &api.Text{Text: s})
}

func (d *decoder) message(m *message) {
	var textRole api.Role
	switch m.Role {
	case "user":
		textRole = api.RoleUser
	case "assistant":
		textRole = api.RoleAssistant
	default:
		d.conv.Skip(Name, provider.SkippedSegment{Reason: fmt.Sprintf("unsupported message role %q", m.Role)})
		return
	}
	// Every message starts a new event except consecutive assistant turns.
	if textRole == api.RoleUser || (d.cur != nil && d.cur.Role != api.RoleAssistant) {
		d.cur = nil
	}

	for i, b := range m.Content {
		switch {
		case b.Type == blockText:
			d.text(textRole, b.Text)

		case b.Type == blockToolUse && textRole == api.RoleAssistant:
			args, err := provider.ParseArgs(string(b.Input))
			if err != nil {
				d.conv.Skip(Name, provider.SkippedSegment{ID: b.ID, Name: b.Name, Reason: err.Error()})
				continue
			}
			d.add(api.RoleAssistant, &api.ToolCall{ID: b.ID, Name: b.Name, Args: args})

		case b.Type == blockToolResult && textRole == api.RoleUser:
			text := resultText(b.Content)
			result := &api.ToolResult{ID: b.ToolUseID}
			if b.IsError {
				result.Error = text
			} else {
				result.Output = provider.DecodeOutput(text)
			}
			d.add(api.RoleTool, result)

		case b.Type == blockThinking && textRole == api.RoleAssistant:
			d.add(api.RoleAssistant, thinkingSegment(i, b.Thinking))

		default:
			d.conv.Skip(Name, provider.SkippedSegment{
				ID:     b.ID,
				Reason: fmt.Sprintf("unsupported %s block %q", m.Role, b.Type),
			})
		}
	}
}

func thinkingSegment(index int, text string) *api.Reasoning {
	return &api.Reasoning{
		ID:          provider.NewID("rs_"),
		OutputIndex: index,
		Parts:       []api.ReasoningPart{{Type: blockThinking, Text: text, IsComplete: true}},
	}
}
