package openai

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/provider"
)

// Name is the registry name of this provider.
const Name = "openai"

// Mapper implements provider.Mapper for the Responses API.
type Mapper struct{}

// Ensure Mapper implements provider.Mapper at compile time.
var _ provider.Mapper = Mapper{}

// New returns a Responses API mapper.
func New() Mapper { return Mapper{} }

// Name returns "openai".
func (Mapper) Name() string { return Name }

// Capabilities reports that every segment kind is replayed and that
// reasoning options are accepted.
func (Mapper) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Reasoning:       true,
		ReasoningEffort: true,
		BuiltinTools:    true,
	}
}

// Encode converts the log to an input item array. The system prompt stays
// a message item.
func (m Mapper) Encode(log *api.EventLog) (*provider.Payload, error) {
	items, err := encodeItems(log)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encoding input items: %w", err)
	}
	return &provider.Payload{Messages: raw}, nil
}

// Decode converts an input item array back into events.
func (m Mapper) Decode(p *provider.Payload) (*provider.Conversion, error) {
	var items []item
	if err := json.Unmarshal(p.Messages, &items); err != nil {
		return nil, api.NewInvalidRequestError("messages", "input is not an item array: "+err.Error())
	}
	return decodeItems(items), nil
}

// DecodeResponse converts a /v1/responses body into one assistant event.
func (m Mapper) DecodeResponse(body []byte) (*provider.Conversion, error) {
	var resp responsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, api.NewInvalidRequestError("body", "response is not valid JSON: "+err.Error())
	}
	if resp.Error != nil {
		return nil, api.NewServerError(fmt.Sprintf("provider error %s: %s", resp.Error.Code, resp.Error.Message))
	}
	debug.Log(debug.Providers, "decoding openai response",
		"response_id", resp.ID,
		"status", resp.Status,
		"items", len(resp.Output),
	)

	conv := decodeItems(resp.Output)
	attachReasoningSummary(conv, resp.Reasoning)
	return conv, nil
}

// RequestBody builds a /v1/responses request that replays the log.
func (m Mapper) RequestBody(log *api.EventLog, opts provider.RequestOptions) ([]byte, error) {
	if apiErr := provider.ValidateOptions(m.Capabilities(), opts); apiErr != nil {
		return nil, apiErr
	}
	items, err := encodeItems(log)
	if err != nil {
		return nil, err
	}

	req := responsesRequest{
		Model:  opts.Model,
		Input:  items,
		Stream: opts.Stream,
	}
	if opts.MaxTokens > 0 {
		req.MaxOutputTokens = &opts.MaxTokens
	}
	if opts.ReasoningEffort != "" || opts.ReasoningSummary != "" {
		req.Reasoning = &reasoningConfig{Effort: opts.ReasoningEffort, Summary: opts.ReasoningSummary}
	}
	for _, ep := range opts.Tools {
		req.Tools = append(req.Tools, functionTool{
			Type:        "function",
			Name:        ep.Name,
			Description: ep.Description,
			Parameters:  ep.Schema(),
		})
	}
	return json.Marshal(req)
}

// NewStreamFolder returns a folder for Responses API streaming events.
func (Mapper) NewStreamFolder() provider.StreamFolder {
	return newStreamFolder()
}

func encodeItems(log *api.EventLog) ([]item, error) {
	var items []item
	for _, e := range log.Events() {
		encoded, err := encodeEvent(e)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		items = append(items, encoded...)
	}
	if items == nil {
		items = []item{}
	}
	return items, nil
}

// encodeEvent emits one message item per run of adjacent text segments and
// one item per other segment, in segment order.
func encodeEvent(e *api.Event) ([]item, error) {
	role, partType := messageRole(e.Role)

	var (
		items []item
		text  []contentPart
	)
	flush := func() {
		if len(text) > 0 {
			items = append(items, item{Type: itemMessage, Role: role, Content: text})
			text = nil
		}
	}

	for _, seg := range e.Segments {
		switch s := seg.(type) {
		case *api.Text:
			text = append(text, contentPart{Type: partType, Text: s.Text})
			continue
		case *api.ToolCall:
			args, err := provider.EncodeArgs(s.Args)
			if err != nil {
				return nil, err
			}
			flush()
			items = append(items, item{Type: itemFunctionCall, CallID: s.ID, Name: s.Name, Arguments: args})
		case *api.ToolResult:
			out, err := provider.EncodeOutput(s.Output, s.Error)
			if err != nil {
				return nil, err
			}
			raw, _ := json.Marshal(out)
			flush()
			items = append(items, item{Type: itemFunctionCallOutput, CallID: s.ID, Output: raw})
		case *api.Reasoning:
			flush()
			items = append(items, item{Type: itemReasoning, ID: s.ID, Summary: encodeSummary(s)})
		case *api.WebSearchCall:
			flush()
			items = append(items, item{Type: itemWebSearchCall, ID: s.ID, Status: s.Status})
		case *api.CodeInterpreterCall:
			flush()
			items = append(items, item{Type: itemCodeInterpreterCall, ID: s.ID, Status: s.Status, Code: s.Code})
		default:
			return nil, fmt.Errorf("unknown segment %T", seg)
		}
	}
	flush()
	return items, nil
}

// messageRole maps an event role to a message role and its text part type.
// Text in a tool event has no Responses counterpart and is sent as user input.
func messageRole(r api.Role) (string, string) {
	switch r {
	case api.RoleAssistant:
		return "assistant", "output_text"
	case api.RoleSystem:
		return "system", "input_text"
	default:
		return "user", "input_text"
	}
}

// encodeSummary orders parts by summary index. The API requires a summary
// array, so a reasoning item without parts gets one empty entry.
func encodeSummary(r *api.Reasoning) []summaryPart {
	parts := append([]api.ReasoningPart(nil), r.Parts...)
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].SummaryIndex < parts[j].SummaryIndex })
	out := make([]summaryPart, 0, len(parts))
	for _, p := range parts {
		typ := p.Type
		if typ == "" {
			typ = api.DefaultReasoningPartType
		}
		out = append(out, summaryPart{Type: typ, Text: p.Text})
	}
	if len(out) == 0 {
		out = append(out, summaryPart{Type: api.DefaultReasoningPartType})
	}
	return out
}

// decoder groups items into events: each user or system message is its own
// event, adjacent assistant output forms one event, and adjacent function
// call outputs form one tool event.
type decoder struct {
	conv *provider.Conversion
	cur  *api.Event
}

func decodeItems(items []item) *provider.Conversion {
	d := &decoder{conv: &provider.Conversion{}}
	for i := range items {
		d.item(i, &items[i])
	}
	return d.conv
}

func (d *decoder) event(role api.Role, continues bool) *api.Event {
	if continues && d.cur != nil && d.cur.Role == role {
		return d.cur
	}
	d.cur = api.NewEvent(role)
	d.conv.Events = append(d.conv.Events, d.cur)
	return d.cur
}

func (d *decoder) add(role api.Role, seg api.Segment) {
	e := d.event(role, true)
	e.Segments = append(e.Segments, seg)
}

func (d *decoder) item(index int, it *item) {
	switch it.Type {
	case itemMessage:
		var text string
		for _, p := range it.Content {
			text += p.Text
		}
		role := api.Role(it.Role)
		if !role.Valid() || role == api.RoleTool {
			d.conv.Skip(Name, provider.SkippedSegment{ID: it.ID, Reason: fmt.Sprintf("unsupported message role %q", it.Role)})
			return
		}
		e := d.event(role, role == api.RoleAssistant)
		e.Segments = append(e.Segments, &api.Text{Text: text})

	case itemFunctionCall:
		args, err := provider.ParseArgs(it.Arguments)
		if err != nil {
			d.conv.Skip(Name, provider.SkippedSegment{ID: it.CallID, Name: it.Name, Reason: err.Error()})
			return
		}
		d.add(api.RoleAssistant, &api.ToolCall{ID: it.CallID, Name: it.Name, Args: args})

	case itemFunctionCallOutput:
		d.add(api.RoleTool, &api.ToolResult{ID: it.CallID, Output: decodeOutput(it.Output)})

	case itemReasoning:
		r := &api.Reasoning{ID: it.ID, OutputIndex: index, Parts: []api.ReasoningPart{}}
		if r.ID == "" {
			r.ID = provider.NewID("rs_")
		}
		for i, p := range it.Summary {
			r.Parts = append(r.Parts, api.ReasoningPart{SummaryIndex: i, Type: p.Type, Text: p.Text, IsComplete: true})
		}
		d.add(api.RoleAssistant, r)

	case itemWebSearchCall:
		d.add(api.RoleAssistant, &api.WebSearchCall{ID: it.ID, Status: it.Status, OutputIndex: index})

	case itemCodeInterpreterCall:
		d.add(api.RoleAssistant, &api.CodeInterpreterCall{ID: it.ID, Status: it.Status, Code: it.Code, OutputIndex: index})

	default:
		d.conv.Skip(Name, provider.SkippedSegment{ID: it.ID, Reason: fmt.Sprintf("unsupported item type %q", it.Type)})
	}
}

// decodeOutput accepts the string form of function_call_output and, for
// anything else, the raw JSON value.
func decodeOutput(raw json.RawMessage) any {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return provider.DecodeOutput(s)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// attachReasoningSummary copies the response's reasoning effort and the
// combined reasoning text onto the assistant event.
func attachReasoningSummary(conv *provider.Conversion, cfg *reasoningConfig) {
	if cfg == nil || cfg.Effort == "" {
		return
	}
	for _, e := range conv.Events {
		if e.Role != api.RoleAssistant {
			continue
		}
		var text string
		for _, seg := range e.Segments {
			if r, ok := seg.(*api.Reasoning); ok {
				if text != "" {
					text += "\n\n"
				}
				text += r.Text()
			}
		}
		e.Reasoning = &api.ReasoningSummary{Summary: text, Effort: cfg.Effort}
	}
}
