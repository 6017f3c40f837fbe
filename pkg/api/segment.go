package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// SegmentType identifies the kind of a segment on the wire.
type SegmentType string

const (
	SegmentTypeText                SegmentType = "text"
	SegmentTypeToolCall            SegmentType = "tool_call"
	SegmentTypeToolResult          SegmentType = "tool_result"
	SegmentTypeReasoning           SegmentType = "reasoning"
	SegmentTypeWebSearchCall       SegmentType = "web_search_call"
	SegmentTypeCodeInterpreterCall SegmentType = "code_interpreter_call"
)

// SegmentTypes lists every segment kind in declaration order.
var SegmentTypes = []SegmentType{
	SegmentTypeText,
	SegmentTypeToolCall,
	SegmentTypeToolResult,
	SegmentTypeReasoning,
	SegmentTypeWebSearchCall,
	SegmentTypeCodeInterpreterCall,
}

// Segment is one typed piece of an event's content. The set of
// implementations is closed: only the types in this package satisfy it.
type Segment interface {
	Type() SegmentType
	segment()
}

// Timing records when a tool call or reasoning step ran. Both ends are
// optional and are filled in after the fact.
type Timing struct {
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Text is plain text content.
type Text struct {
	Text string `json:"text"`
}

// ToolCall is a request from the model to invoke a named tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	Timing
}

// ToolResult answers the ToolCall with the same ID.
type ToolResult struct {
	ID     string `json:"id"`
	Output any    `json:"output"`
	Error  string `json:"error,omitempty"`
}

// ReasoningPart is one summary fragment of a reasoning trace.
type ReasoningPart struct {
	SummaryIndex int    `json:"summary_index"`
	Type         string `json:"type"`
	Text         string `json:"text"`
	IsComplete   bool   `json:"is_complete"`
}

// Reasoning is a model reasoning trace made of indexed summary parts.
type Reasoning struct {
	ID             string          `json:"id"`
	OutputIndex    int             `json:"output_index"`
	Parts          []ReasoningPart `json:"parts"`
	SequenceNumber int             `json:"sequence_number,omitempty"`
	Timing
}

// WebSearchCall records a built-in web search invocation.
type WebSearchCall struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	OutputIndex    int    `json:"output_index"`
	SequenceNumber int    `json:"sequence_number,omitempty"`
}

// CodeInterpreterCall records a built-in code interpreter invocation.
type CodeInterpreterCall struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Code           string `json:"code,omitempty"`
	OutputIndex    int    `json:"output_index"`
	SequenceNumber int    `json:"sequence_number,omitempty"`
}

func (*Text) Type() SegmentType                { return SegmentTypeText }
func (*ToolCall) Type() SegmentType            { return SegmentTypeToolCall }
func (*ToolResult) Type() SegmentType          { return SegmentTypeToolResult }
func (*Reasoning) Type() SegmentType           { return SegmentTypeReasoning }
func (*WebSearchCall) Type() SegmentType       { return SegmentTypeWebSearchCall }
func (*CodeInterpreterCall) Type() SegmentType { return SegmentTypeCodeInterpreterCall }

func (*Text) segment()                {}
func (*ToolCall) segment()            {}
func (*ToolResult) segment()          {}
func (*Reasoning) segment()           {}
func (*WebSearchCall) segment()       {}
func (*CodeInterpreterCall) segment() {}

// SegmentID returns the identity of s, or "" for kinds without one.
func SegmentID(s Segment) string {
	switch v := s.(type) {
	case *ToolCall:
		return v.ID
	case *ToolResult:
		return v.ID
	case *Reasoning:
		return v.ID
	case *WebSearchCall:
		return v.ID
	case *CodeInterpreterCall:
		return v.ID
	default:
		return ""
	}
}

// Text returns the combined text of all parts ordered by summary index.
func (r *Reasoning) Text() string {
	return JoinReasoningParts(r.Parts)
}

// MarshalSegment encodes s as a flat JSON object with a "type" discriminator.
func MarshalSegment(s Segment) ([]byte, error) {
	var body any
	switch v := s.(type) {
	case *Text:
		body = struct {
			Type SegmentType `json:"type"`
			*Text
		}{v.Type(), v}
	case *ToolCall:
		body = struct {
			Type SegmentType `json:"type"`
			*ToolCall
		}{v.Type(), v}
	case *ToolResult:
		body = struct {
			Type SegmentType `json:"type"`
			*ToolResult
		}{v.Type(), v}
	case *Reasoning:
		body = struct {
			Type SegmentType `json:"type"`
			*Reasoning
		}{v.Type(), v}
	case *WebSearchCall:
		body = struct {
			Type SegmentType `json:"type"`
			*WebSearchCall
		}{v.Type(), v}
	case *CodeInterpreterCall:
		body = struct {
			Type SegmentType `json:"type"`
			*CodeInterpreterCall
		}{v.Type(), v}
	default:
		return nil, fmt.Errorf("unknown segment %T", s)
	}
	return json.Marshal(body)
}

// UnmarshalSegment decodes a flat JSON segment object. Unknown types are an error.
func UnmarshalSegment(data []byte) (Segment, error) {
	var probe struct {
		Type SegmentType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	var seg Segment
	switch probe.Type {
	case SegmentTypeText:
		seg = &Text{}
	case SegmentTypeToolCall:
		seg = &ToolCall{}
	case SegmentTypeToolResult:
		seg = &ToolResult{}
	case SegmentTypeReasoning:
		seg = &Reasoning{}
	case SegmentTypeWebSearchCall:
		seg = &WebSearchCall{}
	case SegmentTypeCodeInterpreterCall:
		seg = &CodeInterpreterCall{}
	case "":
		return nil, fmt.Errorf("segment type is required")
	default:
		return nil, fmt.Errorf("unknown segment type %q", probe.Type)
	}
	if err := json.Unmarshal(data, seg); err != nil {
		return nil, fmt.Errorf("decoding %s segment: %w", probe.Type, err)
	}
	return seg, nil
}

// Segments is an ordered segment list with a polymorphic JSON encoding.
type Segments []Segment

// MarshalJSON implements json.Marshaler.
func (s Segments) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(s))
	for i, seg := range s {
		data, err := MarshalSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("segments[%d]: %w", i, err)
		}
		raw = append(raw, data)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Segments) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Segments, 0, len(raw))
	for i, r := range raw {
		seg, err := UnmarshalSegment(r)
		if err != nil {
			return fmt.Errorf("segments[%d]: %w", i, err)
		}
		out = append(out, seg)
	}
	*s = out
	return nil
}

// CloneSegment returns a deep copy of s. Tool arguments and outputs are
// copied through their JSON form so that no maps are shared.
func CloneSegment(s Segment) Segment {
	switch v := s.(type) {
	case *Text:
		c := *v
		return &c
	case *ToolCall:
		c := *v
		c.Args = cloneArgs(v.Args)
		c.Timing = v.Timing.clone()
		return &c
	case *ToolResult:
		c := *v
		c.Output = cloneValue(v.Output)
		return &c
	case *Reasoning:
		c := *v
		c.Parts = append([]ReasoningPart(nil), v.Parts...)
		c.Timing = v.Timing.clone()
		return &c
	case *WebSearchCall:
		c := *v
		return &c
	case *CodeInterpreterCall:
		c := *v
		return &c
	default:
		return s
	}
}

func (t Timing) clone() Timing {
	var c Timing
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return c
}

func cloneArgs(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := cloneValue(m).(map[string]any)
	return out
}

func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
