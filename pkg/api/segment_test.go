package api

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestUnmarshalSegmentKinds(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Segment
	}{
		{
			name: "text",
			data: `{"type":"text","text":"hello"}`,
			want: &Text{Text: "hello"},
		},
		{
			name: "tool call",
			data: `{"type":"tool_call","id":"call_1","name":"get_weather","args":{"city":"Paris"}}`,
			want: &ToolCall{ID: "call_1", Name: "get_weather", Args: map[string]any{"city": "Paris"}},
		},
		{
			name: "tool result with error",
			data: `{"type":"tool_result","id":"call_1","output":null,"error":"timeout"}`,
			want: &ToolResult{ID: "call_1", Error: "timeout"},
		},
		{
			name: "reasoning",
			data: `{"type":"reasoning","id":"rs_1","output_index":0,"parts":[{"summary_index":0,"type":"summary_text","text":"think","is_complete":true}]}`,
			want: &Reasoning{ID: "rs_1", Parts: []ReasoningPart{{SummaryIndex: 0, Type: "summary_text", Text: "think", IsComplete: true}}},
		},
		{
			name: "web search",
			data: `{"type":"web_search_call","id":"ws_1","status":"completed","output_index":2}`,
			want: &WebSearchCall{ID: "ws_1", Status: "completed", OutputIndex: 2},
		},
		{
			name: "code interpreter",
			data: `{"type":"code_interpreter_call","id":"ci_1","status":"in_progress","code":"print(1)","output_index":1}`,
			want: &CodeInterpreterCall{ID: "ci_1", Status: "in_progress", Code: "print(1)", OutputIndex: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalSegment([]byte(tt.data))
			if err != nil {
				t.Fatalf("UnmarshalSegment: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestUnmarshalSegmentRejectsUnknownType(t *testing.T) {
	for _, data := range []string{`{"type":"image","url":"x"}`, `{"text":"no type"}`} {
		if _, err := UnmarshalSegment([]byte(data)); err == nil {
			t.Errorf("UnmarshalSegment(%s) should fail", data)
		}
	}
}

func TestMarshalSegmentCarriesDiscriminator(t *testing.T) {
	for _, typ := range SegmentTypes {
		t.Run(string(typ), func(t *testing.T) {
			seg := sampleSegment(typ)
			if seg.Type() != typ {
				t.Fatalf("sample for %s has type %s", typ, seg.Type())
			}
			data, err := MarshalSegment(seg)
			if err != nil {
				t.Fatalf("MarshalSegment: %v", err)
			}
			if !strings.Contains(string(data), `"type":"`+string(typ)+`"`) {
				t.Errorf("encoded segment %s lacks type discriminator", data)
			}
		})
	}
}

func TestToolCallTimingIsFlattened(t *testing.T) {
	started := mustTime(t, "2026-01-02T03:04:05Z")
	call := &ToolCall{ID: "c", Name: "n", Args: map[string]any{}, Timing: Timing{StartedAt: &started}}

	data, err := MarshalSegment(call)
	if err != nil {
		t.Fatalf("MarshalSegment: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["started_at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("started_at = %v, want flattened timestamp", m["started_at"])
	}
	if _, ok := m["completed_at"]; ok {
		t.Error("unset completed_at should be omitted")
	}
}

func TestCloneSegmentDoesNotShareArgs(t *testing.T) {
	orig := &ToolCall{ID: "c", Name: "n", Args: map[string]any{"nested": map[string]any{"k": "v"}}}
	c := CloneSegment(orig).(*ToolCall)
	c.Args["nested"].(map[string]any)["k"] = "changed"

	if orig.Args["nested"].(map[string]any)["k"] != "v" {
		t.Error("clone mutated the original arguments")
	}
}

func TestSegmentID(t *testing.T) {
	if got := SegmentID(&Text{Text: "x"}); got != "" {
		t.Errorf("SegmentID(text) = %q, want empty", got)
	}
	if got := SegmentID(&ToolResult{ID: "call_9"}); got != "call_9" {
		t.Errorf("SegmentID(tool_result) = %q, want call_9", got)
	}
}

func sampleSegment(typ SegmentType) Segment {
	switch typ {
	case SegmentTypeText:
		return &Text{Text: "hi"}
	case SegmentTypeToolCall:
		return &ToolCall{ID: "c1", Name: "lookup", Args: map[string]any{"q": "x"}}
	case SegmentTypeToolResult:
		return &ToolResult{ID: "c1", Output: "ok"}
	case SegmentTypeReasoning:
		return &Reasoning{ID: "r1", Parts: []ReasoningPart{}}
	case SegmentTypeWebSearchCall:
		return &WebSearchCall{ID: "w1", Status: "completed"}
	case SegmentTypeCodeInterpreterCall:
		return &CodeInterpreterCall{ID: "ci1", Status: "completed"}
	}
	return nil
}
