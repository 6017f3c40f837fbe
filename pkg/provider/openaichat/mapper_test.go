package openaichat

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/provider"
	"github.com/rhuss/convlog/pkg/provider/providertest"
	"github.com/rhuss/convlog/pkg/tools"
)

func TestRoundTrip(t *testing.T) {
	providertest.RoundTrip(t, New(), providertest.ToolLog(t))
}

func TestRoundTrip_ToolResultsAsStrings(t *testing.T) {
	providertest.StringOutputResults(t, New())
}

func TestEncode_Messages(t *testing.T) {
	p, err := New().Encode(providertest.ToolLog(t))
	if err != nil {
		t.Fatal(err)
	}
	var msgs []chatMessage
	if err := json.Unmarshal(p.Messages, &msgs); err != nil {
		t.Fatal(err)
	}

	wantRoles := []string{"system", "user", "assistant", "tool", "assistant"}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(wantRoles))
	}
	for i, w := range wantRoles {
		if msgs[i].Role != w {
			t.Errorf("msgs[%d].Role = %q, want %q", i, msgs[i].Role, w)
		}
	}
	call := msgs[2].ToolCalls[0]
	if call.ID != "call_1" || call.Type != "function" || call.Function.Arguments != `{"city":"Paris","days":2}` {
		t.Errorf("tool call = %+v", call)
	}
	if msgs[3].ToolCallID != "call_1" || string(msgs[3].Content) != `"{\"temp\":21}"` {
		t.Errorf("tool message = %+v", msgs[3])
	}
}

func TestEncode_DropsReasoningAndBuiltins(t *testing.T) {
	log, err := api.NewEventLog(
		api.NewEvent(api.RoleUser, &api.Text{Text: "q"}),
		api.NewEvent(api.RoleAssistant,
			&api.Reasoning{ID: "rs_1", Parts: []api.ReasoningPart{{Text: "hmm", IsComplete: true}}},
			&api.WebSearchCall{ID: "ws_1", Status: "completed"},
		),
		api.NewEvent(api.RoleAssistant,
			&api.Reasoning{ID: "rs_2", Parts: []api.ReasoningPart{{Text: "so", IsComplete: true}}},
			&api.Text{Text: "answer"},
		),
	)
	if err != nil {
		t.Fatal(err)
	}
	p, err := New().Encode(log)
	if err != nil {
		t.Fatal(err)
	}
	var msgs []chatMessage
	if err := json.Unmarshal(p.Messages, &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2: %s", len(msgs), p.Messages)
	}
	if msgs[1].ReasoningContent != "" || string(msgs[1].Content) != `"answer"` {
		t.Errorf("assistant message = %+v", msgs[1])
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name        string
		messages    string
		wantShape   []string
		wantSkipped int
	}{
		{
			name:     "content part array",
			messages: `[{"role":"user","content":[{"type":"text","text":"a"},{"type":"image_url"},{"type":"text","text":"b"}]}]`,
			wantShape: []string{
				`user: {"type":"text","text":"ab"}`,
			},
		},
		{
			name: "contiguous tool messages form one event",
			messages: `[
				{"role":"assistant","content":null,"tool_calls":[
					{"id":"c1","type":"function","function":{"name":"a","arguments":"{}"}},
					{"id":"c2","type":"function","function":{"name":"b","arguments":""}}]},
				{"role":"tool","tool_call_id":"c1","content":"plain"},
				{"role":"tool","tool_call_id":"c2","content":"[1,2]"}
			]`,
			wantShape: []string{
				`assistant: {"type":"tool_call","id":"c1","name":"a","args":{}} | {"type":"tool_call","id":"c2","name":"b","args":{}}`,
				`tool: {"type":"tool_result","id":"c1","output":"plain"} | {"type":"tool_result","id":"c2","output":[1,2]}`,
			},
		},
		{
			name: "bad arguments skip only that call",
			messages: `[{"role":"assistant","content":"ok","tool_calls":[
				{"id":"c1","type":"function","function":{"name":"a","arguments":"[1]"}},
				{"id":"c2","type":"function","function":{"name":"b","arguments":"{\"x\":true}"}}]}]`,
			wantShape: []string{
				`assistant: {"type":"text","text":"ok"} | {"type":"tool_call","id":"c2","name":"b","args":{"x":true}}`,
			},
			wantSkipped: 1,
		},
		{
			name:        "unknown role",
			messages:    `[{"role":"function","content":"x"},{"role":"developer","content":"y"}]`,
			wantShape:   []string{`system: {"type":"text","text":"y"}`},
			wantSkipped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := New().Decode(&provider.Payload{Messages: json.RawMessage(tt.messages)})
			if err != nil {
				t.Fatal(err)
			}
			got := providertest.Shape(conv.Events)
			if len(got) != len(tt.wantShape) {
				t.Fatalf("Shape = %v, want %v", got, tt.wantShape)
			}
			for i := range got {
				if got[i] != tt.wantShape[i] {
					t.Errorf("event %d = %s, want %s", i, got[i], tt.wantShape[i])
				}
			}
			if len(conv.Skipped) != tt.wantSkipped {
				t.Errorf("Skipped = %+v, want %d entries", conv.Skipped, tt.wantSkipped)
			}
		})
	}
}

func TestDecodeResponse_ReasoningContent(t *testing.T) {
	body := `{"id":"chatcmpl-1","choices":[{"index":0,"finish_reason":"stop","message":{
		"role":"assistant","content":"42","reasoning_content":"thinking it over"}}]}`
	conv, err := New().DecodeResponse([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	segs := conv.Events[0].Segments
	if len(segs) != 2 {
		t.Fatalf("segments = %v", providertest.Shape(conv.Events))
	}
	r, ok := segs[0].(*api.Reasoning)
	if !ok || r.Text() != "thinking it over" || !r.Complete() {
		t.Errorf("segs[0] = %+v", segs[0])
	}
	if txt, ok := segs[1].(*api.Text); !ok || txt.Text != "42" {
		t.Errorf("segs[1] = %+v", segs[1])
	}
}

func TestDecodeResponse_Errors(t *testing.T) {
	for _, body := range []string{
		`{"error":{"message":"overloaded","type":"server_error","code":503}}`,
		`{"id":"x","choices":[]}`,
	} {
		_, err := New().DecodeResponse([]byte(body))
		if !errors.Is(err, &api.APIError{Type: api.ErrorTypeServerError}) {
			t.Errorf("DecodeResponse(%s) err = %v, want server error", body, err)
		}
	}
}

func TestRequestBody(t *testing.T) {
	body, err := New().RequestBody(providertest.ToolLog(t), provider.RequestOptions{
		Model:           "qwen3",
		MaxTokens:       256,
		Stream:          true,
		ReasoningEffort: "high",
		Tools:           []tools.Endpoint{{Name: "get_weather"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatal(err)
	}
	if req.Model != "qwen3" || *req.MaxTokens != 256 || req.ReasoningEffort != "high" {
		t.Errorf("request = %+v", req)
	}
	if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
		t.Errorf("stream options = %v %+v", req.Stream, req.StreamOptions)
	}
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "get_weather" || string(req.Tools[0].Function.Parameters) == "" {
		t.Errorf("tools = %+v", req.Tools)
	}
	if len(req.Messages) != 5 {
		t.Errorf("got %d messages, want 5", len(req.Messages))
	}
}

func TestRequestBody_RequiresModel(t *testing.T) {
	_, err := New().RequestBody(providertest.ToolLog(t), provider.RequestOptions{ReasoningSummary: "auto"})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Param != "model" {
		t.Errorf("err = %v, want invalid model", err)
	}
}
